package sqltoken

// MatchingParen returns the index of the RParen closing the LParen at
// tokens[open], or -1 when the group is never closed.
func MatchingParen(tokens []Token, open int) int {
	if open < 0 || open >= len(tokens) || tokens[open].Kind != LParen {
		return -1
	}
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].Kind {
		case LParen:
			depth++
		case RParen:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// SplitCommas splits tokens on commas that sit outside any parenthesis
// group. Empty segments are kept so callers can count entries exactly.
func SplitCommas(tokens []Token) [][]Token {
	if len(tokens) == 0 {
		return nil
	}
	var out [][]Token
	depth := 0
	start := 0
	for i, tok := range tokens {
		switch tok.Kind {
		case LParen:
			depth++
		case RParen:
			depth--
		case Comma:
			if depth == 0 {
				out = append(out, tokens[start:i])
				start = i + 1
			}
		}
	}
	return append(out, tokens[start:])
}

// ParenBalance returns the signed sum of opening (+1) and closing (-1)
// parentheses.
func ParenBalance(tokens []Token) int {
	balance := 0
	for _, tok := range tokens {
		switch tok.Kind {
		case LParen:
			balance++
		case RParen:
			balance--
		}
	}
	return balance
}

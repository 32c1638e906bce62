package sqltoken

import "strings"

// Lexer produces tokens from SQL input one at a time.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      byte // current byte, 0 at end of input
	line    int
	col     int
}

// NewLexer returns a Lexer positioned at the first byte of input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// Tokenize returns every token in input except comments and the final EOF.
func Tokenize(input string) []Token {
	all := TokenizeWithComments(input)
	out := make([]Token, 0, len(all))
	for _, tok := range all {
		if tok.Kind != Comment {
			out = append(out, tok)
		}
	}
	return out
}

// TokenizeWithComments is Tokenize with comment tokens kept in place.
func TokenizeWithComments(input string) []Token {
	l := NewLexer(input)
	var out []Token
	for {
		tok := l.Next()
		if tok.Kind == EOF {
			return out
		}
		out = append(out, tok)
	}
}

// Statements splits tokens at top-level semicolons. Empty statements are
// dropped and the semicolons themselves are not included.
func Statements(tokens []Token) [][]Token {
	var out [][]Token
	start := 0
	for i, tok := range tokens {
		if tok.Kind != Semicolon {
			continue
		}
		if i > start {
			out = append(out, tokens[start:i])
		}
		start = i + 1
	}
	if start < len(tokens) {
		out = append(out, tokens[start:])
	}
	return out
}

// Next returns the next token, or a token of kind EOF once input is
// exhausted.
func (l *Lexer) Next() Token {
	l.skipWhitespace()
	pos := l.currentPos()
	start := l.pos

	if l.atEOF() {
		return Token{Kind: EOF, Pos: pos}
	}

	switch {
	case l.ch == '-' && l.peekChar() == '-':
		for !l.atEOF() && l.ch != '\n' {
			l.readChar()
		}
		return l.emit(Comment, start, pos)
	case l.ch == '/' && l.peekChar() == '*':
		l.readChar()
		l.readChar()
		for !l.atEOF() && !(l.ch == '*' && l.peekChar() == '/') {
			l.readChar()
		}
		if !l.atEOF() {
			l.readChar()
			l.readChar()
		}
		return l.emit(Comment, start, pos)
	case l.ch == '\'':
		unterminated := l.readQuoted('\'')
		tok := l.emit(String, start, pos)
		tok.Unterminated = unterminated
		return tok
	case isStringPrefix(l.ch) && l.peekChar() == '\'':
		l.readChar()
		unterminated := l.readQuoted('\'')
		tok := l.emit(String, start, pos)
		tok.Unterminated = unterminated
		return tok
	case l.ch == '$' && isDigit(l.peekChar()):
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
		return l.emit(Param, start, pos)
	case l.ch == '"' || l.ch == '`':
		unterminated := l.readQuoted(l.ch)
		tok := l.emit(QuotedIdent, start, pos)
		tok.Unterminated = unterminated
		return tok
	case isWordStart(l.ch):
		for isWordPart(l.ch) && !l.atEOF() {
			l.readChar()
		}
		tok := l.emit(Ident, start, pos)
		if IsKeyword(tok.Text) {
			tok.Kind = Keyword
		}
		return tok
	case isDigit(l.ch):
		l.readNumber()
		return l.emit(Number, start, pos)
	case isOperator(l.ch):
		for !l.atEOF() && isOperator(l.ch) && !l.atCommentStart() {
			l.readChar()
		}
		return l.emit(Operator, start, pos)
	}

	kind := Illegal
	switch l.ch {
	case '(':
		kind = LParen
	case ')':
		kind = RParen
	case ',':
		kind = Comma
	case ';':
		kind = Semicolon
	case '.':
		kind = Dot
	case '*':
		kind = Star
	}
	l.readChar()
	return l.emit(kind, start, pos)
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.col++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) atCommentStart() bool {
	return (l.ch == '-' && l.peekChar() == '-') || (l.ch == '/' && l.peekChar() == '*')
}

func (l *Lexer) currentPos() Position {
	return Position{Line: l.line, Column: l.col, Offset: l.pos}
}

func (l *Lexer) emit(kind Kind, start int, pos Position) Token {
	end := l.pos
	if end > len(l.input) {
		end = len(l.input)
	}
	return Token{Kind: kind, Text: l.input[start:end], Pos: pos}
}

func (l *Lexer) skipWhitespace() {
	for !l.atEOF() && strings.IndexByte(" \t\r\n\f\v", l.ch) >= 0 {
		l.readChar()
	}
}

// readQuoted consumes a quoted run including both delimiters. A doubled
// delimiter is an escaped quote. It reports true when input ends first.
func (l *Lexer) readQuoted(quote byte) bool {
	l.readChar()
	for !l.atEOF() {
		if l.ch == quote {
			if l.peekChar() == quote {
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			return false
		}
		l.readChar()
	}
	return true
}

func (l *Lexer) readNumber() {
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
}

func isWordStart(ch byte) bool {
	return ch == '_' || ch >= 0x80 || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isWordPart(ch byte) bool {
	return isWordStart(ch) || isDigit(ch) || ch == '$'
}

// isStringPrefix matches the E, N, B and X markers of escape, national,
// bit and hex string literals.
func isStringPrefix(ch byte) bool {
	return strings.IndexByte("eEnNbBxX", ch) >= 0
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isOperator(ch byte) bool {
	return ch != 0 && strings.IndexByte("=<>!|+-/%^&~:?@#", ch) >= 0
}

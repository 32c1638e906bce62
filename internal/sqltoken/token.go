// Package sqltoken splits SQL and DDL text into a typed token stream.
//
// The lexer never fails: malformed input such as an unterminated string
// produces a token flagged Unterminated that runs to the end of the input.
// Callers decide whether that is an error.
package sqltoken

import (
	"errors"
	"strings"
)

// ErrUnterminated reports a quoted token without its closing quote.
var ErrUnterminated = errors.New("sqltoken: unterminated quoted token")

// Kind classifies a token.
type Kind int

const (
	EOF Kind = iota
	Ident
	Keyword
	QuotedIdent
	String
	Number
	LParen
	RParen
	Comma
	Semicolon
	Dot
	Star
	Operator
	Param
	Comment
	Illegal
)

var kindNames = map[Kind]string{
	EOF:         "EOF",
	Ident:       "IDENT",
	Keyword:     "KEYWORD",
	QuotedIdent: "QUOTED_IDENT",
	String:      "STRING",
	Number:      "NUMBER",
	LParen:      "(",
	RParen:      ")",
	Comma:       ",",
	Semicolon:   ";",
	Dot:         ".",
	Star:        "*",
	Operator:    "OPERATOR",
	Param:       "PARAM",
	Comment:     "COMMENT",
	Illegal:     "ILLEGAL",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Position is a location in the input. Line and Column are 1-based, Offset is
// a byte offset.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Token is a lexical unit. Text holds the exact source bytes, quotes included.
type Token struct {
	Kind         Kind
	Text         string
	Pos          Position
	Unterminated bool
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Pos.Offset + len(t.Text)
}

// Upper returns the token text upper-cased.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// Value returns the token text with surrounding quotes removed and doubled
// quote escapes collapsed. A string prefix such as E or N is dropped. Other
// kinds return Text unchanged.
func (t Token) Value() string {
	switch t.Kind {
	case String, QuotedIdent:
		text := t.Text
		if t.Kind == String && text != "" && text[0] != '\'' {
			text = text[1:]
		}
		if text == "" {
			return ""
		}
		quote := text[:1]
		inner := text[1:]
		if !t.Unterminated && len(inner) > 0 {
			inner = inner[:len(inner)-1]
		}
		return strings.ReplaceAll(inner, quote+quote, quote)
	default:
		return t.Text
	}
}

// IsWord reports whether the token is a bare word (identifier or keyword)
// equal to one of words, ignoring case.
func (t Token) IsWord(words ...string) bool {
	if t.Kind != Ident && t.Kind != Keyword {
		return false
	}
	for _, word := range words {
		if strings.EqualFold(t.Text, word) {
			return true
		}
	}
	return false
}

// IsName reports whether the token can name a table or column.
func (t Token) IsName() bool {
	return t.Kind == Ident || t.Kind == QuotedIdent
}

// QuoteCount returns how many quote characters delimit the token: two for a
// closed string or quoted identifier, one for an unterminated one.
func (t Token) QuoteCount() int {
	switch t.Kind {
	case String, QuotedIdent:
		if t.Unterminated {
			return 1
		}
		return 2
	default:
		return 0
	}
}

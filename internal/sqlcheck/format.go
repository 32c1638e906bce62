package sqlcheck

import (
	"fmt"
	"strings"

	"github.com/duckmesh/schemagate/internal/sqltoken"
)

const indentSize = 2

// clauseWords start a new line when they appear outside parentheses.
var clauseWords = []string{
	"SELECT", "FROM", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "FETCH",
	"UNION", "INTERSECT", "EXCEPT", "VALUES", "SET", "RETURNING", "WINDOW",
	"INSERT", "UPDATE", "DELETE",
}

// A clause word right after one of these continues the current line, as in
// DELETE FROM, UNION ALL or FOR UPDATE.
var clauseContinuations = []string{"UNION", "INTERSECT", "EXCEPT", "ALL", "DISTINCT", "DELETE", "FOR", "ON"}

var joinModifiers = []string{"INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL", "OUTER"}

// Names directly followed by a parenthesized column list rather than call
// arguments.
var columnListOwners = []string{"TABLE", "INTO", "REFERENCES", "EXISTS", "UPDATE", "JOIN", "FROM"}

// Format renders sql with upper-case keywords, lower-case identifiers and
// one top-level clause per line. String literals, quoted identifiers and
// comments are kept verbatim. Formatting depends only on the token stream,
// so formatting a formatted statement returns it unchanged.
func Format(sql string) (string, error) {
	tokens := sqltoken.TokenizeWithComments(sql)
	for _, tok := range tokens {
		if tok.Unterminated {
			return "", fmt.Errorf("format: %w at line %d, column %d", sqltoken.ErrUnterminated, tok.Pos.Line, tok.Pos.Column)
		}
	}

	p := &printer{}
	for i, tok := range tokens {
		p.emit(tokens, i, tok)
	}
	return strings.TrimSpace(p.out.String()), nil
}

type printer struct {
	out strings.Builder

	depth         int
	clause        string
	betweenDepth  int
	betweenActive bool
	breakAfter    bool // previous token was a line comment
	indentNext    bool // previous token was a top-level comma in a select list
	prev          *sqltoken.Token
	prevWord      sqltoken.Token // previous non-comment token
}

func (p *printer) emit(tokens []sqltoken.Token, i int, tok sqltoken.Token) {
	text := render(tok)
	topLevel := p.depth <= 0

	if tok.Kind == sqltoken.RParen {
		p.depth--
	}

	indent, brk := p.lineBreak(tokens, i, tok, topLevel)
	switch {
	case p.prev == nil:
	case brk:
		p.newline(indent)
	case p.breakAfter:
		p.newline(0)
	case needsSpace(*p.prev, tok, prevWordBefore(tokens, i)):
		p.out.WriteByte(' ')
	}
	p.out.WriteString(text)

	if topLevel && tok.IsWord(clauseWords...) && (p.prev == nil || brk) {
		p.clause = tok.Upper()
	}
	p.breakAfter = tok.Kind == sqltoken.Comment && strings.HasPrefix(tok.Text, "--")
	p.indentNext = false
	switch {
	case tok.Kind == sqltoken.LParen:
		p.depth++
	case tok.Kind == sqltoken.Comma && topLevel && p.clause == "SELECT":
		p.indentNext = true
	case tok.Kind == sqltoken.Semicolon:
		p.clause = ""
		p.breakAfter = true
	case tok.IsWord("BETWEEN"):
		p.betweenActive = true
		p.betweenDepth = p.depth
	case tok.IsWord("AND") && p.betweenActive && p.betweenDepth == p.depth:
		p.betweenActive = false
	}

	current := tok
	p.prev = &current
	if tok.Kind != sqltoken.Comment {
		p.prevWord = tok
	}
}

// lineBreak decides whether tok starts a new line and at which indent level.
func (p *printer) lineBreak(tokens []sqltoken.Token, i int, tok sqltoken.Token, topLevel bool) (int, bool) {
	if p.prev == nil {
		return 0, false
	}
	if p.indentNext {
		return 1, true
	}
	if !topLevel {
		return 0, false
	}
	next := nextWord(tokens, i)

	switch {
	case tok.IsWord("GROUP", "ORDER"):
		return 0, next.IsWord("BY")
	case tok.IsWord(clauseWords...):
		return 0, !p.prevWord.IsWord(clauseContinuations...) || tok.IsWord("SELECT", "VALUES")
	case tok.IsWord("JOIN"):
		return 0, !p.prevWord.IsWord(joinModifiers...)
	case tok.IsWord(joinModifiers...):
		return 0, (next.IsWord("JOIN") || next.IsWord(joinModifiers...)) && !p.prevWord.IsWord(joinModifiers...)
	case tok.IsWord("AND", "OR"):
		if p.clause != "WHERE" && p.clause != "HAVING" {
			return 0, false
		}
		if tok.IsWord("AND") && p.betweenActive && p.betweenDepth == p.depth {
			return 0, false
		}
		return 1, true
	}
	return 0, false
}

func (p *printer) newline(indent int) {
	p.out.WriteByte('\n')
	p.out.WriteString(strings.Repeat(" ", indent*indentSize))
}

func render(tok sqltoken.Token) string {
	switch tok.Kind {
	case sqltoken.Keyword:
		return tok.Upper()
	case sqltoken.Ident:
		return strings.ToLower(tok.Text)
	case sqltoken.Comment:
		return strings.TrimRight(tok.Text, " \t\r")
	default:
		return tok.Text
	}
}

// needsSpace reports whether a space separates prev and cur. Tokens that
// could merge when written together always get one.
func needsSpace(prev, cur, beforePrev sqltoken.Token) bool {
	if prev.Kind == sqltoken.Comment {
		return true
	}
	switch cur.Kind {
	case sqltoken.RParen, sqltoken.Comma, sqltoken.Semicolon:
		return false
	case sqltoken.Dot:
		return prev.Kind == sqltoken.Number
	case sqltoken.LParen:
		if prev.Kind == sqltoken.Ident || prev.Kind == sqltoken.QuotedIdent {
			return beforePrev.IsWord(columnListOwners...)
		}
	}
	switch prev.Kind {
	case sqltoken.LParen, sqltoken.Dot:
		return false
	}
	return true
}

// nextWord returns the next non-comment token after i.
func nextWord(tokens []sqltoken.Token, i int) sqltoken.Token {
	for j := i + 1; j < len(tokens); j++ {
		if tokens[j].Kind != sqltoken.Comment {
			return tokens[j]
		}
	}
	return sqltoken.Token{Kind: sqltoken.EOF}
}

// prevWordBefore returns the non-comment token two places before i.
func prevWordBefore(tokens []sqltoken.Token, i int) sqltoken.Token {
	seen := 0
	for j := i - 1; j >= 0; j-- {
		if tokens[j].Kind == sqltoken.Comment {
			continue
		}
		seen++
		if seen == 2 {
			return tokens[j]
		}
	}
	return sqltoken.Token{Kind: sqltoken.EOF}
}

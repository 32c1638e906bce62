package sqltoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []Kind {
	out := make([]Kind, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Kind
	}
	return out
}

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestTokenizeSelect(t *testing.T) {
	tokens := Tokenize("SELECT u.id, COUNT(*) FROM users u WHERE u.age >= 18;")

	assert.Equal(t, []string{
		"SELECT", "u", ".", "id", ",", "COUNT", "(", "*", ")", "FROM", "users", "u",
		"WHERE", "u", ".", "age", ">=", "18", ";",
	}, texts(tokens))
	assert.Equal(t, []Kind{
		Keyword, Ident, Dot, Ident, Comma, Ident, LParen, Star, RParen, Keyword, Ident, Ident,
		Keyword, Ident, Dot, Ident, Operator, Number, Semicolon,
	}, kinds(tokens))
}

func TestTokenizeStringsAndQuotedIdentifiers(t *testing.T) {
	tokens := Tokenize("SELECT 'it''s', \"Order Id\", `tbl` FROM x")
	require.Len(t, tokens, 8)

	assert.Equal(t, String, tokens[1].Kind)
	assert.Equal(t, "'it''s'", tokens[1].Text)
	assert.Equal(t, "it's", tokens[1].Value())
	assert.Equal(t, 2, tokens[1].QuoteCount())

	assert.Equal(t, QuotedIdent, tokens[3].Kind)
	assert.Equal(t, "Order Id", tokens[3].Value())
	assert.True(t, tokens[3].IsName())

	assert.Equal(t, QuotedIdent, tokens[5].Kind)
	assert.Equal(t, "tbl", tokens[5].Value())
}

func TestTokenizeParamsAndPrefixedStrings(t *testing.T) {
	tokens := Tokenize("WHERE id = $12 AND note = E'it''s' AND n = N'x' AND else_col = 1")

	assert.Equal(t, []string{
		"WHERE", "id", "=", "$12", "AND", "note", "=", "E'it''s'", "AND", "n", "=", "N'x'",
		"AND", "else_col", "=", "1",
	}, texts(tokens))
	assert.Equal(t, Param, tokens[3].Kind)
	assert.Equal(t, String, tokens[7].Kind)
	assert.Equal(t, "it's", tokens[7].Value())
	assert.Equal(t, 2, tokens[7].QuoteCount())
	assert.Equal(t, "x", tokens[11].Value())
	assert.Equal(t, Ident, tokens[9].Kind)
}

func TestTokenizeUnterminatedString(t *testing.T) {
	tokens := Tokenize("SELECT 'abc FROM t")
	require.Len(t, tokens, 2)

	assert.Equal(t, String, tokens[1].Kind)
	assert.True(t, tokens[1].Unterminated)
	assert.Equal(t, "'abc FROM t", tokens[1].Text)
	assert.Equal(t, "abc FROM t", tokens[1].Value())
	assert.Equal(t, 1, tokens[1].QuoteCount())
}

func TestTokenizeComments(t *testing.T) {
	input := "-- leading\nSELECT 1 /* inline */ FROM t -- trailing"

	withComments := TokenizeWithComments(input)
	assert.Equal(t, []Kind{Comment, Keyword, Number, Comment, Keyword, Ident, Comment}, kinds(withComments))
	assert.Equal(t, "-- leading", withComments[0].Text)
	assert.Equal(t, "/* inline */", withComments[3].Text)

	assert.Equal(t, []string{"SELECT", "1", "FROM", "t"}, texts(Tokenize(input)))
}

func TestTokenizeOperatorStopsBeforeComment(t *testing.T) {
	tokens := TokenizeWithComments("a =-- note\n1")
	assert.Equal(t, []Kind{Ident, Operator, Comment, Number}, kinds(tokens))
	assert.Equal(t, "=", tokens[1].Text)
}

func TestTokenizeNumbers(t *testing.T) {
	tokens := Tokenize("1 2.50 3e10 4.5E-3 t.6")
	assert.Equal(t, []string{"1", "2.50", "3e10", "4.5E-3", "t", ".", "6"}, texts(tokens))
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("SELECT\n  id\nFROM t")
	require.Len(t, tokens, 4)

	assert.Equal(t, Position{Line: 1, Column: 1, Offset: 0}, tokens[0].Pos)
	assert.Equal(t, Position{Line: 2, Column: 3, Offset: 9}, tokens[1].Pos)
	assert.Equal(t, Position{Line: 3, Column: 1, Offset: 12}, tokens[2].Pos)
	assert.Equal(t, 16, tokens[2].End())
}

func TestTokenizeIllegal(t *testing.T) {
	tokens := Tokenize("SELECT [x]")
	assert.Equal(t, []Kind{Keyword, Illegal, Ident, Illegal}, kinds(tokens))
}

func TestKeywordClassificationIgnoresCase(t *testing.T) {
	tokens := Tokenize("select From users")
	assert.Equal(t, []Kind{Keyword, Keyword, Ident}, kinds(tokens))
	assert.True(t, tokens[1].IsWord("from"))
	assert.False(t, tokens[2].IsWord("from"))
	assert.Equal(t, "FROM", tokens[1].Upper())
}

func TestStatements(t *testing.T) {
	stmts := Statements(Tokenize(";CREATE TABLE a (id INT);; CREATE TABLE b (id INT)"))
	require.Len(t, stmts, 2)
	assert.Equal(t, "a", stmts[0][2].Text)
	assert.Equal(t, "b", stmts[1][2].Text)
}

func TestEmptyInput(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   \n\t"))
	assert.Nil(t, Statements(nil))
	assert.Equal(t, EOF, NewLexer("").Next().Kind)
}

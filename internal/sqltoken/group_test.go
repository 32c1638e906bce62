package sqltoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchingParen(t *testing.T) {
	tokens := Tokenize("t (a decimal(10,2), b int) COMMENT 'x'")
	assert.Equal(t, 12, MatchingParen(tokens, 1))
	assert.Equal(t, 8, MatchingParen(tokens, 4))
	assert.Equal(t, -1, MatchingParen(tokens, 0))
	assert.Equal(t, -1, MatchingParen(Tokenize("(a, (b)"), 0))
}

func TestSplitCommasTracksDepth(t *testing.T) {
	parts := SplitCommas(Tokenize("id int, price decimal(10,2), tags enum('a','b'), name text"))
	require.Len(t, parts, 4)
	assert.Equal(t, []string{"price", "decimal", "(", "10", ",", "2", ")"}, texts(parts[1]))
	assert.Equal(t, []string{"name", "text"}, texts(parts[3]))
}

func TestSplitCommasKeepsEmptySegments(t *testing.T) {
	parts := SplitCommas(Tokenize("a,,b,"))
	require.Len(t, parts, 4)
	assert.Empty(t, parts[1])
	assert.Empty(t, parts[3])
	assert.Nil(t, SplitCommas(nil))
}

func TestParenBalance(t *testing.T) {
	assert.Equal(t, 0, ParenBalance(Tokenize("f(a, (b))")))
	assert.Equal(t, 1, ParenBalance(Tokenize("WHERE (a = 1")))
	assert.Equal(t, -2, ParenBalance(Tokenize("a))")))
	assert.Equal(t, 0, ParenBalance(Tokenize("'(' || \"(\"")))
}

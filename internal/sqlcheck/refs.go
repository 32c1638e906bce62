// Package sqlcheck validates SQL statements against a known schema.
//
// Checks work on the token stream from sqltoken, not on a parse tree: the
// syntax layer looks for balance problems, the reference layer compares
// FROM/JOIN targets with a schema-name map and the logic layer flags risky
// patterns such as an unbounded DELETE.
package sqlcheck

import (
	"sort"
	"strings"

	"github.com/duckmesh/schemagate/internal/sqltoken"
)

// fromSpanEnd lists the words that close the comma-separated table list of
// a FROM clause.
var fromSpanEnd = []string{
	"WHERE", "GROUP", "ORDER", "LIMIT", "JOIN", "HAVING", "UNION", "INTERSECT", "EXCEPT",
	"OFFSET", "FETCH", "WINDOW", "INNER", "LEFT", "RIGHT", "FULL", "CROSS", "NATURAL",
	"ON", "USING", "RETURNING", "SELECT",
}

// Functions whose arguments use FROM as a separator, e.g. EXTRACT(YEAR FROM ts).
var fromArgumentFuncs = []string{"EXTRACT", "SUBSTRING", "TRIM", "OVERLAY", "POSITION"}

// ExtractTableRefs returns the sorted, lowercase table names sql reads from
// or joins. Only the first FROM list is expanded across commas; later comma
// lists contribute their first table only.
func ExtractTableRefs(sql string) []string {
	return tableRefs(sqltoken.Tokenize(sql))
}

func tableRefs(tokens []sqltoken.Token) []string {
	ctes := cteNames(tokens)
	found := make(map[string]struct{})
	add := func(name string) {
		if name == "" {
			return
		}
		if _, isCTE := ctes[name]; isCTE {
			return
		}
		found[name] = struct{}{}
	}

	firstFrom := -1
	for _, i := range tableKeywordIndexes(tokens) {
		if firstFrom < 0 && tokens[i].IsWord("FROM") {
			firstFrom = i
		}
		add(nameAt(tokens, i+1))
	}

	if firstFrom >= 0 {
		end := fromSpanClose(tokens, firstFrom+1)
		for _, segment := range sqltoken.SplitCommas(tokens[firstFrom+1 : end]) {
			if len(segment) > 0 {
				add(nameAt(segment, 0))
			}
		}
	}

	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// tableKeywordIndexes returns the positions of FROM and JOIN keywords that
// introduce a table. FROM used inside EXTRACT(...) and friends, or as part of
// IS DISTINCT FROM, is left out.
func tableKeywordIndexes(tokens []sqltoken.Token) []int {
	var out []int
	var argStack []bool
	for i, tok := range tokens {
		switch tok.Kind {
		case sqltoken.LParen:
			isArgs := i > 0 && tokens[i-1].IsWord(fromArgumentFuncs...)
			argStack = append(argStack, isArgs)
			continue
		case sqltoken.RParen:
			if len(argStack) > 0 {
				argStack = argStack[:len(argStack)-1]
			}
			continue
		}

		if tok.IsWord("JOIN") {
			out = append(out, i)
			continue
		}
		if !tok.IsWord("FROM") {
			continue
		}
		if len(argStack) > 0 && argStack[len(argStack)-1] {
			continue
		}
		if i > 0 && tokens[i-1].IsWord("DISTINCT") && i > 1 && tokens[i-2].IsWord("IS", "NOT") {
			continue
		}
		out = append(out, i)
	}
	return out
}

// fromSpanClose returns the end (exclusive) of the table list starting at
// start.
func fromSpanClose(tokens []sqltoken.Token, start int) int {
	depth := 0
	for i := start; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Kind == sqltoken.LParen:
			depth++
		case tok.Kind == sqltoken.RParen:
			if depth == 0 {
				return i
			}
			depth--
		case depth == 0 && tok.Kind == sqltoken.Semicolon:
			return i
		case depth == 0 && tok.IsWord(fromSpanEnd...):
			return i
		}
	}
	return len(tokens)
}

// nameAt reads a possibly qualified table name at tokens[i] and returns its
// last part, unquoted and lowercased. Subqueries and keywords yield "".
func nameAt(tokens []sqltoken.Token, i int) string {
	if i >= len(tokens) || !tokens[i].IsName() {
		return ""
	}
	name := tokens[i]
	for i+2 < len(tokens) && tokens[i+1].Kind == sqltoken.Dot && tokens[i+2].IsName() {
		i += 2
		name = tokens[i]
	}
	return strings.ToLower(strings.TrimSpace(name.Value()))
}

// cteNames returns the names bound by a leading WITH clause.
func cteNames(tokens []sqltoken.Token) map[string]struct{} {
	names := make(map[string]struct{})
	if len(tokens) == 0 || !tokens[0].IsWord("WITH") {
		return names
	}
	i := 1
	if i < len(tokens) && tokens[i].IsWord("RECURSIVE") {
		i++
	}
	for i < len(tokens) && tokens[i].IsName() {
		name := strings.ToLower(tokens[i].Value())
		i++
		if i < len(tokens) && tokens[i].Kind == sqltoken.LParen {
			i = sqltoken.MatchingParen(tokens, i) + 1
			if i == 0 {
				return names
			}
		}
		if i >= len(tokens) || !tokens[i].IsWord("AS") {
			return names
		}
		i++
		for i < len(tokens) && tokens[i].IsWord("NOT", "MATERIALIZED") {
			i++
		}
		if i >= len(tokens) || tokens[i].Kind != sqltoken.LParen {
			return names
		}
		names[name] = struct{}{}
		i = sqltoken.MatchingParen(tokens, i) + 1
		if i == 0 || i >= len(tokens) || tokens[i].Kind != sqltoken.Comma {
			return names
		}
		i++
	}
	return names
}

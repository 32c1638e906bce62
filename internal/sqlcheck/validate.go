package sqlcheck

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/schemagate/internal/sqltoken"
)

// Layer names, used as metric labels and in logs.
const (
	LayerSyntax     = "syntax"
	LayerReferences = "references"
	LayerLogic      = "logic"
)

const warnReferencesSkipped = "schema metadata unavailable; reference check skipped"

// LayerResult is the outcome of one check layer.
type LayerResult struct {
	Valid    bool     `json:"valid" yaml:"valid"`
	Errors   []string `json:"errors" yaml:"errors"`
	Warnings []string `json:"warnings" yaml:"warnings"`
}

func newLayer() LayerResult {
	return LayerResult{Valid: true, Errors: []string{}, Warnings: []string{}}
}

func (l *LayerResult) fail(format string, args ...any) {
	l.Valid = false
	l.Errors = append(l.Errors, fmt.Sprintf(format, args...))
}

func (l *LayerResult) warn(format string, args ...any) {
	l.Warnings = append(l.Warnings, fmt.Sprintf(format, args...))
}

// Report is the result of validating one statement. FormattedSQL is always
// set; it falls back to the input when formatting fails.
type Report struct {
	Valid        bool        `json:"valid" yaml:"valid"`
	Syntax       LayerResult `json:"syntax" yaml:"syntax"`
	References   LayerResult `json:"references" yaml:"references"`
	Logic        LayerResult `json:"logic" yaml:"logic"`
	FormattedSQL string      `json:"formatted_sql" yaml:"formatted_sql"`
	Tables       []string    `json:"tables" yaml:"tables"`
}

// Layers returns the three layer results keyed by layer name.
func (r Report) Layers() map[string]LayerResult {
	return map[string]LayerResult{
		LayerSyntax:     r.Syntax,
		LayerReferences: r.References,
		LayerLogic:      r.Logic,
	}
}

type Options struct {
	// StrictLogic makes logic-layer errors, such as DELETE without WHERE,
	// invalidate the report. By default they are reported but do not affect
	// Valid.
	StrictLogic bool
}

// Validator runs the syntax, reference and logic layers over a statement.
// The zero value is ready to use and safe for concurrent calls.
type Validator struct {
	Options Options
	Logger  *slog.Logger
}

// Validate checks sql. schemaNames maps lowercase table names to their
// columns; when it is nil or empty the reference layer passes with a
// warning.
func (v Validator) Validate(sql string, schemaNames map[string][]string) Report {
	tokens := sqltoken.Tokenize(sql)

	report := Report{
		Syntax:     checkSyntax(tokens),
		Tables:     tableRefs(tokens),
		Logic:      checkLogic(tokens),
		References: newLayer(),
	}
	checkReferences(&report.References, report.Tables, schemaNames)

	formatted, err := Format(sql)
	if err != nil {
		report.Syntax.warn("formatting failed, original text kept: %v", err)
		formatted = sql
	}
	report.FormattedSQL = formatted

	report.Valid = report.Syntax.Valid && report.References.Valid
	if v.Options.StrictLogic {
		report.Valid = report.Valid && report.Logic.Valid
	}

	if v.Logger != nil {
		v.Logger.Debug("sql validated",
			"sql", sql,
			"valid", report.Valid,
			"syntax_errors", len(report.Syntax.Errors),
			"reference_errors", len(report.References.Errors),
			"logic_errors", len(report.Logic.Errors),
		)
	}
	return report
}

// statementVerbs are the leading keywords of a recognizable statement.
var statementVerbs = []string{
	"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER", "WITH", "MERGE",
	"REPLACE", "TRUNCATE", "SHOW", "DESCRIBE", "EXPLAIN", "GRANT", "REVOKE", "USE",
	"BEGIN", "COMMIT", "ROLLBACK", "SET", "VALUES", "CALL",
}

// missingNameAfter lists tokens that cannot follow FROM or JOIN.
var missingNameAfter = []string{
	"WHERE", "GROUP", "ORDER", "LIMIT", "HAVING", "JOIN", "ON", "USING", "UNION",
	"INTERSECT", "EXCEPT", "OFFSET", "WINDOW", "FROM", "INNER", "LEFT", "RIGHT",
	"FULL", "CROSS", "NATURAL",
}

func checkSyntax(tokens []sqltoken.Token) LayerResult {
	layer := newLayer()
	if len(tokens) == 0 {
		layer.fail("empty SQL statement")
		return layer
	}

	if verb := leadingVerb(tokens); verb.Kind == sqltoken.EOF {
		layer.fail("could not determine statement type")
	} else if !verb.IsWord(statementVerbs...) {
		layer.fail("unrecognized statement type %q", verb.Text)
	}

	if balance := sqltoken.ParenBalance(tokens); balance != 0 {
		layer.fail("unmatched parentheses (imbalance: %d)", balance)
	}

	quotes := 0
	for _, tok := range tokens {
		quotes += tok.QuoteCount()
	}
	if quotes%2 != 0 {
		layer.fail("unmatched quotes (quote count: %d)", quotes)
	}

	for _, i := range tableKeywordIndexes(tokens) {
		if i+1 >= len(tokens) {
			layer.fail("missing table name after %s", tokens[i].Upper())
			continue
		}
		next := tokens[i+1]
		if next.Kind == sqltoken.Semicolon || next.Kind == sqltoken.Comma || next.Kind == sqltoken.RParen || next.IsWord(missingNameAfter...) {
			layer.fail("missing table name after %s", tokens[i].Upper())
		}
	}
	return layer
}

// leadingVerb returns the first token after any opening parentheses.
func leadingVerb(tokens []sqltoken.Token) sqltoken.Token {
	for _, tok := range tokens {
		if tok.Kind != sqltoken.LParen {
			return tok
		}
	}
	return sqltoken.Token{Kind: sqltoken.EOF}
}

// statementVerb returns the verb that decides what the statement does. For
// WITH statements it is the first top-level verb after the CTE list.
func statementVerb(tokens []sqltoken.Token) string {
	verb := leadingVerb(tokens)
	if !verb.IsWord("WITH") {
		return verb.Upper()
	}
	depth := 0
	for _, tok := range tokens {
		switch tok.Kind {
		case sqltoken.LParen:
			depth++
		case sqltoken.RParen:
			depth--
		}
		if depth == 0 && tok.IsWord("SELECT", "INSERT", "UPDATE", "DELETE", "MERGE") {
			return tok.Upper()
		}
	}
	return verb.Upper()
}

func checkReferences(layer *LayerResult, tables []string, schemaNames map[string][]string) {
	if len(schemaNames) == 0 {
		layer.warn(warnReferencesSkipped)
		return
	}
	known := make(map[string]struct{}, len(schemaNames))
	for name := range schemaNames {
		known[strings.ToLower(name)] = struct{}{}
	}
	for _, table := range tables {
		if _, ok := known[table]; !ok {
			layer.fail("table %q does not exist in schema", table)
		}
	}
}

func checkLogic(tokens []sqltoken.Token) LayerResult {
	layer := newLayer()

	var hasJoin, hasCondition, hasWhere, hasStar bool
	for i, tok := range tokens {
		switch {
		case tok.IsWord("JOIN"):
			hasJoin = true
		case tok.IsWord("ON", "USING"):
			hasCondition = true
		case tok.IsWord("WHERE"):
			hasWhere = true
		case tok.IsWord("SELECT") && selectsStar(tokens, i+1):
			hasStar = true
		}
	}
	if hasStar {
		layer.warn(warnSelectStar)
	}
	if hasJoin && !hasCondition {
		layer.warn("JOIN without ON condition may produce a cartesian product")
	}

	switch verb := statementVerb(tokens); verb {
	case "DELETE", "UPDATE":
		if !hasWhere {
			layer.fail("%s statement without WHERE clause affects every row", verb)
		}
	}
	return layer
}

const warnSelectStar = "SELECT * returns every column; list the columns you need"

// selectsStar reports whether the select list starting at i is a bare *.
func selectsStar(tokens []sqltoken.Token, i int) bool {
	for i < len(tokens) && tokens[i].IsWord("DISTINCT", "ALL") {
		i++
	}
	return i < len(tokens) && tokens[i].Kind == sqltoken.Star
}

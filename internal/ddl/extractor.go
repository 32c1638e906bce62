package ddl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/duckmesh/schemagate/internal/sqltoken"
)

// ErrNoTables is returned when no statement in the input produced a table.
var ErrNoTables = errors.New("no table structures could be parsed")

// SkippedStatement records a CREATE TABLE statement that was dropped.
type SkippedStatement struct {
	Index  int    `json:"index" yaml:"index"`
	Table  string `json:"table,omitempty" yaml:"table,omitempty"`
	Reason string `json:"reason" yaml:"reason"`
}

// Extraction is the full result of one extraction pass.
type Extraction struct {
	Tables     []TableSchema      `json:"tables" yaml:"tables"`
	Skipped    []SkippedStatement `json:"skipped" yaml:"skipped"`
	Statements int                `json:"statements" yaml:"statements"`
	Candidates int                `json:"candidates" yaml:"candidates"`
}

// Extractor turns DDL text into table descriptions. The zero value is ready
// to use and logs through slog.Default.
type Extractor struct {
	Logger *slog.Logger
}

const (
	reasonNoName         = "missing table name"
	reasonNoColumnBlock  = "missing column definition block"
	reasonUnclosedColumn = "unterminated column definition block"
	reasonNoColumns      = "no columns parsed"
)

// Extract returns the tables defined in text, in statement order. It fails
// only when no table at all could be extracted.
func (e Extractor) Extract(text string) ([]TableSchema, error) {
	result, err := e.ExtractDetailed(text)
	if err != nil {
		return nil, err
	}
	return result.Tables, nil
}

// ExtractDetailed is Extract with diagnostics. The returned Extraction is
// populated even when err is ErrNoTables.
func (e Extractor) ExtractDetailed(text string) (Extraction, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	statements := sqltoken.Statements(sqltoken.Tokenize(text))
	result := Extraction{
		Tables:     []TableSchema{},
		Skipped:    []SkippedStatement{},
		Statements: len(statements),
	}
	for index, statement := range statements {
		start := findCreateTable(statement)
		if start < 0 {
			continue
		}
		result.Candidates++

		table, reason := parseTable(statement[start:])
		if reason != "" {
			result.Skipped = append(result.Skipped, SkippedStatement{Index: index, Table: table.Name, Reason: reason})
			logger.Warn("skipping table definition", "statement_index", index, "table", table.Name, "reason", reason)
			continue
		}
		result.Tables = append(result.Tables, table)
	}

	if len(result.Tables) == 0 {
		return result, fmt.Errorf("%w (scanned %d statements, %d table definitions)", ErrNoTables, result.Statements, result.Candidates)
	}
	return result, nil
}

// findCreateTable returns the index of the TABLE keyword of a
// CREATE [OR REPLACE] [GLOBAL|LOCAL] [TEMP|TEMPORARY|UNLOGGED] TABLE sequence,
// or -1.
func findCreateTable(tokens []sqltoken.Token) int {
	for i, tok := range tokens {
		if !tok.IsWord("CREATE") {
			continue
		}
		for j := i + 1; j < len(tokens); j++ {
			next := tokens[j]
			if next.IsWord("TABLE") {
				return j
			}
			if !next.IsWord("OR", "REPLACE", "GLOBAL", "LOCAL", "TEMP", "TEMPORARY", "UNLOGGED") {
				break
			}
		}
	}
	return -1
}

// parseTable reads a table definition starting at its TABLE keyword. A
// non-empty reason means the statement must be dropped.
func parseTable(tokens []sqltoken.Token) (TableSchema, string) {
	table := TableSchema{
		Columns:     []Column{},
		PrimaryKeys: []string{},
		ForeignKeys: []ForeignKey{},
		Indexes:     []Index{},
	}

	i := 1
	if i+2 < len(tokens) && tokens[i].IsWord("IF") && tokens[i+1].IsWord("NOT") && tokens[i+2].IsWord("EXISTS") {
		i += 3
	}
	if i >= len(tokens) || !isNameToken(tokens[i]) {
		return table, reasonNoName
	}
	name := tokens[i]
	for i+2 < len(tokens) && tokens[i+1].Kind == sqltoken.Dot && isNameToken(tokens[i+2]) {
		i += 2
		name = tokens[i]
	}
	table.Name = strings.ToLower(strings.TrimSpace(name.Value()))
	if table.Name == "" {
		return table, reasonNoName
	}

	open := -1
	for j := i + 1; j < len(tokens); j++ {
		if tokens[j].Kind == sqltoken.LParen {
			open = j
			break
		}
	}
	if open < 0 {
		return table, reasonNoColumnBlock
	}
	closing := sqltoken.MatchingParen(tokens, open)
	if closing < 0 {
		return table, reasonUnclosedColumn
	}

	inlinePK := make([]string, 0)
	for _, entry := range sqltoken.SplitCommas(tokens[open+1 : closing]) {
		if len(entry) == 0 || isTableConstraint(entry) {
			continue
		}
		column, ok := parseColumn(entry)
		if !ok {
			continue
		}
		table.Columns = append(table.Columns, column)
		if column.Has(PrimaryKey) {
			inlinePK = append(inlinePK, column.Name)
		}
	}
	if len(table.Columns) == 0 {
		return table, reasonNoColumns
	}

	table.PrimaryKeys = uniqueStrings(append(inlinePK, tablePrimaryKeys(tokens)...))
	table.Comment = commentAfter(tokens[closing+1:])
	return table, ""
}

func isNameToken(tok sqltoken.Token) bool {
	return tok.Kind == sqltoken.Ident || tok.Kind == sqltoken.QuotedIdent || tok.Kind == sqltoken.Keyword
}

var constraintMarkers = []string{"PRIMARY KEY (", "FOREIGN KEY (", "CONSTRAINT ", "INDEX ", "KEY ("}

// isTableConstraint reports whether a column-block entry is a table-level
// constraint rather than a column definition. A leading constraint word only
// counts when the next token confirms it, so columns named key or primary
// stay columns. String literals are masked so comments cannot trigger a
// match.
func isTableConstraint(entry []sqltoken.Token) bool {
	if startsConstraint(entry) {
		return true
	}

	parts := make([]string, 0, len(entry))
	for _, tok := range entry {
		if tok.Kind == sqltoken.String {
			parts = append(parts, "?")
			continue
		}
		parts = append(parts, tok.Upper())
	}
	normalized := strings.Join(parts, " ") + " "
	for _, marker := range constraintMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func startsConstraint(entry []sqltoken.Token) bool {
	if len(entry) < 2 {
		return false
	}
	first, next := entry[0], entry[1]
	switch {
	case first.IsWord("PRIMARY", "FOREIGN"):
		return next.IsWord("KEY")
	case first.IsWord("UNIQUE", "CHECK"):
		return next.Kind == sqltoken.LParen || next.IsWord("KEY", "INDEX")
	case first.IsWord("EXCLUDE"):
		return next.Kind == sqltoken.LParen || next.IsWord("USING")
	case first.IsWord("FULLTEXT", "SPATIAL"):
		return next.Kind == sqltoken.LParen || next.IsWord("KEY", "INDEX")
	case first.IsWord("KEY", "INDEX"):
		if next.Kind == sqltoken.LParen {
			return true
		}
		// KEY idx_name (col, ...) names an index; key VARCHAR(64) is a
		// column whose type takes a length.
		return len(entry) > 3 && isNameToken(next) && entry[2].Kind == sqltoken.LParen && isNameToken(entry[3])
	}
	return false
}

// parseColumn reads "name type[(...)] [flags...] [COMMENT '...']".
func parseColumn(entry []sqltoken.Token) (Column, bool) {
	if len(entry) < 2 || !isNameToken(entry[0]) {
		return Column{}, false
	}
	name := strings.ToLower(strings.TrimSpace(entry[0].Value()))
	if name == "" {
		return Column{}, false
	}
	if entry[1].Kind != sqltoken.Ident && entry[1].Kind != sqltoken.Keyword && entry[1].Kind != sqltoken.QuotedIdent {
		return Column{}, false
	}

	dataType, rest := readDataType(entry[1:])
	return Column{
		Name:        name,
		DataType:    dataType,
		Constraints: columnConstraints(rest),
		Comment:     commentAfter(rest),
	}, true
}

// readDataType returns the type text and the tokens after it. A
// parenthesized suffix is rendered without spaces, e.g. decimal(10,2).
func readDataType(tokens []sqltoken.Token) (string, []sqltoken.Token) {
	var b strings.Builder
	b.WriteString(tokens[0].Text)
	if len(tokens) < 2 || tokens[1].Kind != sqltoken.LParen {
		return b.String(), tokens[1:]
	}
	end := sqltoken.MatchingParen(tokens, 1)
	if end < 0 {
		end = len(tokens) - 1
	}
	for _, tok := range tokens[1 : end+1] {
		b.WriteString(tok.Text)
	}
	return b.String(), tokens[end+1:]
}

func columnConstraints(tokens []sqltoken.Token) []Constraint {
	found := make(map[Constraint]bool, len(constraintOrder))
	for i, tok := range tokens {
		switch {
		case tok.IsWord("NOT") && i+1 < len(tokens) && tokens[i+1].IsWord("NULL"):
			found[NotNull] = true
		case tok.IsWord("UNIQUE"):
			found[Unique] = true
		case tok.IsWord("PRIMARY") && i+1 < len(tokens) && tokens[i+1].IsWord("KEY"):
			found[PrimaryKey] = true
		case tok.IsWord("AUTO_INCREMENT", "AUTOINCREMENT"):
			found[AutoIncrement] = true
		}
	}
	out := make([]Constraint, 0, len(found))
	for _, flag := range constraintOrder {
		if found[flag] {
			out = append(out, flag)
		}
	}
	return out
}

// tablePrimaryKeys collects the column list of every PRIMARY KEY ( ... )
// clause in the statement.
func tablePrimaryKeys(tokens []sqltoken.Token) []string {
	var out []string
	for i := 0; i+2 < len(tokens); i++ {
		if !tokens[i].IsWord("PRIMARY") || !tokens[i+1].IsWord("KEY") || tokens[i+2].Kind != sqltoken.LParen {
			continue
		}
		end := sqltoken.MatchingParen(tokens, i+2)
		if end < 0 {
			end = len(tokens)
		}
		for _, item := range sqltoken.SplitCommas(tokens[i+3 : end]) {
			if len(item) == 0 || !isNameToken(item[0]) {
				continue
			}
			if name := strings.ToLower(strings.TrimSpace(item[0].Value())); name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

// commentAfter finds COMMENT [=] '...' and returns the unquoted text.
func commentAfter(tokens []sqltoken.Token) string {
	for i, tok := range tokens {
		if !tok.IsWord("COMMENT") {
			continue
		}
		j := i + 1
		if j < len(tokens) && tokens[j].Kind == sqltoken.Operator && tokens[j].Text == "=" {
			j++
		}
		if j < len(tokens) && tokens[j].Kind == sqltoken.String {
			return tokens[j].Value()
		}
	}
	return ""
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

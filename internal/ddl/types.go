// Package ddl extracts table descriptions from CREATE TABLE statements.
//
// It is not a DDL parser. It tokenizes the input, locates each table
// definition and reads its column block with paren-depth tracking, which is
// enough for the subset of dialects schema files are usually written in.
package ddl

// Constraint is a column-level flag recognized by the extractor.
type Constraint string

const (
	NotNull       Constraint = "NOT NULL"
	Unique        Constraint = "UNIQUE"
	PrimaryKey    Constraint = "PRIMARY KEY"
	AutoIncrement Constraint = "AUTO_INCREMENT"
)

// constraintOrder is the order flags are reported in.
var constraintOrder = []Constraint{NotNull, Unique, PrimaryKey, AutoIncrement}

type Column struct {
	Name        string       `json:"name" yaml:"name"`
	DataType    string       `json:"data_type" yaml:"data_type"`
	Constraints []Constraint `json:"constraints" yaml:"constraints"`
	Comment     string       `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Has reports whether the column carries flag.
func (c Column) Has(flag Constraint) bool {
	for _, existing := range c.Constraints {
		if existing == flag {
			return true
		}
	}
	return false
}

// ForeignKey and Index are reserved for richer extractors and are always
// empty today.
type ForeignKey struct {
	Columns    []string `json:"columns" yaml:"columns"`
	RefTable   string   `json:"ref_table" yaml:"ref_table"`
	RefColumns []string `json:"ref_columns" yaml:"ref_columns"`
}

type Index struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
	Unique  bool     `json:"unique" yaml:"unique"`
}

// TableSchema describes one extracted table. Columns is never empty.
type TableSchema struct {
	Name        string       `json:"name" yaml:"name"`
	Columns     []Column     `json:"columns" yaml:"columns"`
	PrimaryKeys []string     `json:"primary_keys" yaml:"primary_keys"`
	ForeignKeys []ForeignKey `json:"foreign_keys" yaml:"foreign_keys"`
	Indexes     []Index      `json:"indexes" yaml:"indexes"`
	Comment     string       `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// ColumnNames returns column names in declaration order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for _, column := range t.Columns {
		names = append(names, column.Name)
	}
	return names
}

// Column returns the named column.
func (t TableSchema) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// SchemaNames builds the table -> column-name map the validator checks
// references against. When a name repeats, the first table wins.
func SchemaNames(tables []TableSchema) map[string][]string {
	out := make(map[string][]string, len(tables))
	for _, table := range tables {
		if _, exists := out[table.Name]; exists {
			continue
		}
		out[table.Name] = table.ColumnNames()
	}
	return out
}

// Dedupe keeps the first table for each name and returns the names that
// were dropped, in input order.
func Dedupe(tables []TableSchema) ([]TableSchema, []string) {
	seen := make(map[string]struct{}, len(tables))
	kept := make([]TableSchema, 0, len(tables))
	var dropped []string
	for _, table := range tables {
		if _, exists := seen[table.Name]; exists {
			dropped = append(dropped, table.Name)
			continue
		}
		seen[table.Name] = struct{}{}
		kept = append(kept, table)
	}
	return kept, dropped
}

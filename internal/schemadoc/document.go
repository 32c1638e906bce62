// Package schemadoc turns extracted tables into searchable index documents
// and into compact text or markdown for prompt context.
package schemadoc

import (
	"fmt"
	"strings"

	"github.com/duckmesh/schemagate/internal/ddl"
)

type Kind string

const (
	KindTable  Kind = "table"
	KindColumn Kind = "column"
)

// Document is one retrievable unit of schema knowledge, scoped to the
// source it was extracted from.
type Document struct {
	ID       string `json:"doc_id"`
	SourceID string `json:"source_id"`
	Kind     Kind   `json:"kind"`
	Table    string `json:"table_name"`
	Column   string `json:"column_name,omitempty"`
	Body     string `json:"body"`
}

// TableDocumentID and ColumnDocumentID build the stable document IDs used
// when a source is re-indexed.
func TableDocumentID(sourceID, table string) string {
	return fmt.Sprintf("%s:table:%s", sourceID, table)
}

func ColumnDocumentID(sourceID, table, column string) string {
	return fmt.Sprintf("%s:column:%s.%s", sourceID, table, column)
}

// Documents returns one table document followed by one document per column
// for every table, in input order. Tables should already be deduplicated; a
// repeated column name keeps its first document.
func Documents(sourceID string, tables []ddl.TableSchema) []Document {
	docs := make([]Document, 0, len(tables)*4)
	seen := make(map[string]struct{})
	for _, table := range tables {
		docs = append(docs, Document{
			ID:       TableDocumentID(sourceID, table.Name),
			SourceID: sourceID,
			Kind:     KindTable,
			Table:    table.Name,
			Body:     TableBody(table),
		})
		for _, column := range table.Columns {
			id := ColumnDocumentID(sourceID, table.Name, column.Name)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			docs = append(docs, Document{
				ID:       id,
				SourceID: sourceID,
				Kind:     KindColumn,
				Table:    table.Name,
				Column:   column.Name,
				Body:     ColumnBody(table.Name, column),
			})
		}
	}
	return docs
}

// TableBody renders "Table: t | Columns: n | Fields: a, b | Primary key: a | Comment: c".
// Empty parts are left out.
func TableBody(table ddl.TableSchema) string {
	parts := []string{
		"Table: " + table.Name,
		fmt.Sprintf("Columns: %d", len(table.Columns)),
	}
	if names := table.ColumnNames(); len(names) > 0 {
		parts = append(parts, "Fields: "+strings.Join(names, ", "))
	}
	if len(table.PrimaryKeys) > 0 {
		parts = append(parts, "Primary key: "+strings.Join(table.PrimaryKeys, ", "))
	}
	if table.Comment != "" {
		parts = append(parts, "Comment: "+table.Comment)
	}
	return strings.Join(parts, " | ")
}

// ColumnBody renders "Table: t | Column: c | Type: ty | Constraints: ... | Comment: ...".
func ColumnBody(table string, column ddl.Column) string {
	parts := []string{
		"Table: " + table,
		"Column: " + column.Name,
		"Type: " + column.DataType,
	}
	if len(column.Constraints) > 0 {
		parts = append(parts, "Constraints: "+joinConstraints(column.Constraints, ", "))
	}
	if column.Comment != "" {
		parts = append(parts, "Comment: "+column.Comment)
	}
	return strings.Join(parts, " | ")
}

func joinConstraints(constraints []ddl.Constraint, sep string) string {
	out := make([]string, len(constraints))
	for i, constraint := range constraints {
		out[i] = string(constraint)
	}
	return strings.Join(out, sep)
}

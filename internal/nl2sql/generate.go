package nl2sql

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/schemadoc"
	"github.com/duckmesh/schemagate/internal/sqlcheck"
)

const errNoSQLExtracted = "could not extract SQL from model response"

// Reference describes one table the generated SQL touches.
type Reference struct {
	Table       string `json:"table"`
	Known       bool   `json:"known"`
	ColumnCount int    `json:"column_count"`
	Comment     string `json:"comment,omitempty"`
}

type Generation struct {
	SQL          string          `json:"sql"`
	FormattedSQL string          `json:"formatted_sql"`
	Valid        bool            `json:"valid"`
	Validation   sqlcheck.Report `json:"validation"`
	Explanation  string          `json:"explanation"`
	References   []Reference     `json:"references"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model"`
}

// Generator asks a Translator for SQL over the given tables and checks the
// answer against those same tables.
type Generator struct {
	Translator Translator
	Validator  sqlcheck.Validator
	Format     schemadoc.Format
	Logger     *slog.Logger
}

func (g Generator) Generate(ctx context.Context, tenantID, prompt string, tables []ddl.TableSchema) (Generation, error) {
	if g.Translator == nil {
		return Generation{}, fmt.Errorf("translator is not configured")
	}
	result, err := g.Translator.Translate(ctx, Request{
		TenantID:        tenantID,
		NaturalLanguage: prompt,
		SchemaContext:   schemadoc.RenderString(g.Format, tables),
	})
	if err != nil {
		return Generation{}, fmt.Errorf("translate: %w", err)
	}

	names := ddl.SchemaNames(tables)
	gen := Generation{
		SQL:         result.SQL,
		Explanation: result.Explanation,
		References:  []Reference{},
		Provider:    result.Provider,
		Model:       result.Model,
	}
	if result.SQL == "" {
		report := g.Validator.Validate("", names)
		report.Syntax.Errors = append([]string{errNoSQLExtracted}, report.Syntax.Errors...)
		gen.Validation = report
		gen.Explanation = result.Raw
		if g.Logger != nil {
			g.Logger.Warn("no sql in model response", "tenant_id", tenantID, "model", result.Model)
		}
		return gen, nil
	}

	report := g.Validator.Validate(result.SQL, names)
	gen.Validation = report
	gen.Valid = report.Valid
	gen.FormattedSQL = report.FormattedSQL
	gen.References = references(report.Tables, tables)
	if g.Logger != nil {
		g.Logger.Info("sql generated", "tenant_id", tenantID, "valid", gen.Valid, "sql", result.SQL, "references", len(gen.References))
	}
	return gen, nil
}

func references(refs []string, tables []ddl.TableSchema) []Reference {
	byName := make(map[string]ddl.TableSchema, len(tables))
	for _, table := range tables {
		if _, seen := byName[table.Name]; !seen {
			byName[table.Name] = table
		}
	}
	out := make([]Reference, 0, len(refs))
	for _, name := range refs {
		table, known := byName[name]
		ref := Reference{Table: name, Known: known}
		if known {
			ref.ColumnCount = len(table.Columns)
			ref.Comment = table.Comment
		}
		out = append(out, ref)
	}
	return out
}

package schemagate

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/sqlcheck"
)

func newValidateCommand(opts Options) *cobra.Command {
	var (
		schemaPath string
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "validate [sql|-]",
		Short: "Check a SQL statement for syntax, references and risky logic",
		Long: `Validate runs three checks over one statement: syntax, table references
against a schema, and logic (DELETE or UPDATE without WHERE, SELECT *).

Without --schema the reference check is skipped with a warning. Logic
findings only invalidate the statement with --strict. The command exits
with status 1 when the statement is invalid.`,
		Example: `  schemagate validate "SELECT id FROM users" --schema schema.sql
  echo "DELETE FROM users" | schemagate validate --strict --format table`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			sql, err := readStatement(cmd, args)
			if err != nil {
				return err
			}
			schemaNames, err := loadSchemaNames(cmd, opts, schemaPath)
			if err != nil {
				return err
			}

			validator := sqlcheck.Validator{Options: sqlcheck.Options{StrictLogic: strict}, Logger: opts.Logger}
			report := validator.Validate(sql, schemaNames)
			if err := renderReport(cmd.OutOrStdout(), format, report); err != nil {
				return err
			}
			if !report.Valid {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "DDL file whose tables the statement is checked against")
	cmd.Flags().BoolVar(&strict, "strict", opts.StrictLogic, "Treat logic findings as errors")
	return cmd
}

func loadSchemaNames(cmd *cobra.Command, opts Options, path string) (map[string][]string, error) {
	if path == "" {
		return nil, nil
	}
	text, err := readSource(cmd, path)
	if err != nil {
		return nil, err
	}
	tables, err := ddl.Extractor{Logger: opts.Logger}.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	tables, _ = ddl.Dedupe(tables)
	return ddl.SchemaNames(tables), nil
}

func renderReport(w io.Writer, format OutputFormat, report sqlcheck.Report) error {
	if done, err := renderStructured(w, format, report); done {
		return err
	}
	layers := []struct {
		name   string
		result sqlcheck.LayerResult
	}{
		{sqlcheck.LayerSyntax, report.Syntax},
		{sqlcheck.LayerReferences, report.References},
		{sqlcheck.LayerLogic, report.Logic},
	}

	switch format {
	case OutputTable, OutputMarkdown:
		rows := make([]table.Row, 0, len(layers))
		for _, layer := range layers {
			rows = append(rows, table.Row{layer.name, layer.result.Valid, strings.Join(layer.result.Errors, "; "), strings.Join(layer.result.Warnings, "; ")})
		}
		markdown := format == OutputMarkdown
		if markdown {
			_, _ = fmt.Fprintf(w, "**valid:** %t\n\n", report.Valid)
		}
		renderGrid(w, table.Row{"Layer", "Valid", "Errors", "Warnings"}, rows, markdown)
		if markdown {
			_, _ = fmt.Fprintf(w, "\n```sql\n%s\n```\n", report.FormattedSQL)
		} else {
			_, _ = fmt.Fprintf(w, "valid: %t\n", report.Valid)
		}
		return nil
	}

	_, _ = fmt.Fprintf(w, "valid: %t\n", report.Valid)
	for _, layer := range layers {
		status := "ok"
		if !layer.result.Valid {
			status = "failed"
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", layer.name, status)
		for _, msg := range layer.result.Errors {
			_, _ = fmt.Fprintf(w, "  error: %s\n", msg)
		}
		for _, msg := range layer.result.Warnings {
			_, _ = fmt.Fprintf(w, "  warning: %s\n", msg)
		}
	}
	if len(report.Tables) > 0 {
		_, _ = fmt.Fprintf(w, "tables: %s\n", strings.Join(report.Tables, ", "))
	}
	_, err := fmt.Fprintf(w, "\n%s\n", report.FormattedSQL)
	return err
}

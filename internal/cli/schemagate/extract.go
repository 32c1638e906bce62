package schemagate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/schemadoc"
)

func newExtractCommand(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file|->",
		Short: "Print the tables defined in a DDL script",
		Long: `Extract reads CREATE TABLE statements and prints every table with its
columns, constraints and comments. Definitions that cannot be read are
skipped and reported on stderr.`,
		Example: `  # Compact listing
  schemagate extract schema.sql

  # Machine-readable, from stdin
  pg_dump --schema-only mydb | schemagate extract - --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			text, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}

			result, err := ddl.Extractor{Logger: opts.Logger}.ExtractDetailed(text)
			for _, skipped := range result.Skipped {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "skipped statement %d %s: %s\n", skipped.Index+1, skipped.Table, skipped.Reason)
			}
			if errors.Is(err, ddl.ErrNoTables) {
				return &exitError{code: 1, err: err}
			}
			if err != nil {
				return err
			}
			tables, duplicates := ddl.Dedupe(result.Tables)
			for _, name := range duplicates {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "duplicate definition of %s ignored\n", name)
			}
			result.Tables = tables
			return renderExtraction(cmd, format, result)
		},
	}
}

func renderExtraction(cmd *cobra.Command, format OutputFormat, result ddl.Extraction) error {
	w := cmd.OutOrStdout()
	if done, err := renderStructured(w, format, result); done {
		return err
	}
	switch format {
	case OutputTable:
		rows := make([]table.Row, 0)
		for _, t := range result.Tables {
			for _, column := range t.Columns {
				rows = append(rows, table.Row{t.Name, column.Name, column.DataType, joinConstraints(column.Constraints), column.Comment})
			}
		}
		renderGrid(w, table.Row{"Table", "Column", "Type", "Constraints", "Comment"}, rows, false)
		return nil
	case OutputMarkdown:
		return schemadoc.RenderMarkdown(w, result.Tables)
	default:
		return schemadoc.RenderText(w, result.Tables)
	}
}

func joinConstraints(constraints []ddl.Constraint) string {
	parts := make([]string, 0, len(constraints))
	for _, constraint := range constraints {
		parts = append(parts, string(constraint))
	}
	return strings.Join(parts, ", ")
}

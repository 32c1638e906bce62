package schemagate

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/duckmesh/schemagate/internal/sqlcheck"
)

type formatResult struct {
	FormattedSQL string `json:"formatted_sql" yaml:"formatted_sql"`
}

type refsResult struct {
	Tables []string `json:"tables" yaml:"tables"`
}

func newFormatCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "format [sql|-]",
		Short:   "Pretty-print a SQL statement",
		Example: `  schemagate format "select id,name from users where id=1"`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			sql, err := readStatement(cmd, args)
			if err != nil {
				return err
			}
			formatted, err := sqlcheck.Format(sql)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if done, err := renderStructured(w, format, formatResult{FormattedSQL: formatted}); done {
				return err
			}
			switch format {
			case OutputMarkdown:
				_, err = fmt.Fprintf(w, "```sql\n%s\n```\n", formatted)
			case OutputTable:
				renderGrid(w, table.Row{"Formatted SQL"}, []table.Row{{formatted}}, false)
			default:
				_, err = fmt.Fprintln(w, formatted)
			}
			return err
		},
	}
}

func newRefsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refs [sql|-]",
		Short: "List the tables a SQL statement reads from",
		Long: `Refs prints the lower-cased table names a statement reads from or joins,
sorted and without duplicates. CTE names are left out.`,
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
			tables := sqlcheck.ExtractTableRefs(sql)

			w := cmd.OutOrStdout()
			if done, err := renderStructured(w, format, refsResult{Tables: tables}); done {
				return err
			}
			switch format {
			case OutputTable, OutputMarkdown:
				rows := make([]table.Row, 0, len(tables))
				for _, name := range tables {
					rows = append(rows, table.Row{name})
				}
				renderGrid(w, table.Row{"Table"}, rows, format == OutputMarkdown)
			default:
				for _, name := range tables {
					_, _ = fmt.Fprintln(w, name)
				}
			}
			return nil
		},
	}
}

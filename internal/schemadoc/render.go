package schemadoc

import (
	"fmt"
	"io"
	"strings"

	"github.com/duckmesh/schemagate/internal/ddl"
)

// Format selects a prompt-context rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts "text", "markdown" or "md". Empty means text.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported schema format %q", raw)
	}
}

// Render writes tables in the given format.
func Render(w io.Writer, format Format, tables []ddl.TableSchema) error {
	switch format {
	case FormatMarkdown:
		return RenderMarkdown(w, tables)
	default:
		return RenderText(w, tables)
	}
}

// RenderString is Render into a string.
func RenderString(format Format, tables []ddl.TableSchema) string {
	var b strings.Builder
	_ = Render(&b, format, tables)
	return b.String()
}

// RenderText writes a compact listing:
//
//	TABLE users (PK: id) -- registered accounts
//	  id: INT PRIMARY KEY AUTO_INCREMENT
//	  email: VARCHAR(255) NOT NULL UNIQUE -- login address
func RenderText(w io.Writer, tables []ddl.TableSchema) error {
	for i, table := range tables {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		header := "TABLE " + table.Name
		if len(table.PrimaryKeys) > 0 {
			header += fmt.Sprintf(" (PK: %s)", strings.Join(table.PrimaryKeys, ", "))
		}
		if table.Comment != "" {
			header += " -- " + table.Comment
		}
		if _, err := fmt.Fprintln(w, header); err != nil {
			return err
		}
		for _, column := range table.Columns {
			line := fmt.Sprintf("  %s: %s", column.Name, column.DataType)
			if len(column.Constraints) > 0 {
				line += " " + joinConstraints(column.Constraints, " ")
			}
			if column.Comment != "" {
				line += " -- " + column.Comment
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenderMarkdown writes one section per table with a column list.
func RenderMarkdown(w io.Writer, tables []ddl.TableSchema) error {
	var b strings.Builder
	b.WriteString("# Database Schema\n\n")
	for _, table := range tables {
		fmt.Fprintf(&b, "## %s\n\n", table.Name)
		if table.Comment != "" {
			fmt.Fprintf(&b, "%s\n\n", table.Comment)
		}
		b.WriteString("### Columns\n\n")
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "- **%s:** %s", column.Name, column.DataType)
			if flags := markdownFlags(table, column); flags != "" {
				b.WriteString(", " + flags)
			}
			if column.Comment != "" {
				b.WriteString(" (" + column.Comment + ")")
			}
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func markdownFlags(table ddl.TableSchema, column ddl.Column) string {
	var flags []string
	for _, pk := range table.PrimaryKeys {
		if pk == column.Name {
			flags = append(flags, "PK")
			break
		}
	}
	for _, constraint := range column.Constraints {
		if constraint == ddl.PrimaryKey {
			continue
		}
		flags = append(flags, string(constraint))
	}
	return strings.Join(flags, ", ")
}

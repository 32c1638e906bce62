package schemagate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputJSON     OutputFormat = "json"
	OutputYAML     OutputFormat = "yaml"
	OutputTable    OutputFormat = "table"
	OutputText     OutputFormat = "text"
	OutputMarkdown OutputFormat = "markdown"
)

var outputFormats = []OutputFormat{OutputJSON, OutputYAML, OutputTable, OutputText, OutputMarkdown}

func outputNames() []string {
	names := make([]string, 0, len(outputFormats))
	for _, format := range outputFormats {
		names = append(names, string(format))
	}
	return names
}

// ParseOutputFormat accepts the format names case-insensitively, plus the
// aliases yml and md.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	case "yaml", "yml":
		return OutputYAML, nil
	case "table":
		return OutputTable, nil
	case "markdown", "md":
		return OutputMarkdown, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want %s)", raw, strings.Join(outputNames(), "|"))
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// renderGrid writes rows as a box table, or as a Markdown table when
// markdown is set.
func renderGrid(w io.Writer, header table.Row, rows []table.Row, markdown bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	t.AppendRows(rows)
	if markdown {
		t.RenderMarkdown()
		return
	}
	t.Render()
}

// renderStructured handles the formats that serialize v directly and reports
// whether it did.
func renderStructured(w io.Writer, format OutputFormat, v any) (bool, error) {
	switch format {
	case OutputJSON:
		return true, renderJSON(w, v)
	case OutputYAML:
		return true, renderYAML(w, v)
	}
	return false, nil
}

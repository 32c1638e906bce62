package schemagate

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// readSource returns the contents of path, or stdin when path is "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// readStatement takes the SQL from the single argument, or from stdin when
// the argument is absent or "-".
func readStatement(cmd *cobra.Command, args []string) (string, error) {
	var sql string
	if len(args) == 1 && args[0] != "-" {
		sql = args[0]
	} else {
		text, err := readSource(cmd, "-")
		if err != nil {
			return "", err
		}
		sql = text
	}
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return "", fmt.Errorf("no SQL given")
	}
	return sql, nil
}

// Package schemagate is the offline command-line tool. It runs extraction,
// validation and formatting locally without a server.
package schemagate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var Version = "0.1.0"

// Options carries process-level dependencies into the command tree.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// StrictLogic is the default for validate --strict.
	StrictLogic bool
}

// exitError ends a command with a specific exit code. A nil err means the
// command already wrote everything it had to say.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd(opts Options) *cobra.Command {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rootCmd := &cobra.Command{
		Use:   "schemagate",
		Short: "Extract table schemas from DDL and check SQL against them",
		Long: `schemagate reads CREATE TABLE scripts, prints the tables it finds,
and validates, formats or inspects SQL statements against that schema.

Every command works offline. Use schemagatectl to talk to a running server.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("format", "f", string(OutputText), "Output format (json|yaml|table|text|markdown)")
	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return outputNames(), cobra.ShellCompDirectiveNoFileComp
	})

	if opts.Stdin != nil {
		rootCmd.SetIn(opts.Stdin)
	}
	if opts.Stdout != nil {
		rootCmd.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		rootCmd.SetErr(opts.Stderr)
	}

	rootCmd.AddCommand(newExtractCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newFormatCommand())
	rootCmd.AddCommand(newRefsCommand())
	return rootCmd
}

// Run executes the command tree and returns the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	rootCmd := NewRootCmd(opts)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", exit.err)
		}
		return exit.code
	}
	_, _ = fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	if isUsageError(err) {
		return 2
	}
	return 1
}

// isUsageError matches the flag and argument errors cobra returns before a
// command runs.
func isUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires ", "invalid argument", "flag needs an argument", "unsupported output format"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func outputFormat(cmd *cobra.Command) (OutputFormat, error) {
	raw, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", err
	}
	return ParseOutputFormat(raw)
}

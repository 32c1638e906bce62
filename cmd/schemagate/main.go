package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/schemagate/internal/cli/schemagate"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("schemagate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	// Diagnostics go to stderr; keep them to warnings unless asked otherwise.
	if _, ok := os.LookupEnv("SCHEMAGATE_LOG_LEVEL"); !ok {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	if _, ok := os.LookupEnv("SCHEMAGATE_LOG_JSON"); !ok {
		cfg.Observability.LogJSON = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := schemagate.Run(ctx, os.Args[1:], schemagate.Options{
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Logger:      observability.NewLogger(cfg, os.Stderr),
		StrictLogic: cfg.Validation.StrictLogic,
	})
	stop()
	os.Exit(code)
}

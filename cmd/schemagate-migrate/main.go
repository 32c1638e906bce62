package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/duckmesh/schemagate/internal/auth"
	catalogpostgres "github.com/duckmesh/schemagate/internal/catalog/postgres"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/migrations"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	issueKey := flag.String("issue-key", "", "issue an API key instead of migrating: tenant:role|role")
	flag.Parse()

	cfg, err := config.LoadFromEnv("schemagate-migrate")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Catalog.DSN == "" {
		fmt.Fprintln(os.Stderr, "SCHEMAGATE_CATALOG_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfigFromConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "database open error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if *issueKey != "" {
		tenant, roles, ok := strings.Cut(*issueKey, ":")
		if !ok {
			fmt.Fprintln(os.Stderr, "-issue-key must look like tenant:role|role")
			os.Exit(1)
		}
		secret, key, err := auth.IssueAPIKey(ctx, catalogpostgres.NewRepository(db), tenant, strings.Split(roles, "|"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue api key failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("key_id=%s tenant_id=%s role=%s\n%s\n", key.KeyID, key.TenantID, key.Role, secret)
		return
	}

	runner := migrations.NewRunner()
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration up failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("applied %d migration(s)\n", applied)
	case "down":
		applied, err := runner.Down(ctx, db, *steps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("rolled back %d migration(s)\n", applied)
	case "status":
		status, err := runner.Status(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "migration status failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("current=%d applied=%d pending=%v\n", status.Current(), len(status.Applied), status.Pending)
		if len(status.Pending) == 0 {
			if err := migrations.Verify(ctx, db); err != nil {
				fmt.Fprintf(os.Stderr, "schema check failed: %v\n", err)
				os.Exit(1)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
}

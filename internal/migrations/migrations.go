// Package migrations applies the embedded catalog schema and checks that the
// applied schema still matches what the catalog code expects.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/duckmesh/schemagate/internal/catalog"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "schemagate_schema_migrations"

// lockKey serializes concurrent migrators on the catalog database.
const lockKey int64 = 0x5343484d47415445

var migrationNamePattern = regexp.MustCompile(`^([0-9]+)_.+\.(up|down)\.sql$`)

// SourceStatuses lists the source_status enum labels in declaration order.
var SourceStatuses = []catalog.SourceStatus{
	catalog.SourcePending,
	catalog.SourceParsing,
	catalog.SourceReady,
	catalog.SourceError,
}

type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

type migration struct {
	Version int64
	UpSQL   string
	DownSQL string
}

// Status reports which embedded migrations are applied.
type Status struct {
	Applied []int64
	Pending []int64
}

// Current is the highest applied version, or 0.
func (s Status) Current() int64 {
	if len(s.Applied) == 0 {
		return 0
	}
	return s.Applied[len(s.Applied)-1]
}

// Up applies pending migrations in version order, at most steps of them
// when steps > 0. Once nothing is pending it verifies the schema.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}

	runCount := 0
	pending := 0
	for _, item := range migrations {
		if slices.Contains(applied, item.Version) {
			continue
		}
		if steps > 0 && runCount >= steps {
			pending++
			continue
		}
		ran, err := runMigration(ctx, db, item.Version, item.UpSQL, true)
		if err != nil {
			return runCount, err
		}
		if ran {
			runCount++
		}
	}
	if pending > 0 {
		return runCount, nil
	}
	if err := Verify(ctx, db); err != nil {
		return runCount, err
	}
	return runCount, nil
}

func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	if steps <= 0 {
		steps = 1
	}

	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return 0, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return 0, err
	}
	applied, err := appliedVersions(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}

	lookup := make(map[int64]migration, len(migrations))
	for _, item := range migrations {
		lookup[item.Version] = item
	}

	runCount := 0
	for _, version := range applied {
		if runCount >= steps {
			break
		}
		item, ok := lookup[version]
		if !ok {
			return runCount, fmt.Errorf("applied migration %d is missing from source", version)
		}
		ran, err := runMigration(ctx, db, item.Version, item.DownSQL, false)
		if err != nil {
			return runCount, err
		}
		if ran {
			runCount++
		}
	}
	return runCount, nil
}

// Status compares the applied versions with the embedded migrations.
func (r *Runner) Status(ctx context.Context, db *sql.DB) (Status, error) {
	migrations, err := loadMigrations(r.fsys)
	if err != nil {
		return Status{}, err
	}
	if err := ensureMigrationTable(ctx, db); err != nil {
		return Status{}, err
	}
	applied, err := appliedVersions(ctx, db, "ASC")
	if err != nil {
		return Status{}, err
	}
	status := Status{Applied: applied}
	for _, item := range migrations {
		if !slices.Contains(applied, item.Version) {
			status.Pending = append(status.Pending, item.Version)
		}
	}
	return status, nil
}

// Verify checks that the source_status enum carries exactly the statuses the
// catalog writes. A drifted enum makes status updates fail at runtime.
func Verify(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `
SELECT e.enumlabel
FROM pg_enum e
JOIN pg_type t ON t.oid = e.enumtypid
WHERE t.typname = 'source_status'
ORDER BY e.enumsortorder`)
	if err != nil {
		return fmt.Errorf("query source_status labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return fmt.Errorf("scan source_status label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate source_status labels: %w", err)
	}
	return checkStatusLabels(labels)
}

func checkStatusLabels(labels []string) error {
	if len(labels) == 0 {
		return fmt.Errorf("source_status enum is missing")
	}
	want := make([]string, 0, len(SourceStatuses))
	for _, status := range SourceStatuses {
		want = append(want, string(status))
	}
	if !slices.Equal(labels, want) {
		return fmt.Errorf("source_status enum is (%s), want (%s)", strings.Join(labels, ", "), strings.Join(want, ", "))
	}
	return nil
}

func ensureMigrationTable(ctx context.Context, db *sql.DB) error {
	query := `
CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

// runMigration applies or rolls back one version under a transaction-scoped
// advisory lock. It reports false when another migrator got there first.
func runMigration(ctx context.Context, db *sql.DB, version int64, script string, up bool) (bool, error) {
	verb := "apply"
	if !up {
		verb = "rollback"
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s tx: %w", verb, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}
	var present bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+migrationTable+` WHERE version = $1)`, version).Scan(&present); err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	if present == up {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return false, fmt.Errorf("%s migration %d: %w", verb, version, err)
	}
	bookkeeping := `INSERT INTO ` + migrationTable + ` (version) VALUES ($1)`
	if !up {
		bookkeeping = `DELETE FROM ` + migrationTable + ` WHERE version = $1`
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, version); err != nil {
		return false, fmt.Errorf("record migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s %d: %w", verb, version, err)
	}
	return true, nil
}

func appliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}
	return versions, nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql")
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}

	items := map[int64]migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := path.Base(entry.Name())
		matches := migrationNamePattern.FindStringSubmatch(base)
		if len(matches) != 3 {
			continue
		}
		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version for %q: %w", base, err)
		}
		script, err := fs.ReadFile(fsys, path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", entry.Name(), err)
		}

		item := items[version]
		item.Version = version
		if matches[2] == "up" {
			item.UpSQL = string(script)
		} else {
			item.DownSQL = string(script)
		}
		items[version] = item
	}

	migrations := make([]migration, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.UpSQL) == "" {
			return nil, fmt.Errorf("migration %d missing up SQL", item.Version)
		}
		if strings.TrimSpace(item.DownSQL) == "" {
			return nil, fmt.Errorf("migration %d missing down SQL", item.Version)
		}
		migrations = append(migrations, item)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

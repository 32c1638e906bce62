package migrations

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCheckStatusLabels(t *testing.T) {
	if err := checkStatusLabels([]string{"pending", "parsing", "ready", "error"}); err != nil {
		t.Fatalf("checkStatusLabels() error = %v", err)
	}
	if err := checkStatusLabels(nil); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Fatalf("checkStatusLabels(nil) error = %v", err)
	}
	err := checkStatusLabels([]string{"pending", "ready", "error"})
	if err == nil || !strings.Contains(err.Error(), "want (pending, parsing, ready, error)") {
		t.Fatalf("checkStatusLabels() error = %v", err)
	}
}

func TestEmbeddedMigrationDeclaresEveryStatus(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	quoted := make([]string, 0, len(SourceStatuses))
	for _, status := range SourceStatuses {
		quoted = append(quoted, "'"+string(status)+"'")
	}
	want := "CREATE TYPE source_status AS ENUM (" + strings.Join(quoted, ", ") + ")"
	if !strings.Contains(items[0].UpSQL, want) {
		t.Fatalf("first migration does not declare %s", want)
	}
}

func TestVerifyReadsSourceStatusEnum(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`FROM pg_enum`).WillReturnRows(sqlmock.NewRows([]string{"enumlabel"}).
		AddRow("pending").AddRow("parsing").AddRow("ready"))

	err = Verify(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "source_status enum is (pending, parsing, ready)") {
		t.Fatalf("Verify() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestRunMigrationSkipsVersionAppliedConcurrently(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectExec(`pg_advisory_xact_lock`).WithArgs(lockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	ran, err := runMigration(context.Background(), db, 1, "CREATE TABLE t ()", true)
	if err != nil || ran {
		t.Fatalf("runMigration() = %v, %v", ran, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestStatusCurrent(t *testing.T) {
	if got := (Status{}).Current(); got != 0 {
		t.Fatalf("Current() = %d", got)
	}
	if got := (Status{Applied: []int64{1, 2}, Pending: []int64{3}}).Current(); got != 2 {
		t.Fatalf("Current() = %d", got)
	}
}

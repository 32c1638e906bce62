//go:build integration

package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/duckmesh/schemagate/internal/catalog"
	catalogpostgres "github.com/duckmesh/schemagate/internal/catalog/postgres"
	"github.com/duckmesh/schemagate/internal/migrations"
	"github.com/duckmesh/schemagate/internal/storage"
	s3store "github.com/duckmesh/schemagate/internal/storage/s3"
)

const integrationDDL = `
CREATE TABLE customers (
  id SERIAL PRIMARY KEY,
  name VARCHAR(100) NOT NULL COMMENT 'display name'
) COMMENT='people who order';
CREATE TABLE orders (
  id BIGINT PRIMARY KEY,
  customer_id INT NOT NULL,
  total DECIMAL(10,2)
);`

func TestServiceProcessOnceIndexesSource(t *testing.T) {
	adminDSN := strings.TrimSpace(os.Getenv("SCHEMAGATE_TEST_CATALOG_DSN"))
	if adminDSN == "" {
		t.Skip("SCHEMAGATE_TEST_CATALOG_DSN is not set")
	}

	testDSN, cleanup := createTemporaryDatabase(t, adminDSN)
	defer cleanup()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := migrations.NewRunner().Up(ctx, db, 0); err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         envOr("SCHEMAGATE_TEST_S3_ENDPOINT", "localhost:9000"),
		Region:           envOr("SCHEMAGATE_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("SCHEMAGATE_TEST_S3_BUCKET", "schemagate-it"),
		AccessKeyID:      envOr("SCHEMAGATE_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("SCHEMAGATE_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "indexer-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("s3store.New() error = %v", err)
	}

	repo := catalogpostgres.NewRepository(db)
	sourceID := fmt.Sprintf("src-%d", time.Now().UnixNano())
	objectPath, err := storage.BuildSourceObjectPath("tenant-idx", sourceID, "shop.sql")
	if err != nil {
		t.Fatalf("BuildSourceObjectPath() error = %v", err)
	}
	if _, err := store.Put(ctx, objectPath, strings.NewReader(integrationDDL), int64(len(integrationDDL)), storage.PutOptions{}); err != nil {
		t.Fatalf("store.Put() error = %v", err)
	}
	if err := repo.EnsureTenant(ctx, "tenant-idx"); err != nil {
		t.Fatalf("EnsureTenant() error = %v", err)
	}
	if _, err := repo.CreateSource(ctx, catalog.CreateSourceInput{
		SourceID:   sourceID,
		TenantID:   "tenant-idx",
		Filename:   "shop.sql",
		ObjectPath: objectPath,
		SizeBytes:  int64(len(integrationDDL)),
	}); err != nil {
		t.Fatalf("CreateSource() error = %v", err)
	}

	service := &Service{
		Queue:       repo,
		ObjectStore: store,
		Config:      Config{ConsumerID: "indexer-it", ClaimLimit: 10, LeaseSeconds: 30, Workers: 2},
	}
	summary, err := service.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("ProcessOnce() error = %v", err)
	}
	if summary.Ready != 1 {
		t.Fatalf("summary = %#v", summary)
	}

	assertCount(t, db, `SELECT COUNT(*) FROM schema_table WHERE tenant_id = 'tenant-idx'`, 2)
	assertCount(t, db, `SELECT COUNT(*) FROM schema_document WHERE tenant_id = 'tenant-idx'`, 7)
	assertCount(t, db, `SELECT COUNT(*) FROM source WHERE status = 'ready' AND table_count = 2 AND column_count = 5`, 1)

	names, err := repo.ListTables(ctx, "tenant-idx")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	schema := catalog.SchemaNames(names)
	if strings.Join(schema["orders"], ",") != "id,customer_id,total" {
		t.Fatalf("schema = %#v", schema)
	}

	// A second cycle finds nothing left to claim.
	summary, err = service.ProcessOnce(ctx)
	if err != nil || summary.Claimed != 0 {
		t.Fatalf("second ProcessOnce() = %#v, %v", summary, err)
	}
}

func assertCount(t *testing.T, db *sql.DB, query string, want int) {
	t.Helper()
	var got int
	if err := db.QueryRow(query).Scan(&got); err != nil {
		t.Fatalf("query %q error = %v", query, err)
	}
	if got != want {
		t.Fatalf("query %q count = %d, want %d", query, got, want)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func createTemporaryDatabase(t *testing.T, adminDSN string) (string, func()) {
	t.Helper()

	parsed, err := url.Parse(adminDSN)
	if err != nil {
		t.Fatalf("url.Parse(adminDSN) error = %v", err)
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		t.Fatal("admin DSN must include a database name")
	}

	adminDB, err := sql.Open("pgx", adminDSN)
	if err != nil {
		t.Fatalf("sql.Open(adminDSN) error = %v", err)
	}

	name := fmt.Sprintf("schemagate_it_indexer_%d", time.Now().UnixNano())
	if _, err := adminDB.Exec(`CREATE DATABASE ` + name); err != nil {
		t.Fatalf("CREATE DATABASE failed: %v", err)
	}

	testURL := *parsed
	testURL.Path = "/" + name
	testDSN := testURL.String()

	cleanup := func() {
		defer func() { _ = adminDB.Close() }()
		if _, err := adminDB.Exec(`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1`, name); err != nil {
			t.Fatalf("terminate test db sessions: %v", err)
		}
		if _, err := adminDB.Exec(`DROP DATABASE ` + name); err != nil {
			t.Fatalf("DROP DATABASE failed: %v", err)
		}
	}
	return testDSN, cleanup
}

package catalog

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/schemadoc"
)

var (
	ErrNotFound       = errors.New("catalog: not found")
	ErrSourceNotReady = errors.New("catalog: source not ready")
	// ErrLeaseLost means the source is no longer leased to the caller.
	ErrLeaseLost = errors.New("catalog: source lease lost")
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	EnsureTenant(ctx context.Context, tenantID string) error
	GetTenant(ctx context.Context, tenantID string) (Tenant, error)
	CreateSource(ctx context.Context, in CreateSourceInput) (Source, error)
	GetSource(ctx context.Context, tenantID, sourceID string) (Source, error)
	ListSources(ctx context.Context, tenantID string) ([]Source, error)
	DeleteSource(ctx context.Context, tenantID, sourceID string) (bool, error)
	ListTables(ctx context.Context, tenantID string) ([]IndexedTable, error)
	ListSourceTables(ctx context.Context, tenantID, sourceID string) ([]IndexedTable, error)
	GetTable(ctx context.Context, tenantID, tableName string) (IndexedTable, error)
	SearchDocuments(ctx context.Context, in SearchDocumentsInput) ([]DocumentMatch, error)
}

type Tenant struct {
	TenantID  string
	Name      string
	Status    string
	CreatedAt time.Time
}

// APIKey is an issued key. Only the SHA-256 digest of the secret is stored.
type APIKey struct {
	KeyID     string
	TenantID  string
	KeyHash   string
	Role      string
	CreatedAt time.Time
}

type SourceStatus string

const (
	SourcePending SourceStatus = "pending"
	SourceParsing SourceStatus = "parsing"
	SourceReady   SourceStatus = "ready"
	SourceError   SourceStatus = "error"
)

// Source is an uploaded DDL file and its indexing state.
type Source struct {
	SourceID      string
	TenantID      string
	Filename      string
	ObjectPath    string
	SizeBytes     int64
	Status        SourceStatus
	ErrorMessage  string
	TableCount    int
	ColumnCount   int
	DocumentCount int
	UploadedAt    time.Time
	ParsedAt      *time.Time
}

// IndexedTable is a table extracted from a ready source.
type IndexedTable struct {
	TableID  int64
	SourceID string
	TenantID string
	Position int
	Schema   ddl.TableSchema
	ParsedAt time.Time
}

type DocumentMatch struct {
	Document schemadoc.Document
	Score    int
}

type CreateSourceInput struct {
	SourceID   string
	TenantID   string
	Filename   string
	ObjectPath string
	SizeBytes  int64
}

type SearchDocumentsInput struct {
	TenantID string
	Terms    []string
	Kind     schemadoc.Kind
	Limit    int
}

// ReplaceSourceIndexInput carries the full extraction result for a source.
// It replaces every table and document previously indexed for it.
type ReplaceSourceIndexInput struct {
	SourceID   string
	TenantID   string
	LeaseOwner string
	Tables     []ddl.TableSchema
	Documents  []schemadoc.Document
}

// ColumnCount returns the number of columns across tables.
func (in ReplaceSourceIndexInput) ColumnCount() int {
	total := 0
	for _, table := range in.Tables {
		total += len(table.Columns)
	}
	return total
}

// SchemaNames builds the validator's table -> columns map from indexed
// tables.
func SchemaNames(tables []IndexedTable) map[string][]string {
	return ddl.SchemaNames(TableSchemas(tables))
}

// TableSchemas returns the extracted schemas sorted by table name.
func TableSchemas(tables []IndexedTable) []ddl.TableSchema {
	out := make([]ddl.TableSchema, 0, len(tables))
	for _, table := range tables {
		out = append(out, table.Schema)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

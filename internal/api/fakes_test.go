package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/nl2sql"
	"github.com/duckmesh/schemagate/internal/storage"
)

type inMemoryCatalog struct {
	mu        sync.Mutex
	tenants   map[string]catalog.Tenant
	sources   map[string]catalog.Source
	tables    map[string][]catalog.IndexedTable
	matches   []catalog.DocumentMatch
	lastQuery catalog.SearchDocumentsInput
	failList  error
}

var _ catalog.Repository = (*inMemoryCatalog)(nil)

func newInMemoryCatalog() *inMemoryCatalog {
	return &inMemoryCatalog{
		tenants: map[string]catalog.Tenant{},
		sources: map[string]catalog.Source{},
		tables:  map[string][]catalog.IndexedTable{},
	}
}

// addReadySource registers a parsed source with its tables.
func (c *inMemoryCatalog) addReadySource(tenantID, sourceID string, tables ...ddl.TableSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	c.sources[sourceID] = catalog.Source{
		SourceID:   sourceID,
		TenantID:   tenantID,
		Filename:   sourceID + ".sql",
		ObjectPath: tenantID + "/sources/" + sourceID + "/" + sourceID + ".sql",
		Status:     catalog.SourceReady,
		TableCount: len(tables),
		UploadedAt: now,
		ParsedAt:   &now,
	}
	for i, table := range tables {
		c.tables[sourceID] = append(c.tables[sourceID], catalog.IndexedTable{
			TableID:  int64(i + 1),
			SourceID: sourceID,
			TenantID: tenantID,
			Position: i,
			Schema:   table,
			ParsedAt: now,
		})
	}
}

func (c *inMemoryCatalog) HealthCheck(context.Context) error { return nil }

func (c *inMemoryCatalog) EnsureTenant(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tenants[tenantID]; !ok {
		c.tenants[tenantID] = catalog.Tenant{TenantID: tenantID, Name: tenantID, Status: "active"}
	}
	return nil
}

func (c *inMemoryCatalog) GetTenant(_ context.Context, tenantID string) (catalog.Tenant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tenant, ok := c.tenants[tenantID]
	if !ok {
		return catalog.Tenant{}, catalog.ErrNotFound
	}
	return tenant, nil
}

func (c *inMemoryCatalog) CreateSource(_ context.Context, in catalog.CreateSourceInput) (catalog.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	source := catalog.Source{
		SourceID:   in.SourceID,
		TenantID:   in.TenantID,
		Filename:   in.Filename,
		ObjectPath: in.ObjectPath,
		SizeBytes:  in.SizeBytes,
		Status:     catalog.SourcePending,
		UploadedAt: time.Now().UTC(),
	}
	c.sources[in.SourceID] = source
	return source, nil
}

func (c *inMemoryCatalog) GetSource(_ context.Context, tenantID, sourceID string) (catalog.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	source, ok := c.sources[sourceID]
	if !ok || source.TenantID != tenantID {
		return catalog.Source{}, catalog.ErrNotFound
	}
	return source, nil
}

func (c *inMemoryCatalog) ListSources(_ context.Context, tenantID string) ([]catalog.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Source, 0)
	for _, source := range c.sources {
		if source.TenantID == tenantID {
			out = append(out, source)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

func (c *inMemoryCatalog) DeleteSource(_ context.Context, tenantID, sourceID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	source, ok := c.sources[sourceID]
	if !ok || source.TenantID != tenantID {
		return false, nil
	}
	delete(c.sources, sourceID)
	delete(c.tables, sourceID)
	return true, nil
}

func (c *inMemoryCatalog) ListTables(_ context.Context, tenantID string) ([]catalog.IndexedTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failList != nil {
		return nil, c.failList
	}
	out := make([]catalog.IndexedTable, 0)
	for sourceID, tables := range c.tables {
		if c.sources[sourceID].TenantID != tenantID || c.sources[sourceID].Status != catalog.SourceReady {
			continue
		}
		out = append(out, tables...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Schema.Name < out[j].Schema.Name })
	return out, nil
}

func (c *inMemoryCatalog) ListSourceTables(_ context.Context, tenantID, sourceID string) ([]catalog.IndexedTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sources[sourceID].TenantID != tenantID {
		return []catalog.IndexedTable{}, nil
	}
	return append([]catalog.IndexedTable(nil), c.tables[sourceID]...), nil
}

func (c *inMemoryCatalog) GetTable(ctx context.Context, tenantID, tableName string) (catalog.IndexedTable, error) {
	tables, err := c.ListTables(ctx, tenantID)
	if err != nil {
		return catalog.IndexedTable{}, err
	}
	for _, table := range tables {
		if table.Schema.Name == strings.ToLower(tableName) {
			return table, nil
		}
	}
	return catalog.IndexedTable{}, catalog.ErrNotFound
}

func (c *inMemoryCatalog) SearchDocuments(_ context.Context, in catalog.SearchDocumentsInput) ([]catalog.DocumentMatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastQuery = in
	return c.matches, nil
}

type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

var _ storage.ObjectStore = (*memoryObjectStore)(nil)

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryObjectStore) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = opts.ContentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memoryObjectStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (s *memoryObjectStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

type fakeTranslator struct {
	response string
	err      error
	last     nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.last = req
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	sql, explanation := nl2sql.ExtractSQL(f.response)
	return nl2sql.Result{SQL: sql, Explanation: explanation, Raw: f.response, Provider: "fake", Model: "fake-1"}, nil
}

var errCatalogDown = errors.New("catalog unavailable")

func usersTable() ddl.TableSchema {
	return ddl.TableSchema{
		Name: "users",
		Columns: []ddl.Column{
			{Name: "id", DataType: "INT", Constraints: []ddl.Constraint{ddl.PrimaryKey}},
			{Name: "email", DataType: "VARCHAR(255)", Constraints: []ddl.Constraint{ddl.NotNull}},
		},
		PrimaryKeys: []string{"id"},
		ForeignKeys: []ddl.ForeignKey{},
		Indexes:     []ddl.Index{},
		Comment:     "registered accounts",
	}
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func loadConfig(t testing.TB, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("schemagate-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

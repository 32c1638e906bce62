package maintenance

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/storage"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func TestRunIntegrityCheckOnceSuccess(t *testing.T) {
	svc := &Service{
		Catalog: &fakeCatalog{
			tenants: []catalog.Tenant{{TenantID: "t1", Status: "active"}},
			sources: map[string][]catalog.Source{
				"t1": {
					{SourceID: "s1", TenantID: "t1", ObjectPath: "t1/sources/s1/a.sql", SizeBytes: 100, Status: catalog.SourceReady},
					{SourceID: "s2", TenantID: "t1", ObjectPath: "t1/sources/s2/b.sql", SizeBytes: 200, Status: catalog.SourcePending},
				},
			},
		},
		ObjectStore: &fakeObjectStore{stats: map[string]storage.ObjectInfo{
			"t1/sources/s1/a.sql": {Key: "t1/sources/s1/a.sql", Size: 100},
			"t1/sources/s2/b.sql": {Key: "t1/sources/s2/b.sql", Size: 200},
		}},
	}

	summary, err := svc.RunIntegrityCheckOnce(context.Background(), "")
	if err != nil {
		t.Fatalf("RunIntegrityCheckOnce() error = %v", err)
	}
	if summary.TenantsScanned != 1 || summary.SourcesChecked != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.MissingObjects != 0 || summary.SizeMismatches != 0 || summary.OperationalFailures != 0 {
		t.Fatalf("unexpected issues: %+v", summary)
	}
}

func TestRunIntegrityCheckOnceDetectsIssues(t *testing.T) {
	cat := &fakeCatalog{
		sources: map[string][]catalog.Source{
			"t1": {
				{SourceID: "gone", ObjectPath: "t1/sources/gone/a.sql", SizeBytes: 10, Status: catalog.SourceReady},
				{SourceID: "already", ObjectPath: "t1/sources/already/a.sql", SizeBytes: 10, Status: catalog.SourceError},
				{SourceID: "short", ObjectPath: "t1/sources/short/a.sql", SizeBytes: 10, Status: catalog.SourceReady},
				{SourceID: "flaky", ObjectPath: "t1/sources/flaky/a.sql", SizeBytes: 10, Status: catalog.SourceReady},
			},
		},
	}
	svc := &Service{
		Catalog: cat,
		ObjectStore: &fakeObjectStore{
			stats:    map[string]storage.ObjectInfo{"t1/sources/short/a.sql": {Size: 4}},
			statErrs: map[string]error{"t1/sources/flaky/a.sql": errors.New("connection reset")},
		},
		Config: Config{MarkMissing: true},
	}

	summary, err := svc.RunIntegrityCheckOnce(context.Background(), "t1")
	if err == nil {
		t.Fatal("expected integrity error")
	}
	if !strings.Contains(err.Error(), "found 4 issue(s)") {
		t.Fatalf("error = %v", err)
	}
	if summary.MissingObjects != 2 || summary.SizeMismatches != 1 || summary.OperationalFailures != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.SourcesMarkedFailed != 1 || cat.marked["gone"] != MessageMissingObject {
		t.Fatalf("marked = %v, summary = %+v", cat.marked, summary)
	}
	if _, ok := cat.marked["already"]; ok {
		t.Fatal("source already in error should not be marked again")
	}
}

func TestRunIntegrityCheckOnceReportOnly(t *testing.T) {
	cat := &fakeCatalog{sources: map[string][]catalog.Source{
		"t1": {{SourceID: "gone", ObjectPath: "t1/sources/gone/a.sql", Status: catalog.SourceReady}},
	}}
	svc := &Service{Catalog: cat, ObjectStore: &fakeObjectStore{}}

	summary, err := svc.RunIntegrityCheckOnce(context.Background(), "t1")
	if err == nil || summary.MissingObjects != 1 {
		t.Fatalf("RunIntegrityCheckOnce() = %+v, %v", summary, err)
	}
	if len(cat.marked) != 0 {
		t.Fatalf("marked = %v, want none", cat.marked)
	}
}

func TestRunIntegrityCheckOnceListTenantsFailure(t *testing.T) {
	svc := &Service{Catalog: &fakeCatalog{tenantsErr: errors.New("db down")}, ObjectStore: &fakeObjectStore{}}
	if _, err := svc.RunIntegrityCheckOnce(context.Background(), ""); err == nil || !strings.Contains(err.Error(), "list tenants") {
		t.Fatalf("error = %v", err)
	}
}

func TestRunRetentionOnceDeletesAgedFailedSources(t *testing.T) {
	recent := now.Add(-2 * time.Hour)
	cat := &fakeCatalog{
		tenants: []catalog.Tenant{{TenantID: "t1"}, {TenantID: "t2"}},
		sources: map[string][]catalog.Source{
			"t1": {
				{SourceID: "old-error", ObjectPath: "t1/sources/old-error/a.sql", Status: catalog.SourceError, UploadedAt: now.Add(-48 * time.Hour)},
				{SourceID: "new-error", ObjectPath: "t1/sources/new-error/a.sql", Status: catalog.SourceError, UploadedAt: now.Add(-time.Hour)},
				{SourceID: "old-ready", ObjectPath: "t1/sources/old-ready/a.sql", Status: catalog.SourceReady, UploadedAt: now.Add(-48 * time.Hour)},
				{SourceID: "recently-failed", ObjectPath: "t1/sources/recently-failed/a.sql", Status: catalog.SourceError, UploadedAt: now.Add(-48 * time.Hour), ParsedAt: &recent},
			},
			"t2": {
				{SourceID: "no-object", ObjectPath: "t2/sources/no-object/a.sql", Status: catalog.SourceError, UploadedAt: now.Add(-72 * time.Hour)},
			},
		},
	}
	store := &fakeObjectStore{deleteErrs: map[string]error{"t2/sources/no-object/a.sql": storage.ErrObjectNotFound}}
	svc := &Service{
		Catalog:     cat,
		ObjectStore: store,
		Config:      Config{FailedSourceTTL: 24 * time.Hour},
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunRetentionOnce(context.Background(), "")
	if err != nil {
		t.Fatalf("RunRetentionOnce() error = %v", err)
	}
	if summary.TenantsScanned != 2 || summary.CandidateSources != 2 || summary.SourcesDeleted != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if strings.Join(cat.deleted, ",") != "t1/old-error,t2/no-object" {
		t.Fatalf("deleted = %v", cat.deleted)
	}
	if strings.Join(store.deleted, ",") != "t1/sources/old-error/a.sql" {
		t.Fatalf("objects deleted = %v", store.deleted)
	}
}

func TestRunRetentionOnceKeepsRowWhenObjectDeleteFails(t *testing.T) {
	cat := &fakeCatalog{sources: map[string][]catalog.Source{
		"t1": {{SourceID: "s1", ObjectPath: "t1/sources/s1/a.sql", Status: catalog.SourceError, UploadedAt: now.Add(-30 * 24 * time.Hour)}},
	}}
	svc := &Service{
		Catalog:     cat,
		ObjectStore: &fakeObjectStore{deleteErrs: map[string]error{"t1/sources/s1/a.sql": errors.New("access denied")}},
		Clock:       func() time.Time { return now },
	}

	summary, err := svc.RunRetentionOnce(context.Background(), "t1")
	if err == nil || summary.Failures != 1 || summary.SourcesDeleted != 0 {
		t.Fatalf("RunRetentionOnce() = %+v, %v", summary, err)
	}
	if len(cat.deleted) != 0 {
		t.Fatalf("catalog row deleted despite object failure: %v", cat.deleted)
	}
}

func TestServiceRequiresDependencies(t *testing.T) {
	if _, err := (&Service{}).RunRetentionOnce(context.Background(), "t1"); err == nil {
		t.Fatal("expected error without catalog")
	}
	if _, err := (&Service{Catalog: &fakeCatalog{}}).RunIntegrityCheckOnce(context.Background(), "t1"); err == nil {
		t.Fatal("expected error without object store")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := &Service{Catalog: &fakeCatalog{}, ObjectStore: &fakeObjectStore{}}
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

type fakeCatalog struct {
	tenants    []catalog.Tenant
	tenantsErr error
	sources    map[string][]catalog.Source
	marked     map[string]string
	deleted    []string
}

func (f *fakeCatalog) ListTenants(context.Context) ([]catalog.Tenant, error) {
	return f.tenants, f.tenantsErr
}

func (f *fakeCatalog) ListSources(_ context.Context, tenantID string) ([]catalog.Source, error) {
	return f.sources[tenantID], nil
}

func (f *fakeCatalog) DeleteSource(_ context.Context, tenantID, sourceID string) (bool, error) {
	f.deleted = append(f.deleted, tenantID+"/"+sourceID)
	return true, nil
}

func (f *fakeCatalog) MarkSourceError(_ context.Context, sourceID, message string) error {
	if f.marked == nil {
		f.marked = map[string]string{}
	}
	f.marked[sourceID] = message
	return nil
}

type fakeObjectStore struct {
	stats      map[string]storage.ObjectInfo
	statErrs   map[string]error
	deleteErrs map[string]error
	deleted    []string
}

func (f *fakeObjectStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, errors.New("not implemented")
}

func (f *fakeObjectStore) Get(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjectStore) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	if err := f.statErrs[key]; err != nil {
		return storage.ObjectInfo{}, err
	}
	info, ok := f.stats[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	if err := f.deleteErrs[key]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("schemagate-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.ObjectStore.Bucket != "schemagate" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Indexer.ClaimLimit != 10 || cfg.Indexer.Workers != 4 {
		t.Fatalf("Indexer = %+v", cfg.Indexer)
	}
	if cfg.Sources.MaxUploadBytes != 10<<20 {
		t.Fatalf("Sources.MaxUploadBytes = %d", cfg.Sources.MaxUploadBytes)
	}
	if !reflect.DeepEqual(cfg.Sources.AllowedExtensions, []string{".sql"}) {
		t.Fatalf("Sources.AllowedExtensions = %v", cfg.Sources.AllowedExtensions)
	}
	if cfg.Validation.StrictLogic {
		t.Fatal("Validation.StrictLogic should default to false")
	}
	if cfg.Validation.MaxBatch != 50 || cfg.Validation.Parallelism != 4 {
		t.Fatalf("Validation = %+v", cfg.Validation)
	}
	if cfg.AI.TranslateEnabled {
		t.Fatal("AI.TranslateEnabled should default to false")
	}
	if cfg.AI.SchemaFormat != "text" {
		t.Fatalf("AI.SchemaFormat = %q", cfg.AI.SchemaFormat)
	}
	wantMaintenance := MaintenanceConfig{IntegrityInterval: 15 * time.Minute, RetentionInterval: time.Hour, FailedSourceTTL: 168 * time.Hour}
	if cfg.Maintenance != wantMaintenance {
		t.Fatalf("Maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"SCHEMAGATE_PROFILE": "prod"})
	cfg, err := Load("schemagate-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.ObjectStore.AutoCreateBucket {
		t.Fatal("ObjectStore.AutoCreateBucket should default to false in prod")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"SCHEMAGATE_PROFILE":                        "test",
		"SCHEMAGATE_HTTP_ADDR":                      ":9999",
		"SCHEMAGATE_HTTP_READ_TIMEOUT":              "2s",
		"SCHEMAGATE_LOG_LEVEL":                      "error",
		"SCHEMAGATE_AUTH_REQUIRED":                  "true",
		"SCHEMAGATE_AUTH_STATIC_KEYS":               "k1:t1:schema_reader",
		"SCHEMAGATE_CATALOG_DSN":                    "postgres://example",
		"SCHEMAGATE_SERVICE_NAME":                   "schemagate-custom",
		"SCHEMAGATE_OBJECTSTORE_BUCKET":             "ddl-prod",
		"SCHEMAGATE_OBJECTSTORE_USE_SSL":            "true",
		"SCHEMAGATE_INDEXER_CONSUMER_ID":            "worker-1",
		"SCHEMAGATE_INDEXER_CLAIM_LIMIT":            "25",
		"SCHEMAGATE_INDEXER_LEASE_SECONDS":          "45",
		"SCHEMAGATE_INDEXER_POLL_INTERVAL":          "900ms",
		"SCHEMAGATE_INDEXER_WORKERS":                "8",
		"SCHEMAGATE_SOURCES_MAX_UPLOAD_BYTES":       "2048",
		"SCHEMAGATE_SOURCES_ALLOWED_EXTENSIONS":     " .SQL, .ddl ,",
		"SCHEMAGATE_VALIDATION_STRICT_LOGIC":        "true",
		"SCHEMAGATE_VALIDATION_MAX_BATCH":           "5",
		"SCHEMAGATE_VALIDATION_PARALLELISM":         "2",
		"SCHEMAGATE_AI_TRANSLATE_ENABLED":           "true",
		"SCHEMAGATE_AI_BASE_URL":                    "https://api.example.com",
		"SCHEMAGATE_AI_API_KEY":                     "secret-key",
		"SCHEMAGATE_AI_MODEL":                       "gpt-5.2",
		"SCHEMAGATE_AI_TEMPERATURE":                 "0.3",
		"SCHEMAGATE_AI_TIMEOUT":                     "21s",
		"SCHEMAGATE_AI_SCHEMA_FORMAT":               "markdown",
		"SCHEMAGATE_OBJECTSTORE_AUTO_CREATE_BUCKET": "false",
		"SCHEMAGATE_MAINTENANCE_FAILED_SOURCE_TTL":  "48h",
		"SCHEMAGATE_MAINTENANCE_MARK_MISSING":       "true",
		"SCHEMAGATE_CATALOG_STATEMENT_TIMEOUT":      "15s",
	})
	cfg, err := Load("schemagate-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "schemagate-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:t1:schema_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Catalog.DSN != "postgres://example" || cfg.Catalog.StatementTimeout != 15*time.Second {
		t.Fatalf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.ObjectStore.Bucket != "ddl-prod" || !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	wantIndexer := IndexerConfig{ConsumerID: "worker-1", ClaimLimit: 25, LeaseSeconds: 45, PollInterval: 900 * time.Millisecond, Workers: 8}
	if cfg.Indexer != wantIndexer {
		t.Fatalf("Indexer = %+v, want %+v", cfg.Indexer, wantIndexer)
	}
	if cfg.Sources.MaxUploadBytes != 2048 {
		t.Fatalf("Sources.MaxUploadBytes = %d", cfg.Sources.MaxUploadBytes)
	}
	if !reflect.DeepEqual(cfg.Sources.AllowedExtensions, []string{".sql", ".ddl"}) {
		t.Fatalf("Sources.AllowedExtensions = %v", cfg.Sources.AllowedExtensions)
	}
	if cfg.Validation != (ValidationConfig{StrictLogic: true, MaxBatch: 5, Parallelism: 2}) {
		t.Fatalf("Validation = %+v", cfg.Validation)
	}
	if !cfg.AI.TranslateEnabled {
		t.Fatal("AI.TranslateEnabled = false, want true")
	}
	if cfg.AI.BaseURL != "https://api.example.com" || cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 {
		t.Fatalf("AI.Temperature = %f", cfg.AI.Temperature)
	}
	if cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.AI.SchemaFormat != "markdown" {
		t.Fatalf("AI.SchemaFormat = %q", cfg.AI.SchemaFormat)
	}
	if cfg.Maintenance.FailedSourceTTL != 48*time.Hour || !cfg.Maintenance.MarkMissing {
		t.Fatalf("Maintenance = %+v", cfg.Maintenance)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"SCHEMAGATE_PROFILE": "oops"},
		{"SCHEMAGATE_HTTP_READ_TIMEOUT": "NaN"},
		{"SCHEMAGATE_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"SCHEMAGATE_INDEXER_CLAIM_LIMIT": "oops"},
		{"SCHEMAGATE_INDEXER_WORKERS": "0"},
		{"SCHEMAGATE_SOURCES_MAX_UPLOAD_BYTES": "-1"},
		{"SCHEMAGATE_SOURCES_ALLOWED_EXTENSIONS": " , "},
		{"SCHEMAGATE_VALIDATION_MAX_BATCH": "0"},
		{"SCHEMAGATE_VALIDATION_PARALLELISM": "many"},
		{"SCHEMAGATE_AI_TEMPERATURE": "bad"},
		{"SCHEMAGATE_AUTH_REQUIRED": "not-bool"},
		{"SCHEMAGATE_LOG_LEVEL": "verbose"},
		{"SCHEMAGATE_MAINTENANCE_RETENTION_INTERVAL": "0s"},
		{"SCHEMAGATE_MAINTENANCE_MARK_MISSING": "sometimes"},
	}
	for _, env := range tests {
		_, err := Load("schemagate-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/duckmesh/schemagate/internal/catalog"
)

type memoryKeyStore struct {
	tenants []string
	keys    map[string]catalog.APIKey
	err     error
}

func (m *memoryKeyStore) EnsureTenant(_ context.Context, tenantID string) error {
	m.tenants = append(m.tenants, tenantID)
	return nil
}

func (m *memoryKeyStore) CreateAPIKey(_ context.Context, key catalog.APIKey) (catalog.APIKey, error) {
	if m.err != nil {
		return catalog.APIKey{}, m.err
	}
	if m.keys == nil {
		m.keys = map[string]catalog.APIKey{}
	}
	m.keys[key.KeyHash] = key
	return key, nil
}

func (m *memoryKeyStore) LookupAPIKey(_ context.Context, keyHash string) (catalog.APIKey, error) {
	key, ok := m.keys[keyHash]
	if !ok {
		return catalog.APIKey{}, catalog.ErrNotFound
	}
	return key, nil
}

func TestIssueAPIKeyRoundTrip(t *testing.T) {
	store := &memoryKeyStore{}
	secret, key, err := IssueAPIKey(context.Background(), store, " acme ", []string{RoleSchemaReader, RoleSchemaAdmin})
	if err != nil {
		t.Fatalf("IssueAPIKey() error = %v", err)
	}
	if !strings.HasPrefix(secret, "sg_") || len(secret) != len("sg_")+48 {
		t.Fatalf("secret = %q", secret)
	}
	if key.KeyHash == secret || key.KeyHash != HashAPIKey(secret) {
		t.Fatalf("stored hash = %q", key.KeyHash)
	}
	if key.Role != "schema_admin|schema_reader" || key.TenantID != "acme" || key.KeyID == "" {
		t.Fatalf("key = %#v", key)
	}
	if len(store.tenants) != 1 || store.tenants[0] != "acme" {
		t.Fatalf("tenants = %v", store.tenants)
	}

	identity, ok := NewCatalogAPIKeyValidator(store, nil).Validate(context.Background(), secret)
	if !ok || identity.TenantID != "acme" || !identity.HasRole(RoleSchemaAdmin) {
		t.Fatalf("Validate() = %#v, %v", identity, ok)
	}
}

func TestIssueAPIKeyRejectsBadInput(t *testing.T) {
	store := &memoryKeyStore{}
	if _, _, err := IssueAPIKey(context.Background(), store, "", []string{RoleSchemaReader}); err == nil {
		t.Fatal("expected error for empty tenant")
	}
	if _, _, err := IssueAPIKey(context.Background(), store, "acme", []string{"superuser"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if _, _, err := IssueAPIKey(context.Background(), store, "acme", nil); err == nil {
		t.Fatal("expected error without roles")
	}
	if len(store.tenants) != 0 {
		t.Fatalf("tenant created for rejected input: %v", store.tenants)
	}
}

func TestIssueAPIKeyStoreFailure(t *testing.T) {
	store := &memoryKeyStore{err: errors.New("insert failed")}
	secret, _, err := IssueAPIKey(context.Background(), store, "acme", []string{RoleSchemaReader})
	if err == nil || secret != "" {
		t.Fatalf("IssueAPIKey() = %q, %v; want error and no secret", secret, err)
	}
}

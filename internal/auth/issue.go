package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/duckmesh/schemagate/internal/catalog"
)

const apiKeyPrefix = "sg_"

type keyStore interface {
	EnsureTenant(ctx context.Context, tenantID string) error
	CreateAPIKey(ctx context.Context, key catalog.APIKey) (catalog.APIKey, error)
}

// IssueAPIKey creates a key for tenantID with the given roles and returns
// the secret. The secret is not stored and cannot be recovered later.
func IssueAPIKey(ctx context.Context, store keyStore, tenantID string, roles []string) (string, catalog.APIKey, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", catalog.APIKey{}, fmt.Errorf("tenant id is required")
	}
	parsed, err := ParseRoles(strings.Join(roles, "|"))
	if err != nil {
		return "", catalog.APIKey{}, err
	}

	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", catalog.APIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	secret := apiKeyPrefix + hex.EncodeToString(raw)

	if err := store.EnsureTenant(ctx, tenantID); err != nil {
		return "", catalog.APIKey{}, err
	}
	key, err := store.CreateAPIKey(ctx, catalog.APIKey{
		KeyID:    uuid.NewString(),
		TenantID: tenantID,
		KeyHash:  HashAPIKey(secret),
		Role:     strings.Join(parsed, "|"),
	})
	if err != nil {
		return "", catalog.APIKey{}, err
	}
	return secret, key, nil
}

package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/duckmesh/schemagate/internal/catalog"
)

// Roles granted to API keys.
const (
	// RoleSchemaReader may list sources and tables, search documents,
	// validate, format and translate SQL.
	RoleSchemaReader = "schema_reader"
	// RoleSchemaAdmin may also upload and delete DDL sources.
	RoleSchemaAdmin = "schema_admin"
)

var knownRoles = map[string]struct{}{
	RoleSchemaReader: {},
	RoleSchemaAdmin:  {},
}

type Identity struct {
	TenantID string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:tenant:role|role,key2:tenant2:role".
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	entries := strings.Split(spec, ",")
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:tenant:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		tenant := strings.TrimSpace(parts[1])
		if key == "" || tenant == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/tenant", entry)
		}
		roles, err := ParseRoles(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid static key entry %q: %w", entry, err)
		}
		validator.keys[key] = Identity{TenantID: tenant, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

// ParseRoles splits a "|" separated role list, rejecting unknown roles.
func ParseRoles(raw string) ([]string, error) {
	roles := make([]string, 0, 2)
	for _, role := range strings.Split(strings.TrimSpace(raw), "|") {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := knownRoles[role]; !ok {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, errors.New("at least one role is required")
	}
	sort.Strings(roles)
	return roles, nil
}

// HashAPIKey is the digest stored in api_key.key_hash.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

type apiKeyLookup interface {
	LookupAPIKey(ctx context.Context, keyHash string) (catalog.APIKey, error)
}

// CatalogAPIKeyValidator resolves keys issued into the catalog api_key table.
type CatalogAPIKeyValidator struct {
	repo   apiKeyLookup
	logger *slog.Logger
}

func NewCatalogAPIKeyValidator(repo apiKeyLookup, logger *slog.Logger) *CatalogAPIKeyValidator {
	return &CatalogAPIKeyValidator{repo: repo, logger: logger}
}

func (v *CatalogAPIKeyValidator) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	key, err := v.repo.LookupAPIKey(ctx, HashAPIKey(apiKey))
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) && v.logger != nil {
			v.logger.ErrorContext(ctx, "api key lookup failed", "error", err)
		}
		return Identity{}, false
	}
	roles, err := ParseRoles(key.Role)
	if err != nil {
		if v.logger != nil {
			v.logger.WarnContext(ctx, "api key has invalid role", "key_id", key.KeyID, "error", err)
		}
		return Identity{}, false
	}
	return Identity{TenantID: key.TenantID, Roles: roles}, true
}

// ChainValidators tries each validator in order.
func ChainValidators(validators ...APIKeyValidator) APIKeyValidator {
	return validatorChain(validators)
}

type validatorChain []APIKeyValidator

func (c validatorChain) Validate(ctx context.Context, apiKey string) (Identity, bool) {
	for _, validator := range c {
		if validator == nil {
			continue
		}
		if identity, ok := validator.Validate(ctx, apiKey); ok {
			return identity, true
		}
	}
	return Identity{}, false
}

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/duckmesh/schemagate/internal/observability"
)

type contextKey string

const identityKey contextKey = "auth_identity"

// maxAPIKeyLen bounds keys before they reach a validator. Issued keys are
// far shorter.
const maxAPIKeyLen = 256

const (
	reasonMissing   = "missing_key"
	reasonMalformed = "malformed_key"
	reasonInvalid   = "invalid_key"
)

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware resolves the request's API key to a tenant identity. Role
// checks happen per route.
func Middleware(logger *slog.Logger, validator APIKeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, reason := extractAPIKey(r)
			if reason != "" {
				reject(logger, w, r, reason)
				return
			}

			identity, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				reject(logger, w, r, reasonInvalid)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// extractAPIKey reads X-API-Key or an Authorization bearer token. When both
// are sent they must agree.
func extractAPIKey(r *http.Request) (string, string) {
	headerKey := strings.TrimSpace(r.Header.Get("X-API-Key"))
	bearer := ""
	if authorization := strings.TrimSpace(r.Header.Get("Authorization")); authorization != "" {
		scheme, token, ok := strings.Cut(authorization, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", reasonMalformed
		}
		bearer = strings.TrimSpace(token)
	}

	key := headerKey
	switch {
	case headerKey == "" && bearer == "":
		return "", reasonMissing
	case headerKey == "":
		key = bearer
	case bearer != "" && bearer != headerKey:
		return "", reasonMalformed
	}
	if len(key) > maxAPIKeyLen || strings.ContainsAny(key, " \t") {
		return "", reasonMalformed
	}
	return key, ""
}

func reject(logger *slog.Logger, w http.ResponseWriter, r *http.Request, reason string) {
	observability.ObserveAuthFailure(reason)
	if logger != nil && reason != reasonMissing {
		logger.WarnContext(r.Context(), "authentication failed",
			slog.String("trace_id", observability.TraceIDFromContext(r.Context())),
			slog.String("reason", reason),
			slog.String("path", r.URL.Path),
		)
	}

	message := "invalid API key"
	switch reason {
	case reasonMissing:
		message = "missing API key"
	case reasonMalformed:
		message = "malformed API key; send X-API-Key or Authorization: Bearer <key>"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="schemagate"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error_code": "UNAUTHORIZED",
		"message":    message,
		"retryable":  false,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}

package api

import (
	"context"
	"net/http"

	"github.com/duckmesh/schemagate/internal/auth"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/maintenance"
)

// MaintenanceRunner runs one maintenance pass scoped to a tenant.
type MaintenanceRunner interface {
	RunIntegrityCheckOnce(ctx context.Context, tenantID string) (maintenance.IntegritySummary, error)
	RunRetentionOnce(ctx context.Context, tenantID string) (maintenance.RetentionSummary, error)
}

func handleIntegrityCheck(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireMaintenance(deps, w, r)
	if !ok {
		return
	}
	summary, err := deps.Maintenance.RunIntegrityCheckOnce(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTEGRITY_CHECK_FAILED", err.Error(), true, map[string]any{"summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "status": "completed", "summary": summary})
}

func handleRetention(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	tenantID, ok := requireMaintenance(deps, w, r)
	if !ok {
		return
	}
	summary, err := deps.Maintenance.RunRetentionOnce(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RETENTION_FAILED", err.Error(), true, map[string]any{"summary": summary})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "status": "completed", "summary": summary})
}

func requireMaintenance(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	if deps.Maintenance == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "MAINTENANCE_NOT_CONFIGURED", "maintenance service is not configured", false, nil)
		return "", false
	}
	return authorize(w, r, auth.RoleSchemaAdmin)
}

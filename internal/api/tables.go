package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/schemadoc"
)

const (
	defaultDocumentLimit = 20
	maxDocumentLimit     = 100
)

type tableSummary struct {
	Name        string    `json:"table_name"`
	SourceID    string    `json:"source_id"`
	ColumnCount int       `json:"column_count"`
	PrimaryKeys []string  `json:"primary_keys"`
	Comment     string    `json:"comment,omitempty"`
	ParsedAt    time.Time `json:"parsed_at"`
}

func handleListTables(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	tables, err := deps.Catalog.ListTables(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]tableSummary, 0, len(tables))
	for _, table := range tables {
		items = append(items, tableSummary{
			Name:        table.Schema.Name,
			SourceID:    table.SourceID,
			ColumnCount: len(table.Schema.Columns),
			PrimaryKeys: table.Schema.PrimaryKeys,
			Comment:     table.Schema.Comment,
			ParsedAt:    table.ParsedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "tables": items})
}

func handleGetTable(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	tableName := strings.TrimSpace(r.PathValue("table"))
	if tableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table path parameter is required", false, nil)
		return
	}
	table, err := deps.Catalog.GetTable(r.Context(), tenantID, tableName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, map[string]any{"table": tableName})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load table", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": tenantID,
		"source_id": table.SourceID,
		"parsed_at": table.ParsedAt,
		"table":     table.Schema,
	})
}

// handleSchema returns the schema-name map the validator checks against,
// plus the prompt-context rendering of the same tables.
func handleSchema(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	format, err := schemadoc.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FORMAT", err.Error(), false, nil)
		return
	}
	tables, err := deps.Catalog.ListTables(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list tables", true, map[string]any{"details": err.Error()})
		return
	}
	schemas := catalog.TableSchemas(tables)
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   tenantID,
		"table_count": len(schemas),
		"schema":      catalog.SchemaNames(tables),
		"format":      format,
		"context":     schemadoc.RenderString(format, schemas),
	})
}

func handleSearchDocuments(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	query := r.URL.Query()
	terms := strings.Fields(query.Get("q"))
	if len(terms) == 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_REQUIRED", "query parameter q is required", false, nil)
		return
	}

	kind := schemadoc.Kind(strings.ToLower(strings.TrimSpace(query.Get("kind"))))
	switch kind {
	case "", schemadoc.KindTable, schemadoc.KindColumn:
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_KIND", "kind must be table or column", false, nil)
		return
	}

	limit := defaultDocumentLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxDocumentLimit {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 100", false, nil)
			return
		}
		limit = parsed
	}

	matches, err := deps.Catalog.SearchDocuments(r.Context(), catalog.SearchDocumentsInput{
		TenantID: tenantID,
		Terms:    terms,
		Kind:     kind,
		Limit:    limit,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to search documents", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]map[string]any, 0, len(matches))
	for _, match := range matches {
		items = append(items, map[string]any{
			"document": match.Document,
			"score":    match.Score,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "query": query.Get("q"), "matches": items})
}

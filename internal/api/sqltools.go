package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/observability"
	"github.com/duckmesh/schemagate/internal/sqlcheck"
)

// maxStatementBytes bounds JSON bodies of the SQL tools.
const maxStatementBytes = 1 << 20

type validateRequest struct {
	SQL         string              `json:"sql"`
	Statements  []string            `json:"statements"`
	UseCatalog  *bool               `json:"use_catalog"`
	Schema      map[string][]string `json:"schema"`
	StrictLogic *bool               `json:"strict_logic"`
}

type batchResponse struct {
	Valid        bool              `json:"valid"`
	Count        int               `json:"count"`
	SchemaSource string            `json:"schema_source"`
	Reports      []sqlcheck.Report `json:"reports"`
}

type reportResponse struct {
	sqlcheck.Report
	SchemaSource string `json:"schema_source"`
}

func handleValidate(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, readRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var req validateRequest
	if !decodeJSON(w, r, maxStatementBytes, &req) {
		return
	}

	statements := req.Statements
	batch := len(statements) > 0
	switch {
	case batch && strings.TrimSpace(req.SQL) != "":
		writeError(r.Context(), w, http.StatusBadRequest, "AMBIGUOUS_INPUT", "send either sql or statements, not both", false, nil)
		return
	case batch && len(statements) > cfg.Validation.MaxBatch:
		writeError(r.Context(), w, http.StatusBadRequest, "BATCH_TOO_LARGE", "too many statements in one request", false, map[string]any{"max_batch": cfg.Validation.MaxBatch})
		return
	case !batch && strings.TrimSpace(req.SQL) == "":
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql or statements is required", false, nil)
		return
	case !batch:
		statements = []string{req.SQL}
	}

	schemaNames, schemaSource, ok := resolveSchemaNames(deps, w, r, req)
	if !ok {
		return
	}

	validator := sqlcheck.Validator{
		Options: sqlcheck.Options{StrictLogic: cfg.Validation.StrictLogic},
		Logger:  deps.Logger,
	}
	if req.StrictLogic != nil {
		validator.Options.StrictLogic = *req.StrictLogic
	}

	reports, err := validator.ValidateAll(r.Context(), statements, schemaNames, cfg.Validation.Parallelism)
	if err != nil {
		writeFriendlyError(r.Context(), w, http.StatusServiceUnavailable, "VALIDATION_ABORTED", err, true, nil)
		return
	}
	for _, report := range reports {
		observeReport(report)
	}

	if !batch {
		writeJSON(w, http.StatusOK, reportResponse{Report: reports[0], SchemaSource: schemaSource})
		return
	}
	response := batchResponse{Valid: true, Count: len(reports), SchemaSource: schemaSource, Reports: reports}
	for _, report := range reports {
		response.Valid = response.Valid && report.Valid
	}
	writeJSON(w, http.StatusOK, response)
}

// resolveSchemaNames picks the table map to check references against: an
// explicit schema wins, then the tenant catalog unless use_catalog is false.
func resolveSchemaNames(deps Dependencies, w http.ResponseWriter, r *http.Request, req validateRequest) (map[string][]string, string, bool) {
	if req.Schema != nil {
		names := make(map[string][]string, len(req.Schema))
		for table, columns := range req.Schema {
			lowered := make([]string, 0, len(columns))
			for _, column := range columns {
				lowered = append(lowered, strings.ToLower(column))
			}
			names[strings.ToLower(strings.TrimSpace(table))] = lowered
		}
		return names, "request", true
	}
	if req.UseCatalog != nil && !*req.UseCatalog {
		return nil, "none", true
	}
	if deps.Catalog == nil {
		return nil, "none", true
	}
	tenantID, err := tenantFromRequest(r)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnauthorized, "TENANT_REQUIRED", err.Error(), false, nil)
		return nil, "", false
	}
	tables, err := deps.Catalog.ListTables(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load schema", true, map[string]any{"details": err.Error()})
		return nil, "", false
	}
	return catalog.SchemaNames(tables), "catalog", true
}

func observeReport(report sqlcheck.Report) {
	observability.ObserveValidation(report.Valid, map[string]int{
		sqlcheck.LayerSyntax:     len(report.Syntax.Errors),
		sqlcheck.LayerReferences: len(report.References.Errors),
		sqlcheck.LayerLogic:      len(report.Logic.Errors),
	})
}

type formatRequest struct {
	SQL string `json:"sql"`
}

func handleFormat(_ config.Config, _ Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, readRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	var req formatRequest
	if !decodeJSON(w, r, maxStatementBytes, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	formatted, err := sqlcheck.Format(req.SQL)
	if err != nil {
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "FORMAT_FAILED", "sql could not be formatted", false, map[string]any{
			"details":       err.Error(),
			"formatted_sql": req.SQL,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"formatted_sql": formatted})
}

type extractRequest struct {
	DDL string `json:"ddl"`
}

// handleExtract runs the extractor over a JSON {"ddl": ...} body or, for any
// other content type, the raw request body. Nothing is stored.
func handleExtract(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireAnyRole(r, readRoles...); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var text string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req extractRequest
		if !decodeJSON(w, r, cfg.Sources.MaxUploadBytes+maxStatementBytes, &req) {
			return
		}
		text = req.DDL
	} else {
		body, err := io.ReadAll(io.LimitReader(r.Body, cfg.Sources.MaxUploadBytes+1))
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_BODY", "failed to read request body", false, map[string]any{"details": err.Error()})
			return
		}
		if int64(len(body)) > cfg.Sources.MaxUploadBytes {
			writeError(r.Context(), w, http.StatusBadRequest, "FILE_TOO_LARGE", "ddl body exceeds the upload limit", false, map[string]any{"max_upload_bytes": cfg.Sources.MaxUploadBytes})
			return
		}
		text = string(body)
	}
	if strings.TrimSpace(text) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "DDL_REQUIRED", "ddl text is required", false, nil)
		return
	}

	extraction, err := ddl.Extractor{Logger: deps.Logger}.ExtractDetailed(text)
	if err != nil {
		observability.ObserveExtraction("no_tables", 0, len(extraction.Skipped))
		if errors.Is(err, ddl.ErrNoTables) {
			writeFriendlyError(r.Context(), w, http.StatusUnprocessableEntity, "NO_TABLES", err, false, map[string]any{
				"skipped":    extraction.Skipped,
				"statements": extraction.Statements,
			})
			return
		}
		writeFriendlyError(r.Context(), w, http.StatusInternalServerError, "EXTRACT_FAILED", err, false, nil)
		return
	}
	observability.ObserveExtraction("ok", len(extraction.Tables), len(extraction.Skipped))

	writeJSON(w, http.StatusOK, map[string]any{
		"tables":     extraction.Tables,
		"skipped":    extraction.Skipped,
		"statements": extraction.Statements,
		"candidates": extraction.Candidates,
		"schema":     ddl.SchemaNames(extraction.Tables),
	})
}

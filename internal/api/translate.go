package api

import (
	"net/http"
	"strings"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/nl2sql"
	"github.com/duckmesh/schemagate/internal/schemadoc"
	"github.com/duckmesh/schemagate/internal/sqlcheck"
)

type translateRequest struct {
	Prompt string `json:"prompt"`
}

func handleTranslate(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}

	var req translateRequest
	if !decodeJSON(w, r, maxStatementBytes, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	tables, err := deps.Catalog.ListTables(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FETCH_FAILED", "failed to load schema context", true, map[string]any{"details": err.Error()})
		return
	}

	format, err := schemadoc.ParseFormat(cfg.AI.SchemaFormat)
	if err != nil {
		format = schemadoc.FormatText
	}
	generator := nl2sql.Generator{
		Translator: deps.Translator,
		Validator: sqlcheck.Validator{
			Options: sqlcheck.Options{StrictLogic: cfg.Validation.StrictLogic},
			Logger:  deps.Logger,
		},
		Format: format,
		Logger: deps.Logger,
	}
	generation, err := generator.Generate(r.Context(), tenantID, req.Prompt, catalog.TableSchemas(tables))
	if err != nil {
		writeFriendlyError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", err, true, nil)
		return
	}
	observeReport(generation.Validation)

	writeJSON(w, http.StatusOK, generation)
}

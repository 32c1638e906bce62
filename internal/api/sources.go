package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/duckmesh/schemagate/internal/auth"
	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/config"
	"github.com/duckmesh/schemagate/internal/storage"
)

// multipartOverhead is allowed on top of MaxUploadBytes for form framing.
const multipartOverhead = 64 << 10

var createTablePattern = regexp.MustCompile(`(?i)\bcreate\s+(?:or\s+replace\s+)?(?:(?:global|local)\s+)?(?:(?:temp(?:orary)?|unlogged)\s+)?table\b`)

type sourceResponse struct {
	SourceID      string     `json:"source_id"`
	Filename      string     `json:"filename"`
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	SizeBytes     int64      `json:"size_bytes"`
	TableCount    int        `json:"table_count"`
	ColumnCount   int        `json:"column_count"`
	DocumentCount int        `json:"document_count"`
	UploadedAt    time.Time  `json:"uploaded_at"`
	ParsedAt      *time.Time `json:"parsed_at,omitempty"`
}

func toSourceResponse(source catalog.Source) sourceResponse {
	return sourceResponse{
		SourceID:      source.SourceID,
		Filename:      source.Filename,
		Status:        string(source.Status),
		ErrorMessage:  source.ErrorMessage,
		SizeBytes:     source.SizeBytes,
		TableCount:    source.TableCount,
		ColumnCount:   source.ColumnCount,
		DocumentCount: source.DocumentCount,
		UploadedAt:    source.UploadedAt,
		ParsedAt:      source.ParsedAt,
	}
}

// uploadError is a 400 rejection of an uploaded file.
type uploadError struct {
	code    string
	message string
	extra   map[string]any
}

func (e *uploadError) Error() string { return e.message }

func handleUploadSource(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "OBJECT_STORE_NOT_CONFIGURED", "object store dependency is not configured", false, nil)
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleSchemaAdmin)
	if !ok {
		return
	}

	filename, body, err := readUpload(cfg, w, r)
	if err != nil {
		var rejected *uploadError
		if errors.As(err, &rejected) {
			writeError(r.Context(), w, http.StatusBadRequest, rejected.code, rejected.message, false, rejected.extra)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", "failed to read upload", false, map[string]any{"details": err.Error()})
		return
	}

	sourceID := uuid.NewString()
	objectPath, err := storage.BuildSourceObjectPath(tenantID, sourceID, filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_FILENAME", err.Error(), false, nil)
		return
	}

	if err := deps.Catalog.EnsureTenant(r.Context(), tenantID); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to register tenant", true, map[string]any{"details": err.Error()})
		return
	}
	if _, err := deps.ObjectStore.Put(r.Context(), objectPath, bytes.NewReader(body), int64(len(body)), storage.PutOptions{ContentType: storage.ContentTypeSQL}); err != nil {
		writeFriendlyError(r.Context(), w, http.StatusBadGateway, "OBJECT_STORE_ERROR", fmt.Errorf("store source object: %w", err), true, nil)
		return
	}

	source, err := deps.Catalog.CreateSource(r.Context(), catalog.CreateSourceInput{
		SourceID:   sourceID,
		TenantID:   tenantID,
		Filename:   filename,
		ObjectPath: objectPath,
		SizeBytes:  int64(len(body)),
	})
	if err != nil {
		if deleteErr := deps.ObjectStore.Delete(r.Context(), objectPath); deleteErr != nil && deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "orphaned source object", "object_path", objectPath, "error", deleteErr)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to register source", true, map[string]any{"details": err.Error()})
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "source uploaded",
			"tenant_id", tenantID,
			"source_id", sourceID,
			"filename", filename,
			"size_bytes", len(body),
		)
	}

	writeJSON(w, http.StatusCreated, toSourceResponse(source))
}

// readUpload accepts either a multipart form with a "file" field or a raw
// body named by the filename query parameter, then applies the upload checks.
func readUpload(cfg config.Config, w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	limit := cfg.Sources.MaxUploadBytes

	var (
		filename string
		reader   io.Reader
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", nil, tooLargeError(limit)
			}
			return "", nil, &uploadError{code: "FILE_REQUIRED", message: "multipart field \"file\" is required", extra: map[string]any{"details": err.Error()}}
		}
		defer func() { _ = file.Close() }()
		filename = header.Filename
		reader = file
	} else {
		filename = r.URL.Query().Get("filename")
		reader = r.Body
	}

	filename = strings.TrimSpace(filepath.Base(filepath.ToSlash(filename)))
	if filename == "" || filename == "." || filename == "/" {
		return "", nil, &uploadError{code: "FILENAME_REQUIRED", message: "filename is required"}
	}
	extension := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(cfg.Sources.AllowedExtensions, extension) {
		return "", nil, &uploadError{
			code:    "UNSUPPORTED_FILE_TYPE",
			message: fmt.Sprintf("file extension %q is not allowed", extension),
			extra:   map[string]any{"allowed_extensions": cfg.Sources.AllowedExtensions},
		}
	}

	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload body: %w", err)
	}
	if int64(len(body)) > limit {
		return "", nil, tooLargeError(limit)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil, &uploadError{code: "EMPTY_FILE", message: "uploaded file is empty"}
	}
	if !utf8.Valid(body) {
		return "", nil, &uploadError{code: "INVALID_ENCODING", message: "uploaded file must be UTF-8 text"}
	}
	if !createTablePattern.Match(body) {
		return "", nil, &uploadError{code: "NO_CREATE_TABLE", message: "uploaded file contains no CREATE TABLE statement"}
	}
	return filename, body, nil
}

func tooLargeError(limit int64) error {
	return &uploadError{
		code:    "FILE_TOO_LARGE",
		message: fmt.Sprintf("uploaded file exceeds %d bytes", limit),
		extra:   map[string]any{"max_upload_bytes": limit},
	}
}

func handleListSources(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	sources, err := deps.Catalog.ListSources(r.Context(), tenantID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list sources", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]sourceResponse, 0, len(sources))
	for _, source := range sources {
		items = append(items, toSourceResponse(source))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "sources": items})
}

func handleGetSource(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	source, ok := lookupSource(deps, w, r, tenantID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSourceResponse(source))
}

func handleListSourceTables(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, readRoles...)
	if !ok {
		return
	}
	source, ok := lookupSource(deps, w, r, tenantID)
	if !ok {
		return
	}
	if source.Status != catalog.SourceReady {
		writeFriendlyError(r.Context(), w, http.StatusConflict, "SOURCE_NOT_READY", catalog.ErrSourceNotReady, true, map[string]any{
			"source_id": source.SourceID,
			"status":    string(source.Status),
		})
		return
	}
	tables, err := deps.Catalog.ListSourceTables(r.Context(), tenantID, source.SourceID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list source tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source_id": source.SourceID,
		"tables":    catalog.TableSchemas(tables),
	})
}

func handleDeleteSource(_ config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireCatalog(deps, w, r) {
		return
	}
	tenantID, ok := authorize(w, r, auth.RoleSchemaAdmin)
	if !ok {
		return
	}
	source, ok := lookupSource(deps, w, r, tenantID)
	if !ok {
		return
	}
	deleted, err := deps.Catalog.DeleteSource(r.Context(), tenantID, source.SourceID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to delete source", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "SOURCE_NOT_FOUND", "source was not found", false, nil)
		return
	}
	if deps.ObjectStore != nil {
		if err := deps.ObjectStore.Delete(r.Context(), source.ObjectPath); err != nil && !errors.Is(err, storage.ErrObjectNotFound) && deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "failed to delete source object", "object_path", source.ObjectPath, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "source_id": source.SourceID})
}

func lookupSource(deps Dependencies, w http.ResponseWriter, r *http.Request, tenantID string) (catalog.Source, bool) {
	sourceID := strings.TrimSpace(r.PathValue("id"))
	if sourceID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SOURCE_ID_REQUIRED", "source id path parameter is required", false, nil)
		return catalog.Source{}, false
	}
	source, err := deps.Catalog.GetSource(r.Context(), tenantID, sourceID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SOURCE_NOT_FOUND", "source was not found", false, map[string]any{"source_id": sourceID})
			return catalog.Source{}, false
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load source", true, map[string]any{"details": err.Error()})
		return catalog.Source{}, false
	}
	return source, true
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/schemagate/internal/catalog"
	"github.com/duckmesh/schemagate/internal/ddl"
	"github.com/duckmesh/schemagate/internal/schemadoc"
)

type dbTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sourceColumns = `source_id, tenant_id, filename, object_path, size_bytes, status::text, COALESCE(error_message, ''), table_count, column_count, document_count, uploaded_at, parsed_at`

const tableColumns = `t.table_id, t.source_id, t.tenant_id, t.table_name, t.position, t.columns_json, t.primary_keys, COALESCE(t.comment, ''), COALESCE(s.parsed_at, s.uploaded_at)`

type Repository struct {
	db    *sql.DB
	clock func() time.Time
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, clock: time.Now}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// EnsureTenant creates the tenant row on first use.
func (r *Repository) EnsureTenant(ctx context.Context, tenantID string) error {
	query := `
INSERT INTO tenant (tenant_id, name, status)
VALUES ($1, $1, 'active')
ON CONFLICT (tenant_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("ensure tenant: %w", err)
	}
	return nil
}

func (r *Repository) GetTenant(ctx context.Context, tenantID string) (catalog.Tenant, error) {
	query := `
SELECT tenant_id, name, status, created_at
FROM tenant
WHERE tenant_id = $1`

	var tenant catalog.Tenant
	if err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.TenantID,
		&tenant.Name,
		&tenant.Status,
		&tenant.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Tenant{}, catalog.ErrNotFound
		}
		return catalog.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

func (r *Repository) ListTenants(ctx context.Context) ([]catalog.Tenant, error) {
	query := `
SELECT tenant_id, name, status, created_at
FROM tenant
ORDER BY tenant_id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tenants := make([]catalog.Tenant, 0)
	for rows.Next() {
		var tenant catalog.Tenant
		if err := rows.Scan(&tenant.TenantID, &tenant.Name, &tenant.Status, &tenant.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant row: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant rows: %w", err)
	}
	return tenants, nil
}

// CreateAPIKey stores the digest of a newly issued key.
func (r *Repository) CreateAPIKey(ctx context.Context, key catalog.APIKey) (catalog.APIKey, error) {
	query := `
INSERT INTO api_key (key_id, tenant_id, key_hash, role)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

	if err := r.db.QueryRowContext(ctx, query, key.KeyID, key.TenantID, key.KeyHash, key.Role).Scan(&key.CreatedAt); err != nil {
		return catalog.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return key, nil
}

// LookupAPIKey resolves a non-revoked key by digest.
func (r *Repository) LookupAPIKey(ctx context.Context, keyHash string) (catalog.APIKey, error) {
	query := `
SELECT key_id, tenant_id, key_hash, role, created_at
FROM api_key
WHERE key_hash = $1 AND revoked_at IS NULL`

	var key catalog.APIKey
	if err := r.db.QueryRowContext(ctx, query, keyHash).Scan(
		&key.KeyID,
		&key.TenantID,
		&key.KeyHash,
		&key.Role,
		&key.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.APIKey{}, catalog.ErrNotFound
		}
		return catalog.APIKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	return key, nil
}

func (r *Repository) CreateSource(ctx context.Context, in catalog.CreateSourceInput) (catalog.Source, error) {
	query := `
INSERT INTO source (source_id, tenant_id, filename, object_path, size_bytes, status)
VALUES ($1, $2, $3, $4, $5, 'pending')
RETURNING uploaded_at`

	source := catalog.Source{
		SourceID:   in.SourceID,
		TenantID:   in.TenantID,
		Filename:   in.Filename,
		ObjectPath: in.ObjectPath,
		SizeBytes:  in.SizeBytes,
		Status:     catalog.SourcePending,
	}
	if err := r.db.QueryRowContext(ctx, query, in.SourceID, in.TenantID, in.Filename, in.ObjectPath, in.SizeBytes).Scan(&source.UploadedAt); err != nil {
		return catalog.Source{}, fmt.Errorf("create source: %w", err)
	}
	return source, nil
}

func (r *Repository) GetSource(ctx context.Context, tenantID, sourceID string) (catalog.Source, error) {
	query := `
SELECT ` + sourceColumns + `
FROM source
WHERE tenant_id = $1 AND source_id = $2`

	source, err := scanSource(r.db.QueryRowContext(ctx, query, tenantID, sourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Source{}, catalog.ErrNotFound
		}
		return catalog.Source{}, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

func (r *Repository) ListSources(ctx context.Context, tenantID string) ([]catalog.Source, error) {
	query := `
SELECT ` + sourceColumns + `
FROM source
WHERE tenant_id = $1
ORDER BY uploaded_at DESC, source_id ASC`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]catalog.Source, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return sources, nil
}

// DeleteSource removes the source row. Its tables and documents go with it
// through ON DELETE CASCADE.
func (r *Repository) DeleteSource(ctx context.Context, tenantID, sourceID string) (bool, error) {
	query := `
DELETE FROM source
WHERE tenant_id = $1 AND source_id = $2`
	result, err := r.db.ExecContext(ctx, query, tenantID, sourceID)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete source rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListTables returns the tenant's tables across ready sources. When two
// sources define the same table name, the most recently parsed one wins.
func (r *Repository) ListTables(ctx context.Context, tenantID string) ([]catalog.IndexedTable, error) {
	query := `
SELECT DISTINCT ON (t.table_name) ` + tableColumns + `
FROM schema_table AS t
JOIN source AS s ON s.source_id = t.source_id
WHERE t.tenant_id = $1 AND s.status = 'ready'
ORDER BY t.table_name ASC, s.parsed_at DESC NULLS LAST, t.source_id ASC`

	return r.queryTables(ctx, "list tables", query, tenantID)
}

func (r *Repository) ListSourceTables(ctx context.Context, tenantID, sourceID string) ([]catalog.IndexedTable, error) {
	query := `
SELECT ` + tableColumns + `
FROM schema_table AS t
JOIN source AS s ON s.source_id = t.source_id
WHERE t.tenant_id = $1 AND t.source_id = $2
ORDER BY t.position ASC`

	return r.queryTables(ctx, "list source tables", query, tenantID, sourceID)
}

func (r *Repository) GetTable(ctx context.Context, tenantID, tableName string) (catalog.IndexedTable, error) {
	query := `
SELECT ` + tableColumns + `
FROM schema_table AS t
JOIN source AS s ON s.source_id = t.source_id
WHERE t.tenant_id = $1 AND t.table_name = $2 AND s.status = 'ready'
ORDER BY s.parsed_at DESC NULLS LAST, t.source_id ASC
LIMIT 1`

	table, err := scanTable(r.db.QueryRowContext(ctx, query, tenantID, strings.ToLower(tableName)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.IndexedTable{}, catalog.ErrNotFound
		}
		return catalog.IndexedTable{}, fmt.Errorf("get table: %w", err)
	}
	return table, nil
}

func (r *Repository) queryTables(ctx context.Context, op string, query string, args ...any) ([]catalog.IndexedTable, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]catalog.IndexedTable, 0)
	for rows.Next() {
		table, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}
	return tables, nil
}

// SearchDocuments matches documents of ready sources against every term
// with ILIKE and ranks them by the number of terms matched.
func (r *Repository) SearchDocuments(ctx context.Context, in catalog.SearchDocumentsInput) ([]catalog.DocumentMatch, error) {
	terms := make([]string, 0, len(in.Terms))
	for _, term := range in.Terms {
		if term = strings.TrimSpace(term); term != "" {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return []catalog.DocumentMatch{}, nil
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 20
	}

	query, args := buildDocumentSearch(in.TenantID, terms, in.Kind, limit)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	matches := make([]catalog.DocumentMatch, 0)
	for rows.Next() {
		var match catalog.DocumentMatch
		var kind string
		if err := rows.Scan(
			&match.Document.ID,
			&match.Document.SourceID,
			&kind,
			&match.Document.Table,
			&match.Document.Column,
			&match.Document.Body,
			&match.Score,
		); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		match.Document.Kind = schemadoc.Kind(kind)
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return matches, nil
}

func buildDocumentSearch(tenantID string, terms []string, kind schemadoc.Kind, limit int) (string, []any) {
	args := []any{tenantID}
	scores := make([]string, 0, len(terms))
	matches := make([]string, 0, len(terms))
	for _, term := range terms {
		args = append(args, "%"+escapeLike(term)+"%")
		placeholder := fmt.Sprintf("$%d", len(args))
		scores = append(scores, fmt.Sprintf("(CASE WHEN d.body ILIKE %s THEN 1 ELSE 0 END)", placeholder))
		matches = append(matches, "d.body ILIKE "+placeholder)
	}

	filter := ""
	if kind != "" {
		args = append(args, string(kind))
		filter = fmt.Sprintf(" AND d.kind = $%d", len(args))
	}
	args = append(args, limit)

	query := `
SELECT d.doc_id, d.source_id, d.kind, d.table_name, COALESCE(d.column_name, ''), d.body, ` + strings.Join(scores, " + ") + ` AS score
FROM schema_document AS d
JOIN source AS s ON s.source_id = d.source_id
WHERE d.tenant_id = $1 AND s.status = 'ready'` + filter + ` AND (` + strings.Join(matches, " OR ") + `)
ORDER BY score DESC, d.doc_id ASC
LIMIT ` + fmt.Sprintf("$%d", len(args))
	return query, args
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// ClaimSources leases up to limit sources that are pending, or whose
// previous parsing lease expired, to consumerID.
func (r *Repository) ClaimSources(ctx context.Context, consumerID string, limit int, leaseSeconds int) ([]catalog.Source, error) {
	if limit <= 0 {
		limit = 10
	}
	if leaseSeconds <= 0 {
		leaseSeconds = 60
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectionQuery := `
SELECT source_id
FROM source
WHERE status = 'pending' OR (status = 'parsing' AND lease_until <= NOW())
ORDER BY uploaded_at ASC
FOR UPDATE SKIP LOCKED
LIMIT $1`

	rows, err := tx.QueryContext(ctx, selectionQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	selected := make([]string, 0, limit)
	for rows.Next() {
		var sourceID string
		if err := rows.Scan(&sourceID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", err)
		}
		selected = append(selected, sourceID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate claim candidates: %w", err)
	}
	_ = rows.Close()

	leaseUntil := r.clock().UTC().Add(time.Duration(leaseSeconds) * time.Second)
	claimQuery := `
UPDATE source
SET status = 'parsing', lease_owner = $1, lease_until = $2
WHERE source_id = $3
RETURNING ` + sourceColumns

	claimed := make([]catalog.Source, 0, len(selected))
	for _, sourceID := range selected {
		source, err := scanSource(tx.QueryRowContext(ctx, claimQuery, consumerID, leaseUntil, sourceID))
		if err != nil {
			return nil, fmt.Errorf("claim source %s: %w", sourceID, err)
		}
		claimed = append(claimed, source)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return claimed, nil
}

// ReplaceSourceIndex swaps the source's tables and documents for the new
// extraction and marks it ready in one transaction. It fails with
// catalog.ErrLeaseLost unless in.LeaseOwner still holds the parsing lease.
func (r *Repository) ReplaceSourceIndex(ctx context.Context, in catalog.ReplaceSourceIndexInput) error {
	return r.WithTx(ctx, func(tx *TxRepository) error {
		if err := tx.DeleteSourceIndex(ctx, in.SourceID); err != nil {
			return err
		}
		for position, table := range in.Tables {
			if err := tx.InsertTable(ctx, in.SourceID, in.TenantID, position, table); err != nil {
				return err
			}
		}
		for _, doc := range in.Documents {
			if err := tx.InsertDocument(ctx, in.TenantID, doc); err != nil {
				return err
			}
		}
		return tx.MarkSourceReady(ctx, in.SourceID, in.LeaseOwner, len(in.Tables), in.ColumnCount(), len(in.Documents))
	})
}

// FailLeasedSource records an indexing failure for a source leased to
// leaseOwner. A lease that expired and was reclaimed yields
// catalog.ErrLeaseLost and leaves the row alone.
func (r *Repository) FailLeasedSource(ctx context.Context, sourceID, leaseOwner, message string) error {
	query := `
UPDATE source
SET status = 'error', error_message = $2, lease_owner = NULL, lease_until = NULL, parsed_at = NOW()
WHERE source_id = $1 AND status = 'parsing' AND lease_owner = $3`
	result, err := r.db.ExecContext(ctx, query, sourceID, message, leaseOwner)
	if err != nil {
		return fmt.Errorf("fail leased source: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail leased source rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrLeaseLost
	}
	return nil
}

// MarkSourceError flags a source as failed regardless of lease. Maintenance
// uses it for sources whose object vanished.
func (r *Repository) MarkSourceError(ctx context.Context, sourceID, message string) error {
	query := `
UPDATE source
SET status = 'error', error_message = $2, lease_owner = NULL, lease_until = NULL, parsed_at = NOW()
WHERE source_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sourceID, message); err != nil {
		return fmt.Errorf("mark source error: %w", err)
	}
	return nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	txRepo := &TxRepository{q: tx}
	if err := fn(txRepo); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type TxRepository struct {
	q dbTX
}

func (r *TxRepository) DeleteSourceIndex(ctx context.Context, sourceID string) error {
	if _, err := r.q.ExecContext(ctx, `
DELETE FROM schema_document
WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete source documents in tx: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `
DELETE FROM schema_table
WHERE source_id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete source tables in tx: %w", err)
	}
	return nil
}

func (r *TxRepository) InsertTable(ctx context.Context, sourceID, tenantID string, position int, table ddl.TableSchema) error {
	columnsJSON, err := json.Marshal(table.Columns)
	if err != nil {
		return fmt.Errorf("encode columns for %s: %w", table.Name, err)
	}
	primaryKeys := table.PrimaryKeys
	if primaryKeys == nil {
		primaryKeys = []string{}
	}
	primaryKeysJSON, err := json.Marshal(primaryKeys)
	if err != nil {
		return fmt.Errorf("encode primary keys for %s: %w", table.Name, err)
	}

	query := `
INSERT INTO schema_table (source_id, tenant_id, table_name, position, columns_json, primary_keys, comment)
VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, NULLIF($7, ''))`
	if _, err := r.q.ExecContext(ctx, query, sourceID, tenantID, table.Name, position, string(columnsJSON), string(primaryKeysJSON), table.Comment); err != nil {
		return fmt.Errorf("insert table %s in tx: %w", table.Name, err)
	}
	return nil
}

func (r *TxRepository) InsertDocument(ctx context.Context, tenantID string, doc schemadoc.Document) error {
	query := `
INSERT INTO schema_document (doc_id, source_id, tenant_id, kind, table_name, column_name, body)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`
	if _, err := r.q.ExecContext(ctx, query, doc.ID, doc.SourceID, tenantID, string(doc.Kind), doc.Table, doc.Column, doc.Body); err != nil {
		return fmt.Errorf("insert document %s in tx: %w", doc.ID, err)
	}
	return nil
}

func (r *TxRepository) MarkSourceReady(ctx context.Context, sourceID, leaseOwner string, tables, columns, documents int) error {
	query := `
UPDATE source
SET status = 'ready', error_message = NULL, table_count = $2, column_count = $3, document_count = $4,
    lease_owner = NULL, lease_until = NULL, parsed_at = NOW()
WHERE source_id = $1 AND status = 'parsing' AND lease_owner = $5`
	result, err := r.q.ExecContext(ctx, query, sourceID, tables, columns, documents, leaseOwner)
	if err != nil {
		return fmt.Errorf("mark source ready in tx: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark source ready rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrLeaseLost
	}
	return nil
}

func scanSource(row rowScanner) (catalog.Source, error) {
	var source catalog.Source
	var status string
	if err := row.Scan(
		&source.SourceID,
		&source.TenantID,
		&source.Filename,
		&source.ObjectPath,
		&source.SizeBytes,
		&status,
		&source.ErrorMessage,
		&source.TableCount,
		&source.ColumnCount,
		&source.DocumentCount,
		&source.UploadedAt,
		&source.ParsedAt,
	); err != nil {
		return catalog.Source{}, err
	}
	source.Status = catalog.SourceStatus(status)
	return source, nil
}

func scanTable(row rowScanner) (catalog.IndexedTable, error) {
	var table catalog.IndexedTable
	var columnsJSON, primaryKeysJSON []byte
	if err := row.Scan(
		&table.TableID,
		&table.SourceID,
		&table.TenantID,
		&table.Schema.Name,
		&table.Position,
		&columnsJSON,
		&primaryKeysJSON,
		&table.Schema.Comment,
		&table.ParsedAt,
	); err != nil {
		return catalog.IndexedTable{}, err
	}
	if err := json.Unmarshal(columnsJSON, &table.Schema.Columns); err != nil {
		return catalog.IndexedTable{}, fmt.Errorf("decode columns for %s: %w", table.Schema.Name, err)
	}
	if err := json.Unmarshal(primaryKeysJSON, &table.Schema.PrimaryKeys); err != nil {
		return catalog.IndexedTable{}, fmt.Errorf("decode primary keys for %s: %w", table.Schema.Name, err)
	}
	if table.Schema.PrimaryKeys == nil {
		table.Schema.PrimaryKeys = []string{}
	}
	table.Schema.ForeignKeys = []ddl.ForeignKey{}
	table.Schema.Indexes = []ddl.Index{}
	return table, nil
}

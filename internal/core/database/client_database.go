package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

var _ core.Store = (*DatabaseClient)(nil)

type DatabaseClient struct {
	db      *sql.DB
	dialect Dialect
	dim     int
	caps    Capabilities
	log     *logger.Logger
}

// NewDatabaseClient opens the store, applies migrations and detects the schema's capabilities.
func NewDatabaseClient(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	c, err := Open(ctx, cfg.DatabaseURL, cfg.EmbedDim, log)
	if err != nil {
		return nil, err
	}
	if err := c.Migrate(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := c.DetectCapabilities(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Open connects without touching the schema.
func Open(ctx context.Context, databaseURL string, embedDim int, log *logger.Logger) (*DatabaseClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	dialect, driver, dsn, err := ParseDatabaseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &DatabaseClient{db: db, dialect: dialect, dim: embedDim, log: log}, nil
}

func (c *DatabaseClient) Migrate(ctx context.Context) error {
	return Migrate(ctx, c.db, c.dialect, c.dim)
}

func (c *DatabaseClient) Dialect() Dialect { return c.dialect }

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

type colVal struct {
	col string
	val any
}

// project keeps only the columns the live schema has.
func (c *DatabaseClient) project(table string, in []colVal) ([]string, []any) {
	cols := make([]string, 0, len(in))
	vals := make([]any, 0, len(in))
	for _, cv := range in {
		if !c.caps.Has(table, cv.col) {
			continue
		}
		cols = append(cols, cv.col)
		vals = append(vals, cv.val)
	}
	return cols, vals
}

func (c *DatabaseClient) insertSQL(table string, cols []string, suffix string) string {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s", table, strings.Join(cols, ", "), placeholders(1, len(cols)), suffix)
	return c.dialect.rebind(q)
}

// selectList renders a projection, substituting a literal for each missing optional column.
func (c *DatabaseClient) selectList(table string, cols [][2]string) string {
	parts := make([]string, len(cols))
	for i, cf := range cols {
		if cf[1] == "" || c.caps.Has(table, cf[0]) {
			parts[i] = cf[0]
		} else {
			parts[i] = cf[1] + " AS " + cf[0]
		}
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ---- documents ----

func (c *DatabaseClient) documentRow(ch *models.EmbeddedChunk) ([]string, []any, error) {
	vec, err := c.dialect.vector(ch.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("encode embedding: %w", err)
	}
	scraped := ch.ScrapedAt
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}
	cols, vals := c.project("documents", []colVal{
		{"id", uuid.NewString()},
		{"source_title", ch.Title},
		{"source_url", ch.SourceURL},
		{"source_type", string(ch.SourceType)},
		{"source_domain", ch.Domain},
		{"content", ch.Content},
		{"chunk_hash", ch.ContentHash},
		{"embedding", vec},
		{"scraped_at", scraped},
	})
	return cols, vals, nil
}

// UpsertChunks inserts chunks in a single transaction. Rows already present for (source_url, chunk_hash) are left alone.
func (c *DatabaseClient) UpsertChunks(ctx context.Context, chunks []models.EmbeddedChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	for i := range chunks {
		if len(chunks[i].Embedding) != c.dim {
			return 0, fmt.Errorf("%w: chunk %d has dimension %d, store expects %d", core.ErrSchemaMismatch, i, len(chunks[i].Embedding), c.dim)
		}
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	inserted, err := c.insertDocuments(ctx, tx, chunks)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit chunks: %w", err)
	}
	return inserted, nil
}

func (c *DatabaseClient) insertDocuments(ctx context.Context, tx *sql.Tx, chunks []models.EmbeddedChunk) (int, error) {
	var (
		stmt     *sql.Stmt
		inserted int
	)
	defer func() {
		if stmt != nil {
			_ = stmt.Close()
		}
	}()
	for i := range chunks {
		cols, vals, err := c.documentRow(&chunks[i])
		if err != nil {
			return 0, err
		}
		if stmt == nil {
			stmt, err = tx.PrepareContext(ctx, c.insertSQL("documents", cols, "ON CONFLICT (source_url, chunk_hash) DO NOTHING"))
			if err != nil {
				return 0, fmt.Errorf("prepare insert: %w", err)
			}
		}
		res, err := stmt.ExecContext(ctx, vals...)
		if err != nil {
			return 0, fmt.Errorf("insert chunk %s: %w", chunks[i].ContentHash, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	return inserted, nil
}

func (c *DatabaseClient) UpsertChunk(ctx context.Context, chunk models.EmbeddedChunk) (bool, error) {
	n, err := c.UpsertChunks(ctx, []models.EmbeddedChunk{chunk})
	return n == 1, err
}

func (c *DatabaseClient) ExistingHashes(ctx context.Context, sourceURL string) (map[string]struct{}, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(`SELECT chunk_hash FROM documents WHERE source_url = $1`), sourceURL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out[h] = struct{}{}
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CountChunks(ctx context.Context, sourceURL string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, c.dialect.rebind(`SELECT COUNT(*) FROM documents WHERE source_url = $1`), sourceURL).Scan(&n)
	return n, err
}

// ---- documents_large ----

// RecordLarge upserts on source_url so a resource is sidelined at most once.
func (c *DatabaseClient) RecordLarge(ctx context.Context, rec models.LargeResourceRecord) error {
	recorded := rec.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}
	cols, vals := c.project("documents_large", []colVal{
		{"source_url", rec.SourceURL},
		{"source_domain", rec.Domain},
		{"source_title", rec.Title},
		{"byte_size", rec.ByteSize},
		{"reason", rec.Reason},
		{"recorded_at", recorded},
	})
	var sets []string
	for _, col := range cols[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	q := c.insertSQL("documents_large", cols, "ON CONFLICT (source_url) DO UPDATE SET "+strings.Join(sets, ", "))
	if _, err := c.db.ExecContext(ctx, q, vals...); err != nil {
		return fmt.Errorf("record large %s: %w", rec.SourceURL, err)
	}
	return nil
}

func (c *DatabaseClient) GetLarge(ctx context.Context, sourceURL string) (*models.LargeResourceRecord, error) {
	sel := c.selectList("documents_large", [][2]string{
		{"source_url", ""}, {"source_domain", "''"}, {"source_title", "''"}, {"byte_size", ""}, {"reason", ""}, {"recorded_at", "NULL"},
	})
	q := c.dialect.rebind("SELECT " + sel + " FROM documents_large WHERE source_url = $1")

	var (
		rec      models.LargeResourceRecord
		recorded sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, q, sourceURL).Scan(&rec.SourceURL, &rec.Domain, &rec.Title, &rec.ByteSize, &rec.Reason, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("large record %s: %w", sourceURL, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec.RecordedAt = recorded.Time
	return &rec, nil
}

// ---- documents_pending ----

func (c *DatabaseClient) pendingRow(rec *models.PendingRecord, now time.Time) ([]string, []any) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.PendingStatusPending
	}
	return c.project("documents_pending", []colVal{
		{"id", rec.ID},
		{"source_url", rec.SourceURL},
		{"source_title", rec.Title},
		{"source_type", string(rec.SourceType)},
		{"source_domain", rec.Domain},
		{"chunk_content", rec.ChunkContent},
		{"chunk_hash", rec.ChunkHash},
		{"ordinal", rec.Ordinal},
		{"file_size", rec.FileSize},
		{"status", rec.Status},
		{"notes", rec.Notes},
		{"created_at", now},
		{"updated_at", now},
	})
}

// RecordPending stores chunks awaiting approval. Existing (source_url, chunk_hash) rows are kept as they are.
func (c *DatabaseClient) RecordPending(ctx context.Context, recs []models.PendingRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var (
		stmt     *sql.Stmt
		inserted int
	)
	fail := func(err error) (int, error) {
		if stmt != nil {
			_ = stmt.Close()
		}
		_ = tx.Rollback()
		return 0, err
	}
	for i := range recs {
		cols, vals := c.pendingRow(&recs[i], now)
		if stmt == nil {
			stmt, err = tx.PrepareContext(ctx, c.insertSQL("documents_pending", cols, "ON CONFLICT (source_url, chunk_hash) DO NOTHING"))
			if err != nil {
				return fail(fmt.Errorf("prepare pending insert: %w", err))
			}
		}
		res, err := stmt.ExecContext(ctx, vals...)
		if err != nil {
			return fail(fmt.Errorf("insert pending %s: %w", recs[i].ChunkHash, err))
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	_ = stmt.Close()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit pending: %w", err)
	}
	return inserted, nil
}

func (c *DatabaseClient) pendingSelect() string {
	return c.selectList("documents_pending", [][2]string{
		{"id", ""},
		{"source_url", ""},
		{"source_title", "''"},
		{"source_type", "''"},
		{"source_domain", "''"},
		{"chunk_content", ""},
		{"chunk_hash", ""},
		{"ordinal", "0"},
		{"file_size", "0"},
		{"status", ""},
		{"notes", "''"},
		{"created_at", "NULL"},
		{"updated_at", "NULL"},
	})
}

func scanPending(r rowScanner) (*models.PendingRecord, error) {
	var (
		rec              models.PendingRecord
		sourceType       string
		created, updated sql.NullTime
	)
	if err := r.Scan(
		&rec.ID, &rec.SourceURL, &rec.Title, &sourceType, &rec.Domain, &rec.ChunkContent, &rec.ChunkHash,
		&rec.Ordinal, &rec.FileSize, &rec.Status, &rec.Notes, &created, &updated,
	); err != nil {
		return nil, err
	}
	rec.SourceType = models.SourceType(sourceType)
	rec.CreatedAt = created.Time
	rec.UpdatedAt = updated.Time
	return &rec, nil
}

func (c *DatabaseClient) ListPending(ctx context.Context, filter models.PendingFilter) ([]models.PendingRecord, error) {
	q := "SELECT " + c.pendingSelect() + " FROM documents_pending"
	var (
		where []string
		args  []any
	)
	if filter.SourceURL != "" {
		args = append(args, filter.SourceURL)
		where = append(where, fmt.Sprintf("source_url = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	if c.caps.Has("documents_pending", "ordinal") {
		q += " ORDER BY source_url, ordinal"
	} else {
		q += " ORDER BY source_url, chunk_hash"
	}
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, c.dialect.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingRecord
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetPending(ctx context.Context, id string) (*models.PendingRecord, error) {
	q := c.dialect.rebind("SELECT " + c.pendingSelect() + " FROM documents_pending WHERE id = $1")
	rec, err := scanPending(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending %s: %w", id, core.ErrNotFound)
	}
	return rec, err
}

// PromoteToApproved moves a pending chunk into documents with the given embedding and marks it approved,
// atomically. Promoting an already approved row is a no-op.
func (c *DatabaseClient) PromoteToApproved(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) != c.dim {
		return fmt.Errorf("%w: embedding has dimension %d, store expects %d", core.ErrSchemaMismatch, len(embedding), c.dim)
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := c.dialect.rebind("SELECT " + c.pendingSelect() + " FROM documents_pending WHERE id = $1")
	rec, err := scanPending(tx.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("pending %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load pending %s: %w", id, err)
	}
	if rec.Status == models.PendingStatusApproved {
		return nil
	}

	if _, err := c.insertDocuments(ctx, tx, []models.EmbeddedChunk{{
		Chunk: models.Chunk{
			SourceURL:   rec.SourceURL,
			Content:     rec.ChunkContent,
			ContentHash: rec.ChunkHash,
			Ordinal:     rec.Ordinal,
		},
		Title:      rec.Title,
		SourceType: rec.SourceType,
		Domain:     rec.Domain,
		Embedding:  embedding,
	}}); err != nil {
		return err
	}

	if err := c.setPendingStatus(ctx, tx, id, models.PendingStatusApproved, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RejectPending marks a pending chunk rejected. Approved rows cannot be rejected.
func (c *DatabaseClient) RejectPending(ctx context.Context, id, notes string) error {
	n, err := c.updatePending(ctx, c.db, id, models.PendingStatusRejected, &notes, models.PendingStatusApproved)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	rec, err := c.GetPending(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: pending %s is already %s", core.ErrInvalidTransition, id, rec.Status)
}

func (c *DatabaseClient) setPendingStatus(ctx context.Context, tx *sql.Tx, id, status string, notes *string) error {
	_, err := c.updatePending(ctx, tx, id, status, notes, "")
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// updatePending sets status (and optionally notes) on one row, skipping rows whose status equals unless.
func (c *DatabaseClient) updatePending(ctx context.Context, ex execer, id, status string, notes *string, unless string) (int64, error) {
	args := []any{status}
	sets := []string{"status = $1"}
	if notes != nil && c.caps.Has("documents_pending", "notes") {
		args = append(args, *notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}
	if c.caps.Has("documents_pending", "updated_at") {
		args = append(args, time.Now().UTC())
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE documents_pending SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if unless != "" {
		args = append(args, unless)
		q += fmt.Sprintf(" AND status <> $%d", len(args))
	}

	res, err := ex.ExecContext(ctx, c.dialect.rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("update pending %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ---- sources ----

func (c *DatabaseClient) GetSource(ctx context.Context, sourceURL string) (*models.Source, error) {
	sel := c.selectList("sources", [][2]string{
		{"source_url", ""}, {"source_type", "''"}, {"source_domain", "''"}, {"status", ""}, {"notes", "''"}, {"updated_at", "NULL"},
	})
	q := c.dialect.rebind("SELECT " + sel + " FROM sources WHERE source_url = $1")

	var (
		src                models.Source
		sourceType, status string
		updated            sql.NullTime
	)
	err := c.db.QueryRowContext(ctx, q, sourceURL).Scan(&src.URL, &sourceType, &src.Domain, &status, &src.Notes, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", sourceURL, core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	src.Type = models.SourceType(sourceType)
	src.Status = models.SourceStatus(status)
	src.UpdatedAt = updated.Time
	return &src, nil
}

// SetSourceStatus upserts the source row.
func (c *DatabaseClient) SetSourceStatus(ctx context.Context, src models.Source) error {
	updated := src.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	cols, vals := c.project("sources", []colVal{
		{"source_url", src.URL},
		{"source_type", string(src.Type)},
		{"source_domain", src.Domain},
		{"status", string(src.Status)},
		{"notes", src.Notes},
		{"updated_at", updated},
	})
	var sets []string
	for _, col := range cols[1:] {
		sets = append(sets, col+" = excluded."+col)
	}
	q := c.insertSQL("sources", cols, "ON CONFLICT (source_url) DO UPDATE SET "+strings.Join(sets, ", "))
	if _, err := c.db.ExecContext(ctx, q, vals...); err != nil {
		return fmt.Errorf("set source status %s: %w", src.URL, err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration.
func (c *DatabaseClient) SchemaVersion(ctx context.Context) (int, error) {
	return SchemaVersion(ctx, c.db)
}

package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

const testDim = 4

func newTestClient(t *testing.T) *DatabaseClient {
	t.Helper()
	cfg := &config.Config{
		DatabaseURL: "sqlite://" + filepath.Join(t.TempDir(), "ingest.db"),
		EmbedDim:    testDim,
	}
	c, err := NewDatabaseClient(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func chunk(url, hash, content string, ordinal int) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk:      models.Chunk{SourceURL: url, Content: content, ContentHash: hash, Ordinal: ordinal},
		Title:      "Title",
		SourceType: models.SourceWebpage,
		Domain:     "example.com",
		Embedding:  []float32{0.1, 0.2, 0.3, 0.4},
	}
}

func TestParseDatabaseURL(t *testing.T) {
	d, driver, dsn, err := ParseDatabaseURL("postgres://u:p@localhost:5432/db")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", dsn)

	d, driver, dsn, err = ParseDatabaseURL("sqlite:///tmp/x.db")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)
	assert.Equal(t, "sqlite", driver)
	assert.Equal(t, "/tmp/x.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dsn)

	_, _, _, err = ParseDatabaseURL("mysql://nope")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", SQLite.rebind("a = $1 AND b = $12"))
	assert.Equal(t, "a = $1", Postgres.rebind("a = $1"))
	assert.Equal(t, "$1, $2, $3", placeholders(1, 3))
}

func TestMigrateIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	v1, err := SchemaVersion(ctx, c.db)
	require.NoError(t, err)
	assert.Equal(t, 2, v1)

	require.NoError(t, c.Migrate(ctx))
	v2, err := SchemaVersion(ctx, c.db)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func TestUpsertChunks_DuplicatesAreIgnored(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	url := "https://example.com/a"

	n, err := c.UpsertChunks(ctx, []models.EmbeddedChunk{
		chunk(url, "h1", "one", 0),
		chunk(url, "h2", "two", 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.UpsertChunks(ctx, []models.EmbeddedChunk{
		chunk(url, "h2", "two", 1),
		chunk(url, "h3", "three", 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := c.CountChunks(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hashes, err := c.ExistingHashes(ctx, url)
	require.NoError(t, err)
	assert.Len(t, hashes, 3)
	assert.Contains(t, hashes, "h1")

	inserted, err := c.UpsertChunk(ctx, chunk(url, "h1", "one", 0))
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestUpsertChunks_SameHashDifferentSource(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	n, err := c.UpsertChunks(ctx, []models.EmbeddedChunk{
		chunk("https://example.com/a", "same", "text", 0),
		chunk("https://example.com/b", "same", "text", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestUpsertChunks_WrongDimension(t *testing.T) {
	c := newTestClient(t)
	ch := chunk("https://example.com/a", "h1", "one", 0)
	ch.Embedding = []float32{1, 2}

	_, err := c.UpsertChunks(context.Background(), []models.EmbeddedChunk{ch})
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)

	count, err := c.CountChunks(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRecordLarge_UpsertsOnURL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	url := "https://example.com/huge.pdf"

	require.NoError(t, c.RecordLarge(ctx, models.LargeResourceRecord{
		SourceURL: url, Domain: "example.com", Title: "huge", ByteSize: 200, Reason: models.ReasonPreDownload,
	}))
	require.NoError(t, c.RecordLarge(ctx, models.LargeResourceRecord{
		SourceURL: url, Domain: "example.com", Title: "huge", ByteSize: 300, Reason: models.ReasonDuringDownload,
	}))

	rec, err := c.GetLarge(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(300), rec.ByteSize)
	assert.Equal(t, models.ReasonDuringDownload, rec.Reason)
	assert.False(t, rec.RecordedAt.IsZero())

	var rows int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM documents_large`).Scan(&rows))
	assert.Equal(t, 1, rows)

	_, err = c.GetLarge(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func pending(url, hash string, ordinal int) models.PendingRecord {
	return models.PendingRecord{
		SourceURL:    url,
		Title:        "Pending",
		SourceType:   models.SourcePDF,
		Domain:       "example.com",
		ChunkContent: "content " + hash,
		ChunkHash:    hash,
		Ordinal:      ordinal,
		FileSize:     6 * 1024 * 1024,
	}
}

func TestPendingLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	url := "https://example.com/big.pdf"

	n, err := c.RecordPending(ctx, []models.PendingRecord{pending(url, "p1", 0), pending(url, "p2", 1)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.RecordPending(ctx, []models.PendingRecord{pending(url, "p1", 0)})
	require.NoError(t, err)
	assert.Zero(t, n)

	recs, err := c.ListPending(ctx, models.PendingFilter{SourceURL: url})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p1", recs[0].ChunkHash)
	assert.Equal(t, "p2", recs[1].ChunkHash)
	assert.Equal(t, models.PendingStatusPending, recs[0].Status)
	assert.Equal(t, models.SourcePDF, recs[0].SourceType)
	assert.NotEmpty(t, recs[0].ID)

	// approve first
	vec := []float32{1, 0, 0, 0}
	require.NoError(t, c.PromoteToApproved(ctx, recs[0].ID, vec))
	require.NoError(t, c.PromoteToApproved(ctx, recs[0].ID, vec))

	count, err := c.CountChunks(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := c.GetPending(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingStatusApproved, got.Status)

	// reject second
	require.NoError(t, c.RejectPending(ctx, recs[1].ID, "off topic"))
	got, err = c.GetPending(ctx, recs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PendingStatusRejected, got.Status)
	assert.Equal(t, "off topic", got.Notes)

	// approved rows cannot be rejected
	err = c.RejectPending(ctx, recs[0].ID, "late")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "already approved")

	stillPending, err := c.ListPending(ctx, models.PendingFilter{Status: models.PendingStatusPending})
	require.NoError(t, err)
	assert.Empty(t, stillPending)

	limited, err := c.ListPending(ctx, models.PendingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestPendingNotFound(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	_, err := c.GetPending(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, c.PromoteToApproved(ctx, "nope", []float32{1, 2, 3, 4}), core.ErrNotFound)
	assert.ErrorIs(t, c.RejectPending(ctx, "nope", ""), core.ErrNotFound)
	assert.ErrorIs(t, c.PromoteToApproved(ctx, "nope", []float32{1}), core.ErrSchemaMismatch)
}

func TestSourceStatus(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	url := "https://example.com/a"

	_, err := c.GetSource(ctx, url)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, c.SetSourceStatus(ctx, models.Source{URL: url, Type: models.SourceWebpage, Domain: "example.com", Status: models.StatusNew}))
	require.NoError(t, c.SetSourceStatus(ctx, models.Source{URL: url, Type: models.SourceWebpage, Domain: "example.com", Status: models.StatusProcessed}))

	src, err := c.GetSource(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, src.Status)
	assert.Equal(t, models.SourceWebpage, src.Type)
	assert.True(t, src.Status.Terminal())
}

func TestDetectCapabilities_MissingRequiredColumn(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "legacy.db"), testDim, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	for _, stmt := range []string{
		`CREATE TABLE documents (id TEXT PRIMARY KEY, source_url TEXT, content TEXT, embedding TEXT)`,
		`CREATE TABLE documents_pending (id TEXT PRIMARY KEY, source_url TEXT, chunk_content TEXT, chunk_hash TEXT, status TEXT)`,
		`CREATE TABLE documents_large (source_url TEXT PRIMARY KEY, byte_size INTEGER, reason TEXT)`,
		`CREATE TABLE sources (source_url TEXT PRIMARY KEY, status TEXT)`,
	} {
		_, err := c.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	err = c.DetectCapabilities(ctx)
	assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	assert.Contains(t, err.Error(), "chunk_hash")
}

func TestDetectCapabilities_OptionalColumnsOmitted(t *testing.T) {
	ctx := context.Background()
	c, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "minimal.db"), testDim, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	for _, stmt := range []string{
		`CREATE TABLE documents (id TEXT PRIMARY KEY, source_url TEXT, content TEXT, chunk_hash TEXT, embedding TEXT, UNIQUE (source_url, chunk_hash))`,
		`CREATE TABLE documents_pending (id TEXT PRIMARY KEY, source_url TEXT, chunk_content TEXT, chunk_hash TEXT, status TEXT, UNIQUE (source_url, chunk_hash))`,
		`CREATE TABLE documents_large (source_url TEXT PRIMARY KEY, byte_size INTEGER, reason TEXT)`,
		`CREATE TABLE sources (source_url TEXT PRIMARY KEY, status TEXT)`,
	} {
		_, err := c.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	require.NoError(t, c.DetectCapabilities(ctx))
	assert.False(t, c.caps.Has("documents", "source_title"))

	n, err := c.UpsertChunks(ctx, []models.EmbeddedChunk{chunk("https://example.com/a", "h1", "one", 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = c.RecordPending(ctx, []models.PendingRecord{pending("https://example.com/p", "p1", 0)})
	require.NoError(t, err)
	recs, err := c.ListPending(ctx, models.PendingFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Title)
	assert.True(t, recs[0].CreatedAt.IsZero())

	require.NoError(t, c.RecordLarge(ctx, models.LargeResourceRecord{SourceURL: "https://example.com/x", ByteSize: 1, Reason: models.ReasonAfterExtract}))
	require.NoError(t, c.SetSourceStatus(ctx, models.Source{URL: "https://example.com/x", Status: models.StatusSkippedTooLarge}))
	src, err := c.GetSource(ctx, "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkippedTooLarge, src.Status)
}

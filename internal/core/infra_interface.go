package core

import (
	"context"
	"io"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Store defines all persistence operations the pipeline and review flow need.
// It abstracts Postgres/pgvector and SQLite so higher layers never depend on a specific DB.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []models.EmbeddedChunk) (inserted int, err error)
	UpsertChunk(ctx context.Context, chunk models.EmbeddedChunk) (inserted bool, err error)
	ExistingHashes(ctx context.Context, sourceURL string) (map[string]struct{}, error)
	CountChunks(ctx context.Context, sourceURL string) (int, error)

	RecordLarge(ctx context.Context, rec models.LargeResourceRecord) error
	GetLarge(ctx context.Context, sourceURL string) (*models.LargeResourceRecord, error)

	RecordPending(ctx context.Context, recs []models.PendingRecord) (inserted int, err error)
	ListPending(ctx context.Context, filter models.PendingFilter) ([]models.PendingRecord, error)
	GetPending(ctx context.Context, id string) (*models.PendingRecord, error)
	PromoteToApproved(ctx context.Context, id string, embedding []float32) error
	RejectPending(ctx context.Context, id, notes string) error

	GetSource(ctx context.Context, sourceURL string) (*models.Source, error)
	SetSourceStatus(ctx context.Context, src models.Source) error

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}

// SourceLister yields the raw source list for a run.
type SourceLister interface {
	List(ctx context.Context) ([]string, error)
}

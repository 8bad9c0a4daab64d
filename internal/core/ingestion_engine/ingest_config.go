package ingestion_engine

import (
	"context"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunker"
	"github.com/markdave123-py/contexta-ingest/internal/core/extractors"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/core/triage"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

// Options tunes a pipeline run.
//
// Concurrency:   sources processed in parallel (default 4).
// SourceTimeout: budget for one source, detached from run cancellation (default 10m).
// Reprocess:     ignore terminal source statuses from earlier runs.
// MinContent:    floor below which an extraction is dropped.
type Options struct {
	Concurrency   int
	SourceTimeout time.Duration
	Reprocess     bool
	MinContent    extractors.MinContent
}

// BatchEmbedder embeds up to BatchSize texts per call.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	BatchSize() int
}

// Archiver copies raw bodies somewhere durable. Archive returns the key Remove takes.
type Archiver interface {
	Archive(ctx context.Context, sourceURL string, t models.SourceType, body []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// Expander adds discovered sources to a seed list.
type Expander interface {
	Expand(ctx context.Context, seeds []string) []string
}

// Deps are the collaborators of a Pipeline. Archiver and Expander are optional.
type Deps struct {
	Store     core.Store
	Router    *router.Router
	Triage    *triage.Triage
	Extractor core.Extractor
	Chunker   *chunker.Chunker
	Embedder  BatchEmbedder
	Archiver  Archiver
	Expander  Expander
}

// Pipeline orchestrates routing, triage, extraction, chunking, embedding and persistence per source.
type Pipeline struct {
	store     core.Store
	router    *router.Router
	triage    *triage.Triage
	extractor core.Extractor
	chunker   *chunker.Chunker
	embedder  BatchEmbedder
	archiver  Archiver
	expander  Expander
	opts      Options
	log       *logger.Logger
}

package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type Ingestor interface {
	Run(ctx context.Context, urls []string) (models.RunSummary, error)
	ProcessSource(ctx context.Context, url string) Outcome
}

var _ Ingestor = (*Pipeline)(nil)

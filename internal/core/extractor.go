package core

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Resource is what the triage gate hands to an extractor.
// Body is empty for DOCUMENT sources, which are fetched by DocumentID.
type Resource struct {
	URL         string
	Type        models.SourceType
	DocumentID  string
	Body        []byte
	ContentType string
	ByteSize    int64
}

// Extractor turns a resource into normalized text.
// An unreadable resource yields a document with empty text rather than an error.
type Extractor interface {
	Extract(ctx context.Context, res Resource) (*models.ExtractedDocument, error)
}

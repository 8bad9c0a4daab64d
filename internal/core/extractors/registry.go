package extractors

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ core.Extractor = (*Registry)(nil)

// Registry dispatches extraction by source type.
type Registry struct {
	byType map[models.SourceType]core.Extractor
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[models.SourceType]core.Extractor)}
}

func (r *Registry) Register(t models.SourceType, e core.Extractor) *Registry {
	r.byType[t] = e
	return r
}

func (r *Registry) Extract(ctx context.Context, res core.Resource) (*models.ExtractedDocument, error) {
	e, ok := r.byType[res.Type]
	if !ok {
		return nil, fmt.Errorf("extract %s: %w: %s", res.URL, core.ErrUnsupportedSource, res.Type)
	}
	return e.Extract(ctx, res)
}

// MinContent is the floor below which an extraction is not worth chunking.
type MinContent struct {
	Chars int
	Words int
}

// CheckContent returns core.ErrInsufficientContent when text is under either floor.
func CheckContent(text string, min MinContent) error {
	trimmed := strings.TrimSpace(text)
	chars := utf8.RuneCountInString(trimmed)
	words := len(strings.Fields(trimmed))
	if chars < min.Chars || words < min.Words {
		return fmt.Errorf("%w: %d chars, %d words", core.ErrInsufficientContent, chars, words)
	}
	return nil
}

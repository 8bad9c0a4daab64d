package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/extractors"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/core/triage"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// extract runs the type's extractor over what the gate fetched and enforces the content floor.
func (p *Pipeline) extract(ctx context.Context, url string, route router.Route, dec *triage.Decision) (*models.ExtractedDocument, error) {
	res := core.Resource{
		URL:         url,
		Type:        route.Type,
		DocumentID:  route.DocumentID,
		Body:        dec.Body,
		ContentType: dec.ContentType,
		ByteSize:    dec.ByteSize,
	}
	doc, err := p.extractor.Extract(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if doc.Title == "" {
		doc.Title = extractors.TitleFromURL(url)
	}
	if err := extractors.CheckContent(doc.Text, p.opts.MinContent); err != nil {
		return nil, err
	}
	return doc, nil
}

// archive uploads the raw body when an archiver is configured and returns its key, or "".
// Failures never fail the source.
func (p *Pipeline) archive(ctx context.Context, src models.Source, dec *triage.Decision) string {
	if p.archiver == nil || len(dec.Body) == 0 {
		return ""
	}
	key, err := p.archiver.Archive(ctx, src.URL, src.Type, dec.Body, dec.ContentType)
	if err != nil {
		p.log.Warn("raw archive failed", "url", src.URL, "error", err)
		return ""
	}
	p.log.Debug("raw archived", "url", src.URL, "object", key)
	return key
}

// unarchive drops the raw copy of a source that produced nothing worth keeping.
func (p *Pipeline) unarchive(ctx context.Context, src models.Source, key string) {
	if key == "" {
		return
	}
	if err := p.archiver.Remove(ctx, key); err != nil {
		p.log.Warn("raw archive cleanup failed", "url", src.URL, "object", key, "error", err)
	}
}

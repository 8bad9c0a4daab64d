package extractors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

var _ core.Extractor = (*DocExtractor)(nil)

const googleDocContentType = "application/vnd.google-apps.document"

// DocumentFetcher retrieves a Google document by id.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, id string) (*docs.Document, error)
}

type GoogleDocsFetcher struct {
	svc *docs.Service
}

// NewGoogleDocsFetcher builds a read-only Docs client from service-account JSON.
func NewGoogleDocsFetcher(ctx context.Context, credentialsJSON string, opts ...option.ClientOption) (*GoogleDocsFetcher, error) {
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	opts = append(opts, option.WithScopes(docs.DocumentsReadonlyScope))
	svc, err := docs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}
	return &GoogleDocsFetcher{svc: svc}, nil
}

func (f *GoogleDocsFetcher) FetchDocument(ctx context.Context, id string) (*docs.Document, error) {
	return f.svc.Documents.Get(id).Context(ctx).Do()
}

type DocExtractor struct {
	fetch   DocumentFetcher
	timeout time.Duration
	log     *logger.Logger
}

func NewDocExtractor(fetch DocumentFetcher, timeout time.Duration, log *logger.Logger) *DocExtractor {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DocExtractor{fetch: fetch, timeout: timeout, log: log}
}

// Extract fetches the document through the Docs API. Service errors yield an empty document.
func (e *DocExtractor) Extract(ctx context.Context, res core.Resource) (*models.ExtractedDocument, error) {
	out := &models.ExtractedDocument{
		Title:       TitleFromURL(res.URL),
		SourceType:  models.SourceDocument,
		ContentType: googleDocContentType,
	}
	id := res.DocumentID
	if id == "" {
		id = router.DocumentID(res.URL)
	}
	if id == "" || e.fetch == nil {
		e.log.Warn("gdoc: no document id or service", "url", res.URL)
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	doc, err := e.fetch.FetchDocument(ctx, id)
	if err != nil {
		e.log.Warn("gdoc: fetch failed", "url", res.URL, "document_id", id, "reason", googleReason(err), "error", err)
		return out, nil
	}
	if doc.Title != "" {
		out.Title = doc.Title
	}
	out.Text = DocumentText(doc)
	out.ByteSize = int64(len(out.Text))
	return out, nil
}

// DocumentText concatenates the text runs of every paragraph in body order.
func DocumentText(doc *docs.Document) string {
	if doc == nil || doc.Body == nil {
		return ""
	}
	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String()
}

func googleReason(err error) string {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return "transport"
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return "unauthorised"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return fmt.Sprintf("status_%d", gerr.Code)
}

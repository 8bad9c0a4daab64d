package extractors

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

var _ core.Extractor = (*PDFExtractor)(nil)

// TextFunc extracts plain text from a whole PDF body.
type TextFunc func(body []byte) (string, error)

type PDFExtractor struct {
	primary   TextFunc
	secondary TextFunc
	log       *logger.Logger
}

// NewPDFExtractor uses docconv (pdftotext) first and the pure-Go reader as fallback.
func NewPDFExtractor(log *logger.Logger) *PDFExtractor {
	return NewPDFExtractorWith(DocconvText, PageText, log)
}

func NewPDFExtractorWith(primary, secondary TextFunc, log *logger.Logger) *PDFExtractor {
	if log == nil {
		log = logger.Nop()
	}
	return &PDFExtractor{primary: primary, secondary: secondary, log: log}
}

func (e *PDFExtractor) Extract(ctx context.Context, res core.Resource) (*models.ExtractedDocument, error) {
	contentType := res.ContentType
	if contentType == "" || contentType == "application/octet-stream" || contentType == "binary/octet-stream" {
		contentType = "application/pdf"
	}
	out := &models.ExtractedDocument{
		Title:       FileTitle(res.URL),
		ByteSize:    res.ByteSize,
		SourceType:  models.SourcePDF,
		ContentType: contentType,
	}
	if len(res.Body) == 0 {
		return out, nil
	}

	text, err := safeText(e.primary, res.Body)
	if err == nil && strings.TrimSpace(text) != "" {
		out.Text = text
		return out, nil
	}
	e.log.Debug("pdf: primary extraction unusable, trying fallback", "url", res.URL, "error", err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text, err = safeText(e.secondary, res.Body)
	if err != nil {
		e.log.Warn("pdf: extraction failed", "url", res.URL, "error", err)
		return out, nil
	}
	out.Text = text
	return out, nil
}

// safeText converts a parser panic into an error.
func safeText(fn TextFunc, body []byte) (text string, err error) {
	if fn == nil {
		return "", fmt.Errorf("pdf: no parser configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	return fn(body)
}

func DocconvText(body []byte) (string, error) {
	text, _, err := docconv.ConvertPDF(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("docconv: %w", err)
	}
	return text, nil
}

// PageText reads page by page in page order, skipping empty pages.
func PageText(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		if strings.TrimSpace(t) == "" {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String(), nil
}

package triage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Verdict is the triage outcome for a resource.
type Verdict int

const (
	Proceed Verdict = iota
	Sideline
	Defer
)

func (v Verdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case Sideline:
		return "sideline"
	case Defer:
		return "defer"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Decision carries the verdict plus whatever the gate learned about the resource.
type Decision struct {
	Verdict     Verdict
	Reason      string
	ByteSize    int64
	ContentType string
	Body        []byte
}

// Fetcher is the transport the gate uses.
type Fetcher interface {
	Probe(ctx context.Context, url string) (*fetcher.Probe, error)
	Download(ctx context.Context, url string, maxBytes int64) (*fetcher.Download, error)
}

type Thresholds struct {
	MaxBytes         int64
	AutoApproveBytes int64
	ReviewDomains    []string
}

type Triage struct {
	fetch Fetcher
	th    Thresholds
}

func New(f Fetcher, th Thresholds) (*Triage, error) {
	if th.MaxBytes <= 0 {
		return nil, fmt.Errorf("triage: max bytes must be positive, got %d", th.MaxBytes)
	}
	if th.AutoApproveBytes <= 0 || th.AutoApproveBytes > th.MaxBytes {
		return nil, fmt.Errorf("triage: auto-approve bytes %d must be within (0, %d]", th.AutoApproveBytes, th.MaxBytes)
	}
	return &Triage{fetch: f, th: th}, nil
}

// Gate decides, before extraction, whether a resource may be fetched at all, and fetches it when it may.
// Network failures are returned as errors wrapping core.ErrTransientNetwork.
func (t *Triage) Gate(ctx context.Context, url string, route router.Route) (*Decision, error) {
	if route.Type == models.SourceDocument {
		return &Decision{Verdict: Proceed}, nil
	}

	probe := route.Probe
	if probe == nil && route.Type == models.SourcePDF {
		p, err := t.fetch.Probe(ctx, url)
		if err == nil {
			probe = p
		}
	}
	if probe != nil && probe.ContentLength > t.th.MaxBytes {
		return &Decision{
			Verdict:     Sideline,
			Reason:      models.ReasonPreDownload,
			ByteSize:    probe.ContentLength,
			ContentType: probe.ContentType,
		}, nil
	}

	dl, err := t.fetch.Download(ctx, url, t.th.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("triage download: %w", err)
	}
	if dl.Truncated {
		return &Decision{
			Verdict:     Sideline,
			Reason:      models.ReasonDuringDownload,
			ByteSize:    dl.ByteSize,
			ContentType: dl.ContentType,
		}, nil
	}

	contentType := dl.ContentType
	if contentType == "" && probe != nil {
		contentType = probe.ContentType
	}
	return &Decision{
		Verdict:     Proceed,
		ByteSize:    dl.ByteSize,
		ContentType: contentType,
		Body:        dl.Body,
	}, nil
}

// Admit decides, after extraction, whether the document is stored directly, held for review or sidelined.
func (t *Triage) Admit(src models.Source, doc *models.ExtractedDocument) Decision {
	size := doc.ByteSize
	switch {
	case size > t.th.MaxBytes:
		return Decision{Verdict: Sideline, Reason: models.ReasonAfterExtract, ByteSize: size}
	case size > t.th.AutoApproveBytes:
		return Decision{Verdict: Defer, Reason: "exceeds auto-approve threshold", ByteSize: size}
	case slices.Contains(t.th.ReviewDomains, strings.ToLower(src.Domain)):
		return Decision{Verdict: Defer, Reason: "domain requires review", ByteSize: size}
	case ambiguous(doc):
		return Decision{Verdict: Defer, Reason: "ambiguous content type", ByteSize: size}
	}
	return Decision{Verdict: Proceed, ByteSize: size, ContentType: doc.ContentType}
}

// ambiguous is true when nothing identified the payload's format. Google documents are typed by the API.
func ambiguous(doc *models.ExtractedDocument) bool {
	if doc.SourceType == models.SourceDocument {
		return false
	}
	ct := strings.ToLower(doc.ContentType)
	return ct == "" || ct == "application/octet-stream" || ct == "binary/octet-stream"
}

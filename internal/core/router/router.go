package router

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

var docPattern = regexp.MustCompile(`/document/d/([a-zA-Z0-9_-]+)`)

var trackingParams = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"_ga":     {},
	"ref_src": {},
}

// Route is the routing verdict for one source.
type Route struct {
	Type       models.SourceType
	DocumentID string
	// Probe is the HEAD response gathered while routing, nil when no probe ran or it failed.
	Probe *fetcher.Probe
}

// Prober is the subset of the fetcher the router needs.
type Prober interface {
	Probe(ctx context.Context, url string) (*fetcher.Probe, error)
}

type Router struct {
	prober Prober
	log    *logger.Logger
}

// New returns a router. A nil prober disables HEAD probing.
func New(prober Prober, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{prober: prober, log: log}
}

// Classify resolves the source type. Checks run in a fixed order: PDF, then Google document, then web page.
func (r *Router) Classify(ctx context.Context, raw string) (Route, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return Route{Type: models.SourceUnknown}, fmt.Errorf("classify %q: %w", raw, core.ErrMalformedSource)
	}

	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return Route{Type: models.SourcePDF}, nil
	}

	var probe *fetcher.Probe
	if r.prober != nil {
		p, err := r.prober.Probe(ctx, raw)
		if err != nil {
			r.log.Debug("router probe failed", "url", raw, "error", err)
		} else {
			probe = p
		}
	}
	if probe != nil && probe.ContentType == "application/pdf" {
		return Route{Type: models.SourcePDF, Probe: probe}, nil
	}

	if id := DocumentID(raw); id != "" {
		return Route{Type: models.SourceDocument, DocumentID: id, Probe: probe}, nil
	}

	return Route{Type: models.SourceWebpage, Probe: probe}, nil
}

// DocumentID extracts the Google document id from a /document/d/<id> URL.
func DocumentID(raw string) string {
	m := docPattern.FindStringSubmatch(raw)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// Canonicalize normalizes a source URL so equivalent spellings map to one identity.
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize %q: %w", raw, core.ErrMalformedSource)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("canonicalize %q: %w", raw, core.ErrMalformedSource)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if u.Path != "" && u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	} else {
		u.Path = ""
	}

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if _, ok := trackingParams[lk]; ok || strings.HasPrefix(lk, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()
	u.ForceQuery = false
	return u.String(), nil
}

// Domain returns the lowercase host of a URL, or "" when it cannot be parsed.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Extension returns the lowercase file extension of the URL path, if any.
func Extension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

// Dedupe canonicalizes a list and drops repeats, keeping first-seen order.
// Malformed entries are returned separately.
func Dedupe(raw []string) (canonical []string, malformed []string) {
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		c, err := Canonicalize(r)
		if err != nil {
			malformed = append(malformed, r)
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		canonical = append(canonical, c)
	}
	return canonical, malformed
}

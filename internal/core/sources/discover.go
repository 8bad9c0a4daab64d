package sources

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

// DefaultMaxLinks bounds how many children a single seed can add.
const DefaultMaxLinks = 50

// maxSeedBytes caps the seed page download.
const maxSeedBytes = 10 << 20

var junkLink = regexp.MustCompile(`(\.jpg|\.jpeg|\.png|\.gif|\.svg|/login|/signup|/search|/subscribe)`)

// PageFetcher downloads a seed page.
type PageFetcher interface {
	Download(ctx context.Context, url string, maxBytes int64) (*fetcher.Download, error)
}

// Discoverer expands root-like seed URLs with the same-domain links found on them.
type Discoverer struct {
	fetch PageFetcher
	max   int
	log   *logger.Logger
}

func NewDiscoverer(fetch PageFetcher, max int, log *logger.Logger) *Discoverer {
	if max <= 0 {
		max = DefaultMaxLinks
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Discoverer{fetch: fetch, max: max, log: log}
}

// RootLike reports whether a URL is a homepage or has a shallow path.
func RootLike(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" || p == "/" {
		return true
	}
	return strings.Count(p, "/") <= 2
}

// Expand returns seeds followed by discovered children, without repeats.
// Discovery failures are logged and leave the seed alone.
func (d *Discoverer) Expand(ctx context.Context, seeds []string) []string {
	seen := make(map[string]struct{}, len(seeds))
	out := make([]string, 0, len(seeds))
	add := func(u string) {
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	for _, s := range seeds {
		add(s)
	}

	for _, s := range seeds {
		if ctx.Err() != nil {
			break
		}
		if !RootLike(s) {
			continue
		}
		dl, err := d.fetch.Download(ctx, s, maxSeedBytes)
		if err != nil {
			d.log.Warn("link discovery failed", "url", s, "error", err)
			continue
		}
		links := Links(s, dl.Body, d.max)
		d.log.Debug("links discovered", "url", s, "count", len(links))
		for _, l := range links {
			c, err := router.Canonicalize(l)
			if err != nil {
				continue
			}
			add(c)
		}
	}
	return out
}

// Links collects same-domain http(s) anchors of an HTML page, skipping junk, with the query
// stripped, sorted and capped at max.
func Links(base string, body []byte, max int) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	domain := strings.ToLower(baseURL.Hostname())

	found := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if href == "" || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		full := baseURL.ResolveReference(ref)
		if full.Scheme != "http" && full.Scheme != "https" {
			return
		}
		if strings.ToLower(full.Hostname()) != domain {
			return
		}
		s := full.String()
		if strings.HasSuffix(s, "#") {
			return
		}
		if junkLink.MatchString(strings.ToLower(s)) {
			return
		}
		full.RawQuery = ""
		full.Fragment = ""
		full.RawFragment = ""
		found[strings.TrimRight(full.String(), "/")] = struct{}{}
	})

	links := make([]string, 0, len(found))
	for l := range found {
		links = append(links, l)
	}
	sort.Strings(links)
	if max > 0 && len(links) > max {
		links = links[:max]
	}
	return links
}

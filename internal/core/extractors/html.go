package extractors

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

var _ core.Extractor = (*HTMLExtractor)(nil)

// mainSelectors are tried in order; the first match becomes the content root.
var mainSelectors = []string{
	"article",
	"main",
	"div.main-content",
	"div#content",
	"div.content",
	"div[role='main']",
	"div.text-content",
}

const junkSelector = "nav, header, footer, script, style, noscript, aside, form, iframe, " +
	".sidebar, .footer, .breadcrumb, .usa-alert, .cookie-banner, [role='navigation']"

type HTMLExtractor struct {
	useReadability bool
	log            *logger.Logger
}

func NewHTMLExtractor(useReadability bool, log *logger.Logger) *HTMLExtractor {
	if log == nil {
		log = logger.Nop()
	}
	return &HTMLExtractor{useReadability: useReadability, log: log}
}

// Extract pulls the visible text of the page's main content.
// Non-HTML payloads and unparseable markup yield an empty document.
func (e *HTMLExtractor) Extract(ctx context.Context, res core.Resource) (*models.ExtractedDocument, error) {
	out := &models.ExtractedDocument{
		Title:       TitleFromURL(res.URL),
		ByteSize:    res.ByteSize,
		SourceType:  models.SourceWebpage,
		ContentType: res.ContentType,
	}
	if !isHTML(res.ContentType, res.Body) {
		e.log.Debug("html: not an html payload", "url", res.URL, "content_type", res.ContentType)
		return out, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		e.log.Warn("html: parse failed", "url", res.URL, "error", err)
		return out, nil
	}
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		out.Title = t
	}

	root := e.contentRoot(doc, res)
	root.Find(junkSelector).Remove()

	var parts []string
	collectText(root, &parts)
	out.Text = strings.Join(parts, "\n")
	return out, nil
}

func (e *HTMLExtractor) contentRoot(doc *goquery.Document, res core.Resource) *goquery.Selection {
	for _, sel := range mainSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}

	if e.useReadability {
		if u, err := url.Parse(res.URL); err == nil {
			rp := readability.NewParser()
			article, err := rp.Parse(bytes.NewReader(res.Body), u)
			if err == nil && strings.TrimSpace(article.Content) != "" {
				if adoc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
					return adoc.Selection
				}
			}
		}
	}

	if body := doc.Find("body"); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// collectText appends every non-blank text node under s in document order.
func collectText(s *goquery.Selection, out *[]string) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if t := collapse(c.Text()); t != "" {
				*out = append(*out, t)
			}
			return
		}
		collectText(c, out)
	})
}

func isHTML(contentType string, body []byte) bool {
	switch contentType {
	case "text/html", "application/xhtml+xml":
		return true
	case "", "application/octet-stream", "binary/octet-stream":
		return strings.HasPrefix(http.DetectContentType(body), "text/html")
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleFromURL derives a human title from the last path segment, or the host when there is no path.
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	seg := path.Base(strings.TrimRight(u.Path, "/"))
	if seg == "." || seg == "/" || seg == "" {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		seg = unescaped
	}
	seg = strings.TrimSuffix(seg, path.Ext(seg))
	seg = strings.NewReplacer("-", " ", "_", " ").Replace(seg)
	if seg = collapse(seg); seg == "" {
		return u.Hostname()
	}
	return seg
}

// FileTitle is the unescaped final path segment, extension included.
func FileTitle(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	seg := path.Base(u.Path)
	if seg == "." || seg == "/" || seg == "" {
		return u.Hostname()
	}
	if unescaped, err := url.PathUnescape(seg); err == nil {
		return unescaped
	}
	return seg
}

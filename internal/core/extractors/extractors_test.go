package extractors

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const page = `<!doctype html>
<html>
<head><title>  Benefits   Overview </title><style>.x{}</style></head>
<body>
  <nav>Home | About</nav>
  <header>Site header</header>
  <div class="usa-alert">An official website</div>
  <main>
    <h1>Apply for benefits</h1>
    <p>You can apply <a href="/apply">online</a>.</p>
    <div class="sidebar">Related links</div>
    <script>var tracking = 1;</script>
  </main>
  <footer>Contact us</footer>
</body>
</html>`

func TestHTMLExtractor_MainContent(t *testing.T) {
	e := NewHTMLExtractor(false, nil)
	doc, err := e.Extract(context.Background(), core.Resource{
		URL:         "https://example.gov/benefits/apply-now",
		Type:        models.SourceWebpage,
		Body:        []byte(page),
		ContentType: "text/html",
		ByteSize:    int64(len(page)),
	})
	require.NoError(t, err)
	assert.Equal(t, "Benefits Overview", doc.Title)
	assert.Equal(t, "Apply for benefits\nYou can apply\nonline\n.", doc.Text)
	assert.NotContains(t, doc.Text, "Related links")
	assert.NotContains(t, doc.Text, "tracking")
	assert.Equal(t, models.SourceWebpage, doc.SourceType)
}

func TestHTMLExtractor_BodyFallbackAndURLTitle(t *testing.T) {
	html := `<html><body><nav>menu</nav><p>First paragraph.</p><footer>foot</footer><p>Second.</p></body></html>`
	doc, err := NewHTMLExtractor(false, nil).Extract(context.Background(), core.Resource{
		URL:  "https://example.gov/help/contact_us",
		Body: []byte(html),
	})
	require.NoError(t, err)
	assert.Equal(t, "contact us", doc.Title)
	assert.Equal(t, "First paragraph.\nSecond.", doc.Text)
}

func TestHTMLExtractor_ReadabilityFallback(t *testing.T) {
	para := strings.Repeat("Eligible households can renew their coverage every year, and the renewal form asks for income, household size and current address. ", 4)
	html := `<html><head><title>Renewals</title></head><body>
<div class="wrapper"><div class="story">` +
		"<p>" + para + "</p><p>" + para + "</p><p>" + para + "</p>" +
		`</div><div class="comments-disqus">Reader comment thread goes here.</div></div>
</body></html>`
	res := core.Resource{URL: "https://example.gov/renewals", Body: []byte(html), ContentType: "text/html"}

	plain, err := NewHTMLExtractor(false, nil).Extract(context.Background(), res)
	require.NoError(t, err)
	assert.Contains(t, plain.Text, "Reader comment thread")

	doc, err := NewHTMLExtractor(true, nil).Extract(context.Background(), res)
	require.NoError(t, err)
	assert.Equal(t, "Renewals", doc.Title)
	assert.Contains(t, doc.Text, "Eligible households can renew")
	assert.NotContains(t, doc.Text, "Reader comment thread")
}

func TestHTMLExtractor_NonHTMLSoftFails(t *testing.T) {
	doc, err := NewHTMLExtractor(false, nil).Extract(context.Background(), core.Resource{
		URL:         "https://example.gov/data.json",
		Body:        []byte(`{"a":1}`),
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
}

func TestPDFExtractor_FallsBackOnPrimaryFailure(t *testing.T) {
	e := NewPDFExtractorWith(
		func([]byte) (string, error) { return "", errors.New("pdftotext not installed") },
		func([]byte) (string, error) { return "page one\npage two\n", nil },
		nil,
	)
	doc, err := e.Extract(context.Background(), core.Resource{
		URL:      "https://example.gov/files/Annual%20Report.pdf",
		Body:     []byte("%PDF-1.4"),
		ByteSize: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, "page one\npage two\n", doc.Text)
	assert.Equal(t, "Annual Report.pdf", doc.Title)
	assert.Equal(t, "application/pdf", doc.ContentType)
}

func TestPDFExtractor_PrimaryWins(t *testing.T) {
	secondaryCalled := false
	e := NewPDFExtractorWith(
		func([]byte) (string, error) { return "primary text", nil },
		func([]byte) (string, error) { secondaryCalled = true; return "", nil },
		nil,
	)
	doc, err := e.Extract(context.Background(), core.Resource{URL: "https://example.gov/a.pdf", Body: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "primary text", doc.Text)
	assert.False(t, secondaryCalled)
}

func TestPDFExtractor_PanicsAreContained(t *testing.T) {
	e := NewPDFExtractorWith(
		func([]byte) (string, error) { panic("malformed xref") },
		func([]byte) (string, error) { panic("index out of range") },
		nil,
	)
	doc, err := e.Extract(context.Background(), core.Resource{URL: "https://example.gov/a.pdf", Body: []byte("x")})
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
}

func TestPageText_RejectsGarbage(t *testing.T) {
	_, err := PageText([]byte("definitely not a pdf"))
	assert.Error(t, err)
}

type stubDocs struct {
	doc *docs.Document
	err error
	ids []string
}

func (s *stubDocs) FetchDocument(ctx context.Context, id string) (*docs.Document, error) {
	s.ids = append(s.ids, id)
	return s.doc, s.err
}

func paragraph(runs ...string) *docs.StructuralElement {
	var els []*docs.ParagraphElement
	for _, r := range runs {
		els = append(els, &docs.ParagraphElement{TextRun: &docs.TextRun{Content: r}})
	}
	return &docs.StructuralElement{Paragraph: &docs.Paragraph{Elements: els}}
}

func TestDocExtractor_ConcatenatesRuns(t *testing.T) {
	stub := &stubDocs{doc: &docs.Document{
		Title: "Program Guide",
		Body: &docs.Body{Content: []*docs.StructuralElement{
			paragraph("Hello ", "world\n"),
			{Table: &docs.Table{}},
			paragraph("Second line\n"),
		}},
	}}
	e := NewDocExtractor(stub, 0, nil)
	doc, err := e.Extract(context.Background(), core.Resource{
		URL:  "https://docs.google.com/document/d/abc123/edit",
		Type: models.SourceDocument,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, stub.ids)
	assert.Equal(t, "Program Guide", doc.Title)
	assert.Equal(t, "Hello world\nSecond line\n", doc.Text)
	assert.Equal(t, int64(len(doc.Text)), doc.ByteSize)
}

func TestDocExtractor_ServiceErrorSoftFails(t *testing.T) {
	stub := &stubDocs{err: &googleapi.Error{Code: 403, Message: "forbidden"}}
	doc, err := NewDocExtractor(stub, 0, nil).Extract(context.Background(), core.Resource{
		URL:        "https://docs.google.com/document/d/abc123",
		DocumentID: "abc123",
	})
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
	assert.Equal(t, "forbidden", googleReason(stub.err))
}

func TestRegistry_UnsupportedType(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), core.Resource{Type: models.SourceUnknown})
	assert.ErrorIs(t, err, core.ErrUnsupportedSource)
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry().Register(models.SourceWebpage, NewHTMLExtractor(false, nil))
	doc, err := r.Extract(context.Background(), core.Resource{
		Type: models.SourceWebpage, URL: "https://example.gov", Body: []byte("<p>hi</p>"), ContentType: "text/html",
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.Text)
	assert.Equal(t, "example.gov", doc.Title)
}

func TestCheckContent(t *testing.T) {
	min := MinContent{Chars: 200, Words: 20}

	err := CheckContent("too short", min)
	assert.ErrorIs(t, err, core.ErrInsufficientContent)

	long := strings.Repeat("x", 300)
	assert.ErrorIs(t, CheckContent(long, min), core.ErrInsufficientContent, "one long word is not enough")

	ok := strings.Repeat("word ", 50)
	assert.NoError(t, CheckContent(ok, min))
}

func TestTitleFromURL(t *testing.T) {
	assert.Equal(t, "example.gov", TitleFromURL("https://example.gov"))
	assert.Equal(t, "apply now", TitleFromURL("https://example.gov/a/apply-now/"))
	assert.Equal(t, "Fact Sheet", TitleFromURL("https://example.gov/Fact_Sheet.html"))
}

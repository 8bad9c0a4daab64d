package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

func TestNormalize(t *testing.T) {
	got := Normalize([]string{" Source URL ", "", "https://a.example/x ", "  ", "https://b.example"})
	assert.Equal(t, []string{"https://a.example/x", "https://b.example"}, got)

	// header only skipped in first position
	got = Normalize([]string{"https://a.example", "link"})
	assert.Equal(t, []string{"https://a.example", "link"}, got)
}

func TestArgsLister(t *testing.T) {
	got, err := ArgsLister{"https://a.example", " "}.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example"}, got)
}

func TestFileLister(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.txt")
	require.NoError(t, os.WriteFile(path, []byte("url\n# comment\nhttps://a.example\n\nhttps://b.example/doc.pdf\n"), 0o600))

	got, err := (&FileLister{Path: path}).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example/doc.pdf"}, got)

	_, err = (&FileLister{Path: filepath.Join(t.TempDir(), "missing")}).List(context.Background())
	assert.Error(t, err)
}

func TestSheetsLister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/spreadsheets/sheet-1/values/")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"range":"Sheet1!A1:A4","majorDimension":"ROWS","values":[["URL"],["https://a.example"],[],["https://b.example", "ignored"]]}`)
	}))
	defer srv.Close()

	svc, err := sheets.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	got, err := NewSheetsListerWithService(svc, "sheet-1", "").List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, got)
}

func TestNewSheetsLister_RequiresID(t *testing.T) {
	_, err := NewSheetsLister(context.Background(), "", "", "A:A")
	assert.Error(t, err)
}

func TestRootLike(t *testing.T) {
	assert.True(t, RootLike("https://example.com"))
	assert.True(t, RootLike("https://example.com/"))
	assert.True(t, RootLike("https://example.com/docs"))
	assert.True(t, RootLike("https://example.com/docs/guide"))
	assert.False(t, RootLike("https://example.com/docs/guide/install"))
}

const seedPage = `<html><body>
<a href="/guide?ref=nav">Guide</a>
<a href="/guide/">Guide again</a>
<a href="https://example.com/about#team">About</a>
<a href="https://other.com/x">External</a>
<a href="javascript:void(0)">JS</a>
<a href="mailto:hi@example.com">Mail</a>
<a href="/login">Login</a>
<a href="/img/logo.png">Logo</a>
<a href="ftp://example.com/file">FTP</a>
<a href="/">Home</a>
</body></html>`

func TestLinks(t *testing.T) {
	got := Links("https://example.com/", []byte(seedPage), 10)
	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/about",
		"https://example.com/guide",
	}, got)

	assert.Len(t, Links("https://example.com/", []byte(seedPage), 1), 1)
}

type stubPages struct {
	pages map[string]string
	calls []string
}

func (s *stubPages) Download(ctx context.Context, url string, maxBytes int64) (*fetcher.Download, error) {
	s.calls = append(s.calls, url)
	body, ok := s.pages[url]
	if !ok {
		return nil, errors.New("boom")
	}
	return &fetcher.Download{Body: []byte(body), ByteSize: int64(len(body)), ContentType: "text/html"}, nil
}

func TestDiscoverer_Expand(t *testing.T) {
	pages := &stubPages{pages: map[string]string{"https://example.com": seedPage}}
	d := NewDiscoverer(pages, 0, logger.Nop())

	got := d.Expand(context.Background(), []string{
		"https://example.com",
		"https://example.com/a/b/c",
		"https://broken.example",
	})

	assert.Equal(t, []string{
		"https://example.com",
		"https://example.com/a/b/c",
		"https://broken.example",
		"https://example.com/about",
		"https://example.com/guide",
	}, got)
	// deep seed is not fetched
	for _, c := range pages.calls {
		assert.False(t, strings.HasSuffix(c, "/a/b/c"))
	}
}

package fetcher

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

func newTestFetcher(retries int) *Fetcher {
	return New(Options{
		UserAgent:       "test-agent",
		HeadTimeout:     time.Second,
		DownloadTimeout: time.Second,
		Retries:         retries,
		Backoff:         time.Millisecond,
	})
}

func TestProbe_ReadsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "Application/PDF; charset=binary")
		w.Header().Set("Content-Length", "1234")
	}))
	defer srv.Close()

	p, err := newTestFetcher(0).Probe(t.Context(), srv.URL+"/doc")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", p.ContentType)
	assert.Equal(t, int64(1234), p.ContentLength)
	assert.Equal(t, http.StatusOK, p.StatusCode)
}

func TestProbe_ErrorStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(0).Probe(t.Context(), srv.URL)
	assert.ErrorIs(t, err, core.ErrTransientNetwork)
}

func TestDownload_UnderCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	d, err := newTestFetcher(0).Download(t.Context(), srv.URL, 1024)
	require.NoError(t, err)
	assert.False(t, d.Truncated)
	assert.Equal(t, "<html>hello</html>", string(d.Body))
	assert.Equal(t, int64(18), d.ByteSize)
	assert.Equal(t, "text/html", d.ContentType)
}

func TestDownload_AbandonsBodyPastCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// no Content-Length: chunked transfer forces the streaming check
		flusher := w.(http.Flusher)
		for i := 0; i < 10; i++ {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	d, err := newTestFetcher(0).Download(t.Context(), srv.URL, 250)
	require.NoError(t, err)
	assert.True(t, d.Truncated)
	assert.Nil(t, d.Body)
	assert.Equal(t, int64(251), d.ByteSize)
}

func TestDownload_DeclaredLengthPastCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(4096))
		_, _ = w.Write(make([]byte, 4096))
	}))
	defer srv.Close()

	d, err := newTestFetcher(0).Download(t.Context(), srv.URL, 1024)
	require.NoError(t, err)
	assert.True(t, d.Truncated)
	assert.Zero(t, d.ByteSize)
	assert.Equal(t, int64(4096), d.DeclaredSize)
	assert.Empty(t, d.Body)
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d, err := newTestFetcher(2).Download(t.Context(), srv.URL, 1024)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(d.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownload_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(3).Download(t.Context(), srv.URL, 1024)
	assert.ErrorIs(t, err, core.ErrTransientNetwork)
	assert.True(t, IsTransient(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "text/html", MediaType("text/html; charset=UTF-8"))
	assert.Equal(t, "application/pdf", MediaType("APPLICATION/PDF"))
	assert.Equal(t, "", MediaType(""))
}

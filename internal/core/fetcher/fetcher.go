package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/retry"
)

// Probe is the metadata returned by a HEAD request.
type Probe struct {
	StatusCode    int
	ContentType   string
	ContentLength int64 // -1 when the server did not declare one
	FinalURL      string
}

// Download is the result of a capped GET.
type Download struct {
	Body        []byte
	ByteSize    int64
	ContentType string
	// Truncated is set when the body exceeded the cap; Body then holds nothing and ByteSize the bytes read.
	// A response whose declared length already exceeds the cap is not read at all: ByteSize is 0 and
	// DeclaredSize carries the Content-Length.
	Truncated    bool
	DeclaredSize int64
}

type Options struct {
	UserAgent       string
	HeadTimeout     time.Duration
	DownloadTimeout time.Duration
	Retries         int
	Backoff         time.Duration
	Client          *http.Client
}

type Fetcher struct {
	client          *http.Client
	userAgent       string
	headTimeout     time.Duration
	downloadTimeout time.Duration
	retries         int
	backoff         time.Duration
}

func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	if opts.HeadTimeout <= 0 {
		opts.HeadTimeout = 8 * time.Second
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 60 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &Fetcher{
		client:          client,
		userAgent:       opts.UserAgent,
		headTimeout:     opts.HeadTimeout,
		downloadTimeout: opts.DownloadTimeout,
		retries:         opts.Retries,
		backoff:         opts.Backoff,
	}
}

// Probe issues a single HEAD request under the head timeout. It is not retried.
func (f *Fetcher) Probe(ctx context.Context, url string) (*Probe, error) {
	ctx, cancel := context.WithTimeout(ctx, f.headTimeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w: %v", url, core.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("head %s: %w: status %d", url, core.ErrTransientNetwork, resp.StatusCode)
	}

	return &Probe{
		StatusCode:    resp.StatusCode,
		ContentType:   MediaType(resp.Header.Get("Content-Type")),
		ContentLength: resp.ContentLength,
		FinalURL:      resp.Request.URL.String(),
	}, nil
}

// Download streams a GET body, abandoning it once more than maxBytes have been read.
// Transport failures and 5xx/429 responses are retried; other 4xx responses fail at once.
func (f *Fetcher) Download(ctx context.Context, url string, maxBytes int64) (*Download, error) {
	var out *Download
	err := retry.Do(ctx, f.retries+1, f.backoff, func(int) error {
		d, err := f.download(ctx, url, maxBytes)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) download(ctx context.Context, url string, maxBytes int64) (*Download, error) {
	ctx, cancel := context.WithTimeout(ctx, f.downloadTimeout)
	defer cancel()

	req, err := f.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w: %v", url, core.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("get %s: %w: status %d", url, core.ErrTransientNetwork, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, retry.Permanent(err)
	}

	contentType := MediaType(resp.Header.Get("Content-Type"))
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return &Download{ContentType: contentType, Truncated: true, DeclaredSize: resp.ContentLength}, nil
	}

	limit := maxBytes
	if limit <= 0 {
		limit = 1<<63 - 2
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %v", url, core.ErrTransientNetwork, err)
	}
	if int64(len(body)) > limit {
		return &Download{ByteSize: int64(len(body)), ContentType: contentType, Truncated: true}, nil
	}
	return &Download{Body: body, ByteSize: int64(len(body)), ContentType: contentType}, nil
}

func (f *Fetcher) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMalformedSource, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return req, nil
}

// MediaType lowercases a Content-Type header and drops its parameters.
func MediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(header, ";", 2)[0]))
	}
	return mt
}

// IsTransient reports whether err came from the network rather than the content.
func IsTransient(err error) bool {
	return errors.Is(err, core.ErrTransientNetwork) || errors.Is(err, context.DeadlineExceeded)
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/retry"
)

const MaxBatchSize = 100

type ClientConfig struct {
	BatchSize int
	Dim       int
	Retries   int
	Backoff   time.Duration
	Timeout   time.Duration
	// RPS limits provider calls per second; zero means unlimited.
	RPS float64
}

// Client wraps a provider with batching bounds, rate limiting, retries and result validation.
type Client struct {
	provider core.EmbeddingProvider
	cfg      ClientConfig
	limiter  *rate.Limiter
	log      *logger.Logger
}

func NewClient(p core.EmbeddingProvider, cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if p == nil {
		return nil, errors.New("embedding client: provider is nil")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxBatchSize {
		return nil, fmt.Errorf("embedding client: batch size %d outside 1..%d", cfg.BatchSize, MaxBatchSize)
	}
	if cfg.Dim <= 0 {
		return nil, fmt.Errorf("embedding client: dimension must be positive, got %d", cfg.Dim)
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{provider: p, cfg: cfg, limiter: limiter, log: log}, nil
}

func (c *Client) BatchSize() int { return c.cfg.BatchSize }
func (c *Client) Dim() int       { return c.cfg.Dim }

// EmbedBatch embeds up to BatchSize texts. A result whose count or dimension is wrong fails with
// core.ErrSchemaMismatch without retrying; exhausted retries fail with core.ErrEmbeddingFailed.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > c.cfg.BatchSize {
		return nil, fmt.Errorf("embed batch: %d texts exceeds batch size %d", len(texts), c.cfg.BatchSize)
	}

	var out [][]float32
	err := retry.Do(ctx, c.cfg.Retries, c.cfg.Backoff, func(attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}

		actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		vecs, err := c.provider.EmbedTexts(actx, texts)
		if err != nil {
			if errors.Is(err, core.ErrSchemaMismatch) {
				return retry.Permanent(err)
			}
			c.log.Warn("embedding attempt failed", "attempt", attempt+1, "of", c.cfg.Retries, "batch", len(texts), "error", err)
			return err
		}
		if err := c.validate(vecs, len(texts)); err != nil {
			return retry.Permanent(err)
		}
		out = vecs
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrSchemaMismatch) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("embed batch: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingFailed, err)
	}
	return out, nil
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) validate(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: got %d embeddings for %d texts", core.ErrSchemaMismatch, len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) != c.cfg.Dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d", core.ErrSchemaMismatch, i, len(v), c.cfg.Dim)
		}
	}
	return nil
}

// CheckDimension embeds one short text and fails with core.ErrSchemaMismatch when the provider's
// vectors are not Dim wide.
func (c *Client) CheckDimension(ctx context.Context) error {
	if _, err := c.Embed(ctx, "dimension check"); err != nil {
		return fmt.Errorf("check embedding dimension: %w", err)
	}
	return nil
}

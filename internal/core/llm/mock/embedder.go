// Package mock provides a deterministic embedding provider for tests and dry runs.
package mock

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var _ core.EmbeddingProvider = (*Embedder)(nil)

type Embedder struct {
	Dim int

	// EmbedTextsFunc replaces the default behaviour when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
	mu    sync.Mutex
	seen  []string
}

func NewEmbedder(dim int) *Embedder {
	return &Embedder{Dim: dim}
}

func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.seen = append(m.seen, texts...)
	m.mu.Unlock()

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t, m.Dim)
	}
	return out, nil
}

// Calls is the number of EmbedTexts invocations.
func (m *Embedder) Calls() int {
	return int(m.calls.Load())
}

// Texts returns every text passed to EmbedTexts, in call order.
func (m *Embedder) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen...)
}

// Vector derives a stable pseudo-random vector from text.
func Vector(text string, dim int) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum32()

	v := make([]float32, dim)
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000) / 1000.0
	}
	return v
}

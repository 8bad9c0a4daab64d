package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core/dedup"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	ModeChars = "chars"
	ModeWords = "words"
)

var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Span is one window over the input. Start and End are rune offsets in chars mode and word offsets in words mode.
type Span struct {
	Start int
	End   int
	Text  string
}

type Chunker struct {
	mode    string
	size    int
	overlap int
}

// New validates the window parameters. overlap must be strictly smaller than size.
func New(mode string, size, overlap int) (*Chunker, error) {
	if mode != ModeChars && mode != ModeWords {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidChunking, mode)
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, size, overlap)
	}
	return &Chunker{mode: mode, size: size, overlap: overlap}, nil
}

func (c *Chunker) Mode() string { return c.mode }

func (c *Chunker) stride() int {
	return max(1, c.size-c.overlap)
}

// Split walks the text left to right in windows of size units advancing by size-overlap.
// The final partial window is kept; windows holding only whitespace are dropped.
func (c *Chunker) Split(text string) []Span {
	if c.mode == ModeWords {
		return c.splitWords(text)
	}
	return c.splitChars(text)
}

func (c *Chunker) splitChars(text string) []Span {
	runes := []rune(text)
	n := len(runes)
	var spans []Span
	for start := 0; start < n; start += c.stride() {
		end := min(start+c.size, n)
		s := string(runes[start:end])
		if strings.TrimSpace(s) == "" {
			continue
		}
		spans = append(spans, Span{Start: start, End: end, Text: s})
	}
	return spans
}

func (c *Chunker) splitWords(text string) []Span {
	words := strings.Fields(text)
	n := len(words)
	var spans []Span
	for start := 0; start < n; start += c.stride() {
		end := min(start+c.size, n)
		spans = append(spans, Span{Start: start, End: end, Text: strings.Join(words[start:end], " ")})
	}
	return spans
}

// Chunks splits text and fingerprints each window. Ordinals follow window order.
func (c *Chunker) Chunks(sourceURL, text string) []models.Chunk {
	spans := c.Split(text)
	out := make([]models.Chunk, 0, len(spans))
	for i, s := range spans {
		out = append(out, models.Chunk{
			SourceURL:   sourceURL,
			Content:     s.Text,
			ContentHash: dedup.Fingerprint(s.Text),
			Ordinal:     i,
		})
	}
	return out
}

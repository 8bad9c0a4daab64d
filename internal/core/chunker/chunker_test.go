package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core/dedup"
)

func TestSplit_CharsScenario(t *testing.T) {
	c, err := New(ModeChars, 300, 50)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 100)
	spans := c.Split(text)

	require.Len(t, spans, 4)
	starts := []int{spans[0].Start, spans[1].Start, spans[2].Start, spans[3].Start}
	assert.Equal(t, []int{0, 250, 500, 750}, starts)
	for _, s := range spans[:3] {
		assert.Equal(t, 300, utf8.RuneCountInString(s.Text))
	}
	assert.Equal(t, 250, utf8.RuneCountInString(spans[3].Text))
}

func TestSplit_CoverageAndBounds(t *testing.T) {
	params := []struct{ size, overlap, length int }{
		{1200, 200, 5000},
		{100, 0, 1000},
		{100, 99, 350},
		{7, 3, 50},
		{50, 10, 49},
	}
	for _, p := range params {
		c, err := New(ModeChars, p.size, p.overlap)
		require.NoError(t, err)

		text := strings.Repeat("x", p.length)
		spans := c.Split(text)
		require.NotEmpty(t, spans)

		covered := make([]bool, p.length)
		for _, s := range spans {
			assert.LessOrEqual(t, s.End-s.Start, p.size)
			assert.Equal(t, text[s.Start:s.End], s.Text)
			for i := s.Start; i < s.End; i++ {
				covered[i] = true
			}
		}
		for i, ok := range covered {
			require.True(t, ok, "offset %d uncovered for size=%d overlap=%d", i, p.size, p.overlap)
		}

		stride := p.size - p.overlap
		want := (p.length + stride - 1) / stride
		assert.Len(t, spans, want)
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	c, err := New(ModeChars, 3, 1)
	require.NoError(t, err)

	spans := c.Split("héllo")
	require.Len(t, spans, 3)
	assert.Equal(t, "hél", spans[0].Text)
	assert.Equal(t, "llo", spans[1].Text)
	assert.Equal(t, "o", spans[2].Text)
}

func TestSplit_DropsWhitespaceWindows(t *testing.T) {
	c, err := New(ModeChars, 5, 0)
	require.NoError(t, err)

	spans := c.Split("hello      world")
	texts := make([]string, 0, len(spans))
	for _, s := range spans {
		texts = append(texts, s.Text)
	}
	assert.Equal(t, []string{"hello", " worl", "d"}, texts)
}

func TestSplit_Words(t *testing.T) {
	c, err := New(ModeWords, 4, 1)
	require.NoError(t, err)

	spans := c.Split("one two  three\nfour five six seven eight")
	require.Len(t, spans, 3)
	assert.Equal(t, "one two three four", spans[0].Text)
	assert.Equal(t, "four five six seven", spans[1].Text)
	assert.Equal(t, "seven eight", spans[2].Text)
	assert.Equal(t, 6, spans[2].Start)
	assert.Equal(t, 8, spans[2].End)
}

func TestSplit_Empty(t *testing.T) {
	c, err := New(ModeChars, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t "))
}

func TestNew_RejectsInvalid(t *testing.T) {
	cases := []struct {
		mode          string
		size, overlap int
	}{
		{ModeChars, 100, 100},
		{ModeChars, 100, 150},
		{ModeChars, 0, 0},
		{ModeWords, 10, -1},
		{"tokens", 10, 2},
	}
	for _, tc := range cases {
		_, err := New(tc.mode, tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidChunking, "%+v", tc)
	}
}

func TestChunks_FingerprintsAndOrdinals(t *testing.T) {
	c, err := New(ModeChars, 4, 0)
	require.NoError(t, err)

	chunks := c.Chunks("https://example.gov/a", "aaaabbbbaaaa")
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, "https://example.gov/a", ch.SourceURL)
		assert.Equal(t, dedup.Fingerprint(ch.Content), ch.ContentHash)
	}
	assert.Equal(t, chunks[0].ContentHash, chunks[2].ContentHash)
	assert.Len(t, dedup.Unique(chunks), 2)
}

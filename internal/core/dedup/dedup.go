package dedup

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// HashPrefixRunes bounds how much of a chunk contributes to its fingerprint.
const HashPrefixRunes = 2000

// Fingerprint is the hex SHA-1 of the first HashPrefixRunes runes of text.
func Fingerprint(text string) string {
	n := 0
	for i := range text {
		if n == HashPrefixRunes {
			text = text[:i]
			break
		}
		n++
	}
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// SourceKey is a stable, path-safe key for a canonical source URL.
func SourceKey(canonicalURL string) string {
	sum := sha1.Sum([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Unique drops chunks whose hash was already seen, keeping the first occurrence.
func Unique(chunks []models.Chunk) []models.Chunk {
	seen := make(map[string]struct{}, len(chunks))
	out := chunks[:0:0]
	for _, c := range chunks {
		if _, ok := seen[c.ContentHash]; ok {
			continue
		}
		seen[c.ContentHash] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Without drops chunks whose hash is in known.
func Without(chunks []models.Chunk, known map[string]struct{}) []models.Chunk {
	if len(known) == 0 {
		return chunks
	}
	out := make([]models.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := known[c.ContentHash]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

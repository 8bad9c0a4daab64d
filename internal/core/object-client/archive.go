package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/dedup"
	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Archiver copies raw downloaded bytes to object storage under raw/<domain>/<source key><ext>.
type Archiver struct {
	client core.ObjectClient
	bucket string
}

func NewArchiver(client core.ObjectClient, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket}
}

// Archive uploads body and returns its object key. An identical object already under the key is left alone.
func (a *Archiver) Archive(ctx context.Context, sourceURL string, t models.SourceType, body []byte, contentType string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("archive %s: empty body", sourceURL)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := Key(sourceURL, t, contentType)
	if prev, err := a.client.GetFile(ctx, a.bucket, key); err == nil && bytes.Equal(prev, body) {
		return key, nil
	}
	if _, err := a.client.UploadFile(ctx, a.bucket, key, bytes.NewReader(body), contentType); err != nil {
		return "", fmt.Errorf("archive %s: %w", sourceURL, err)
	}
	return key, nil
}

// Remove deletes an archived object.
func (a *Archiver) Remove(ctx context.Context, key string) error {
	if err := a.client.DeleteFile(ctx, a.bucket, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Key derives the object key for a source.
func Key(sourceURL string, t models.SourceType, contentType string) string {
	domain := router.Domain(sourceURL)
	if domain == "" {
		domain = "unknown"
	}
	return path.Join("raw", domain, dedup.SourceKey(sourceURL)+extension(sourceURL, t, contentType))
}

func extension(sourceURL string, t models.SourceType, contentType string) string {
	switch t {
	case models.SourcePDF:
		return ".pdf"
	case models.SourceDocument:
		return ".json"
	}
	switch fetcher.MediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return ".html"
	case "text/plain":
		return ".txt"
	}
	if ext := router.Extension(sourceURL); ext != "" && len(ext) <= 6 {
		return ext
	}
	return ".bin"
}

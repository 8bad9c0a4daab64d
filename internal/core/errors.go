package core

import "errors"

var (
	// ErrTransientNetwork covers timeouts, connection resets and HTTP >= 400 from a source host.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrInsufficientContent marks an extraction too short to be worth storing.
	ErrInsufficientContent = errors.New("insufficient content")

	// ErrSchemaMismatch is returned when embeddings or the store schema disagree with the configuration.
	ErrSchemaMismatch = errors.New("schema mismatch")

	ErrMalformedSource   = errors.New("malformed source url")
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrEmbeddingFailed   = errors.New("embedding failed")
	ErrNotFound          = errors.New("not found")

	// ErrInvalidTransition rejects review actions on chunks that were already decided.
	ErrInvalidTransition = errors.New("invalid review transition")
)

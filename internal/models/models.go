package models

import (
	"time"
)

// SourceType is the routing class of a source URL.
type SourceType string

const (
	SourceWebpage  SourceType = "WEBPAGE"
	SourcePDF      SourceType = "PDF"
	SourceDocument SourceType = "DOCUMENT"
	SourceUnknown  SourceType = "UNKNOWN"
)

// SourceStatus is the processing state of a source across runs.
type SourceStatus string

const (
	StatusNew             SourceStatus = "new"
	StatusSkippedTooLarge SourceStatus = "skipped_too_large"
	StatusManualReview    SourceStatus = "manual_review"
	StatusProcessed       SourceStatus = "processed"
	StatusApproved        SourceStatus = "approved"
)

// Terminal reports whether a source in this status is left alone by a normal run.
func (s SourceStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusSkippedTooLarge, StatusManualReview, StatusApproved:
		return true
	}
	return false
}

// Pending row states.
const (
	PendingStatusPending  = "pending"
	PendingStatusApproved = "approved"
	PendingStatusRejected = "rejected"
)

// Reasons recorded on LargeResourceRecord.
const (
	ReasonPreDownload    = "exceeds_cap_pre_download"
	ReasonDuringDownload = "exceeds_cap_during_download"
	ReasonAfterExtract   = "exceeds_cap_after_extract"
)

// Source is one entry of the source list, identified by its canonical URL.
type Source struct {
	URL       string       `db:"source_url" json:"source_url"`
	Type      SourceType   `db:"source_type" json:"source_type"`
	Domain    string       `db:"source_domain" json:"source_domain"`
	Status    SourceStatus `db:"status" json:"status"`
	Notes     string       `db:"notes" json:"notes,omitempty"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// ExtractedDocument is the normalized output of an extractor. It is never persisted as a whole.
type ExtractedDocument struct {
	Title       string
	Text        string
	ByteSize    int64
	SourceType  SourceType
	ContentType string
}

// Chunk is one bounded substring of an extracted document.
type Chunk struct {
	SourceURL   string `db:"source_url" json:"source_url"`
	Content     string `db:"content" json:"content"`
	ContentHash string `db:"chunk_hash" json:"chunk_hash"`
	Ordinal     int    `db:"ordinal" json:"ordinal"`
}

// EmbeddedChunk is a chunk ready for the documents table.
type EmbeddedChunk struct {
	Chunk
	Title      string     `db:"source_title" json:"source_title"`
	SourceType SourceType `db:"source_type" json:"source_type"`
	Domain     string     `db:"source_domain" json:"source_domain"`
	Embedding  []float32  `db:"embedding" json:"-"`
	ScrapedAt  time.Time  `db:"scraped_at" json:"scraped_at"`
}

// LargeResourceRecord sidelines a resource above the hard size cap.
type LargeResourceRecord struct {
	SourceURL  string    `db:"source_url" json:"source_url"`
	Domain     string    `db:"source_domain" json:"source_domain"`
	Title      string    `db:"source_title" json:"source_title"`
	ByteSize   int64     `db:"byte_size" json:"byte_size"`
	Reason     string    `db:"reason" json:"reason"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// PendingRecord holds an extracted chunk waiting for manual approval before it is embedded.
type PendingRecord struct {
	ID           string     `db:"id" json:"id"`
	SourceURL    string     `db:"source_url" json:"source_url"`
	Title        string     `db:"source_title" json:"source_title"`
	SourceType   SourceType `db:"source_type" json:"source_type"`
	Domain       string     `db:"source_domain" json:"source_domain"`
	ChunkContent string     `db:"chunk_content" json:"chunk_content"`
	ChunkHash    string     `db:"chunk_hash" json:"chunk_hash"`
	Ordinal      int        `db:"ordinal" json:"ordinal"`
	FileSize     int64      `db:"file_size" json:"file_size"`
	Status       string     `db:"status" json:"status"`
	Notes        string     `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// PendingFilter narrows ListPending.
type PendingFilter struct {
	SourceURL string
	Status    string
	Limit     int
}

// RunSummary is reported at the end of a pipeline run.
type RunSummary struct {
	RunID        string    `json:"run_id"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Sidelined    int       `json:"sidelined"`
	ManualReview int       `json:"manual_review"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	ChunksStored int       `json:"chunks_stored"`
}

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

const defaultListLimit = 100

// Embedder embeds a single approved chunk.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ReviewService drives the manual-review lifecycle of pending chunks.
type ReviewService struct {
	store    core.Store
	embedder Embedder
	log      *logger.Logger
}

func NewReviewService(store core.Store, embedder Embedder, log *logger.Logger) *ReviewService {
	if log == nil {
		log = logger.Nop()
	}
	return &ReviewService{store: store, embedder: embedder, log: log}
}

func (s *ReviewService) List(ctx context.Context, filter models.PendingFilter) ([]models.PendingRecord, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.SourceURL != "" {
		u, err := router.Canonicalize(filter.SourceURL)
		if err != nil {
			return nil, err
		}
		filter.SourceURL = u
	}
	return s.store.ListPending(ctx, filter)
}

// Approve embeds the pending chunk and promotes it. Approving twice is a no-op.
func (s *ReviewService) Approve(ctx context.Context, id string) error {
	rec, err := s.store.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if err := s.approve(ctx, rec); err != nil {
		return err
	}
	return s.settleSource(ctx, rec.SourceURL)
}

func (s *ReviewService) approve(ctx context.Context, rec *models.PendingRecord) error {
	switch rec.Status {
	case models.PendingStatusApproved:
		return nil
	case models.PendingStatusRejected:
		return fmt.Errorf("%w: pending %s was rejected", core.ErrInvalidTransition, rec.ID)
	}
	vec, err := s.embedder.Embed(ctx, rec.ChunkContent)
	if err != nil {
		return fmt.Errorf("embed pending %s: %w", rec.ID, err)
	}
	if err := s.store.PromoteToApproved(ctx, rec.ID, vec); err != nil {
		return fmt.Errorf("promote pending %s: %w", rec.ID, err)
	}
	s.log.Info("pending chunk approved", "id", rec.ID, "url", rec.SourceURL)
	return nil
}

// ApproveSource approves every pending chunk of a source and returns how many were promoted.
// sourceURL may be any spelling of the source; it is canonicalized first.
func (s *ReviewService) ApproveSource(ctx context.Context, sourceURL string) (int, error) {
	sourceURL, err := router.Canonicalize(sourceURL)
	if err != nil {
		return 0, err
	}
	recs, err := s.store.ListPending(ctx, models.PendingFilter{SourceURL: sourceURL, Status: models.PendingStatusPending})
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, fmt.Errorf("no pending chunks for %s: %w", sourceURL, core.ErrNotFound)
	}
	approved := 0
	for i := range recs {
		if err := s.approve(ctx, &recs[i]); err != nil {
			return approved, err
		}
		approved++
	}
	return approved, s.settleSource(ctx, sourceURL)
}

func (s *ReviewService) Reject(ctx context.Context, id, notes string) error {
	rec, err := s.store.GetPending(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.RejectPending(ctx, id, notes); err != nil {
		return err
	}
	s.log.Info("pending chunk rejected", "id", id, "url", rec.SourceURL)
	return s.settleSource(ctx, rec.SourceURL)
}

// settleSource moves a source out of manual_review once none of its chunks are still pending.
func (s *ReviewService) settleSource(ctx context.Context, sourceURL string) error {
	left, err := s.store.ListPending(ctx, models.PendingFilter{SourceURL: sourceURL, Status: models.PendingStatusPending, Limit: 1})
	if err != nil {
		return err
	}
	if len(left) > 0 {
		return nil
	}
	src, err := s.store.GetSource(ctx, sourceURL)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if src.Status != models.StatusManualReview {
		return nil
	}
	src.Status = models.StatusApproved
	src.Notes = "review complete"
	src.UpdatedAt = time.Time{}
	return s.store.SetSourceStatus(ctx, *src)
}

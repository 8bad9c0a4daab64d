package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	middleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

type Reviewer interface {
	List(ctx context.Context, filter models.PendingFilter) ([]models.PendingRecord, error)
	Approve(ctx context.Context, id string) error
	ApproveSource(ctx context.Context, sourceURL string) (int, error)
	Reject(ctx context.Context, id, notes string) error
}

type ReviewHandler struct {
	review Reviewer
	log    *logger.Logger
}

func NewReviewHandler(review Reviewer, log *logger.Logger) *ReviewHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ReviewHandler{review: review, log: log}
}

// ListPending serves GET /api/pending?source=&status=&limit=.
func (h *ReviewHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PendingFilter{
		SourceURL: q.Get("source"),
		Status:    q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	recs, err := h.review.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []models.PendingRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.review.Approve(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	reviewer, _ := middleware.Reviewer(r.Context())
	h.log.Info("review approve", "id", id, "reviewer", reviewer)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.PendingStatusApproved})
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.review.Reject(r.Context(), id, req.Notes); err != nil {
		writeError(w, err)
		return
	}
	reviewer, _ := middleware.Reviewer(r.Context())
	h.log.Info("review reject", "id", id, "reviewer", reviewer)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": models.PendingStatusRejected})
}

type approveSourceRequest struct {
	URL string `json:"url"`
}

func (h *ReviewHandler) ApproveSource(w http.ResponseWriter, r *http.Request) {
	var req approveSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	n, err := h.review.ApproveSource(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": req.URL, "approved": n})
}

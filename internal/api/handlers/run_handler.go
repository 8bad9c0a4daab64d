package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type RunStarter interface {
	Start(urls []string) (string, error)
	Get(id string) (services.RunStatus, error)
}

type RunHandler struct {
	runs RunStarter
}

func NewRunHandler(runs RunStarter) *RunHandler {
	return &RunHandler{runs: runs}
}

type startRunRequest struct {
	URLs []string `json:"urls"`
}

// StartRun launches a background run and answers 202 with its id.
func (h *RunHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	id, err := h.runs.Start(req.URLs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	st, err := h.runs.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

type RunState string

const (
	RunRunning  RunState = "running"
	RunFinished RunState = "finished"
	RunFailed   RunState = "failed"
)

// RunStatus is the externally visible state of a background run.
type RunStatus struct {
	ID       string             `json:"id"`
	State    RunState           `json:"state"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished,omitempty"`
	Summary  *models.RunSummary `json:"summary,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type Runner interface {
	Run(ctx context.Context, urls []string) (models.RunSummary, error)
}

// RunService starts pipeline runs in the background and remembers their outcome.
type RunService struct {
	base   context.Context
	runner Runner
	lister core.SourceLister
	log    *logger.Logger

	mu   sync.RWMutex
	runs map[string]*RunStatus
	wg   sync.WaitGroup
}

// NewRunService binds runs to base; cancelling it stops submission in every active run.
// lister may be nil, in which case every Start needs explicit URLs.
func NewRunService(base context.Context, runner Runner, lister core.SourceLister, log *logger.Logger) *RunService {
	if log == nil {
		log = logger.Nop()
	}
	return &RunService{base: base, runner: runner, lister: lister, log: log, runs: make(map[string]*RunStatus)}
}

// Start launches a run over urls, or over the configured source list when urls is empty.
func (s *RunService) Start(urls []string) (string, error) {
	if len(urls) == 0 && s.lister == nil {
		return "", errors.New("no sources given and no source list configured")
	}

	id := uuid.NewString()
	st := &RunStatus{ID: id, State: RunRunning, Started: time.Now().UTC()}
	s.mu.Lock()
	s.runs[id] = st
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sum, err := s.run(urls)
		s.finish(id, sum, err)
	}()
	return id, nil
}

func (s *RunService) run(urls []string) (*models.RunSummary, error) {
	if len(urls) == 0 {
		listed, err := s.lister.List(s.base)
		if err != nil {
			return nil, fmt.Errorf("list sources: %w", err)
		}
		urls = listed
	}
	sum, err := s.runner.Run(s.base, urls)
	return &sum, err
}

func (s *RunService) finish(id string, sum *models.RunSummary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.runs[id]
	st.Finished = time.Now().UTC()
	st.Summary = sum
	st.State = RunFinished
	if err != nil {
		st.State = RunFailed
		st.Error = err.Error()
		s.log.Warn("background run failed", "id", id, "error", err)
	}
}

// Get returns a copy of the run's status.
func (s *RunService) Get(id string) (RunStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.runs[id]
	if !ok {
		return RunStatus{}, fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	return *st, nil
}

// Wait blocks until every background run has returned.
func (s *RunService) Wait() {
	s.wg.Wait()
}

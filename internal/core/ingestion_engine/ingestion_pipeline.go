package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/dedup"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/core/triage"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
)

const (
	defaultConcurrency   = 4
	defaultSourceTimeout = 10 * time.Minute
)

// Result is how a single source ended.
type Result string

const (
	ResultProcessed    Result = "processed"
	ResultSidelined    Result = "sidelined"
	ResultManualReview Result = "manual_review"
	ResultSkipped      Result = "skipped"
	ResultInsufficient Result = "insufficient"
	ResultFailed       Result = "failed"
)

// Outcome reports what ProcessSource did. Err is set for failed and skipped-malformed sources.
type Outcome struct {
	URL    string
	Result Result
	Chunks int
	Err    error
}

func New(deps Deps, opts Options, log *logger.Logger) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is nil")
	case deps.Router == nil:
		return nil, errors.New("pipeline: router is nil")
	case deps.Triage == nil:
		return nil, errors.New("pipeline: triage is nil")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is nil")
	case deps.Chunker == nil:
		return nil, errors.New("pipeline: chunker is nil")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is nil")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = defaultSourceTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		store:     deps.Store,
		router:    deps.Router,
		triage:    deps.Triage,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		archiver:  deps.Archiver,
		expander:  deps.Expander,
		opts:      opts,
		log:       log,
	}, nil
}

// Run ingests every source in urls on a bounded worker pool and returns the tally.
// Cancelling ctx stops submission; sources already running finish under their own timeout.
func (p *Pipeline) Run(ctx context.Context, urls []string) (models.RunSummary, error) {
	sum := models.RunSummary{RunID: uuid.NewString(), Started: time.Now().UTC()}
	log := p.log.With("run_id", sum.RunID)

	canonical, malformed := router.Dedupe(urls)
	for _, m := range malformed {
		log.Warn("malformed source skipped", "url", m)
	}
	if p.expander != nil {
		canonical = p.expander.Expand(ctx, canonical)
	}
	sum.Total = len(canonical) + len(malformed)
	sum.Skipped = len(malformed)
	log.Info("run started", "sources", len(canonical), "malformed", len(malformed), "concurrency", p.opts.Concurrency)

	pool, err := ants.NewPool(p.opts.Concurrency)
	if err != nil {
		return sum, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	record := func(o Outcome) {
		mu.Lock()
		tally(&sum, o)
		mu.Unlock()
	}

	for _, u := range canonical {
		if ctx.Err() != nil {
			log.Warn("run cancelled, not submitting remaining sources")
			break
		}
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			// Submit blocks while the pool is full, so cancellation may land while this source waited for a slot.
			if err := ctx.Err(); err != nil {
				record(Outcome{URL: u, Result: ResultSkipped, Err: err})
				return
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SourceTimeout)
			defer cancel()
			record(p.process(sctx, log, u))
		})
		if err != nil {
			wg.Done()
			record(Outcome{URL: u, Result: ResultFailed, Err: fmt.Errorf("submit: %w", err)})
		}
	}
	wg.Wait()

	sum.Finished = time.Now().UTC()
	log.Info("run finished",
		"total", sum.Total,
		"processed", sum.Processed,
		"sidelined", sum.Sidelined,
		"manual_review", sum.ManualReview,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"chunks_stored", sum.ChunksStored,
		"elapsed", sum.Finished.Sub(sum.Started).String(),
	)
	return sum, ctx.Err()
}

func tally(sum *models.RunSummary, o Outcome) {
	switch o.Result {
	case ResultProcessed:
		sum.Processed++
	case ResultSidelined:
		sum.Sidelined++
	case ResultManualReview:
		sum.ManualReview++
	case ResultSkipped, ResultInsufficient:
		sum.Skipped++
	default:
		sum.Failed++
	}
	sum.ChunksStored += o.Chunks
}

// ProcessSource runs one source end to end. It never panics and never returns an error:
// every failure becomes an Outcome.
func (p *Pipeline) ProcessSource(ctx context.Context, url string) Outcome {
	return p.process(ctx, p.log, url)
}

func (p *Pipeline) process(ctx context.Context, log *logger.Logger, raw string) (out Outcome) {
	out.URL = raw
	defer func() {
		if r := recover(); r != nil {
			log.Error("source panicked", "url", out.URL, "panic", r, "stack", string(debug.Stack()))
			out.Result = ResultFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	out = p.processSource(ctx, log, raw)
	switch out.Result {
	case ResultFailed:
		log.Warn("source failed", "url", out.URL, "error", out.Err)
	case ResultSkipped, ResultInsufficient:
		log.Info("source skipped", "url", out.URL, "result", out.Result, "reason", out.Err)
	default:
		log.Info("source done", "url", out.URL, "result", out.Result, "chunks", out.Chunks)
	}
	return out
}

func (p *Pipeline) processSource(ctx context.Context, log *logger.Logger, raw string) Outcome {
	url, err := router.Canonicalize(raw)
	if err != nil {
		return Outcome{URL: raw, Result: ResultSkipped, Err: err}
	}

	if !p.opts.Reprocess {
		prev, err := p.store.GetSource(ctx, url)
		switch {
		case err == nil && prev.Status.Terminal():
			return Outcome{URL: url, Result: ResultSkipped, Err: fmt.Errorf("already %s", prev.Status)}
		case err != nil && !errors.Is(err, core.ErrNotFound):
			return Outcome{URL: url, Result: ResultFailed, Err: fmt.Errorf("load source: %w", err)}
		}
	}

	route, err := p.router.Classify(ctx, url)
	if err != nil {
		return Outcome{URL: url, Result: ResultSkipped, Err: err}
	}
	src := models.Source{URL: url, Type: route.Type, Domain: router.Domain(url), Status: models.StatusNew}
	log.Debug("source routed", "url", url, "type", route.Type)

	dec, err := p.triage.Gate(ctx, url, route)
	if err != nil {
		return p.fail(ctx, src, err)
	}
	if dec.Verdict == triage.Sideline {
		return p.sideline(ctx, src, "", *dec)
	}
	key := p.archive(ctx, src, dec)

	doc, err := p.extract(ctx, url, route, dec)
	if errors.Is(err, core.ErrInsufficientContent) {
		p.unarchive(ctx, src, key)
		return Outcome{URL: url, Result: ResultInsufficient, Err: err}
	}
	if err != nil {
		return p.fail(ctx, src, err)
	}

	adm := p.triage.Admit(src, doc)
	switch adm.Verdict {
	case triage.Sideline:
		return p.sideline(ctx, src, doc.Title, adm)
	case triage.Defer:
		return p.deferReview(ctx, src, doc, adm)
	}
	return p.proceed(ctx, src, doc)
}

// proceed embeds and stores the chunks not already stored for the source.
func (p *Pipeline) proceed(ctx context.Context, src models.Source, doc *models.ExtractedDocument) Outcome {
	chunks := dedup.Unique(p.chunker.Chunks(src.URL, doc.Text))
	known, err := p.store.ExistingHashes(ctx, src.URL)
	if err != nil {
		return p.fail(ctx, src, fmt.Errorf("existing hashes: %w", err))
	}
	todo := dedup.Without(chunks, known)

	stored := 0
	if len(todo) > 0 {
		stored, err = p.storeChunks(ctx, src, doc.Title, todo)
		if err != nil {
			out := p.fail(ctx, src, err)
			out.Chunks = stored
			return out
		}
	}

	src.Status = models.StatusProcessed
	src.Notes = fmt.Sprintf("%d chunks, %d new", len(chunks), stored)
	if err := p.store.SetSourceStatus(ctx, src); err != nil {
		return Outcome{URL: src.URL, Result: ResultFailed, Chunks: stored, Err: fmt.Errorf("set status: %w", err)}
	}
	return Outcome{URL: src.URL, Result: ResultProcessed, Chunks: stored}
}

// deferReview parks the chunks for a reviewer without embedding them.
func (p *Pipeline) deferReview(ctx context.Context, src models.Source, doc *models.ExtractedDocument, adm triage.Decision) Outcome {
	chunks := dedup.Unique(p.chunker.Chunks(src.URL, doc.Text))
	recs := make([]models.PendingRecord, len(chunks))
	for i, c := range chunks {
		recs[i] = models.PendingRecord{
			SourceURL:    src.URL,
			Title:        doc.Title,
			SourceType:   src.Type,
			Domain:       src.Domain,
			ChunkContent: c.Content,
			ChunkHash:    c.ContentHash,
			Ordinal:      c.Ordinal,
			FileSize:     doc.ByteSize,
			Status:       models.PendingStatusPending,
			Notes:        adm.Reason,
		}
	}
	if _, err := p.store.RecordPending(ctx, recs); err != nil {
		return p.fail(ctx, src, fmt.Errorf("record pending: %w", err))
	}

	src.Status = models.StatusManualReview
	src.Notes = adm.Reason
	if err := p.store.SetSourceStatus(ctx, src); err != nil {
		return Outcome{URL: src.URL, Result: ResultFailed, Err: fmt.Errorf("set status: %w", err)}
	}
	return Outcome{URL: src.URL, Result: ResultManualReview}
}

// sideline records the resource as too large. Nothing is extracted or embedded.
func (p *Pipeline) sideline(ctx context.Context, src models.Source, title string, dec triage.Decision) Outcome {
	if err := p.store.RecordLarge(ctx, models.LargeResourceRecord{
		SourceURL: src.URL,
		Domain:    src.Domain,
		Title:     title,
		ByteSize:  dec.ByteSize,
		Reason:    dec.Reason,
	}); err != nil {
		return p.fail(ctx, src, fmt.Errorf("record large: %w", err))
	}

	src.Status = models.StatusSkippedTooLarge
	src.Notes = dec.Reason
	if err := p.store.SetSourceStatus(ctx, src); err != nil {
		return Outcome{URL: src.URL, Result: ResultFailed, Err: fmt.Errorf("set status: %w", err)}
	}
	return Outcome{URL: src.URL, Result: ResultSidelined}
}

// fail leaves the source in status new with the error as notes so the next run retries it.
func (p *Pipeline) fail(ctx context.Context, src models.Source, cause error) Outcome {
	src.Status = models.StatusNew
	src.Notes = cause.Error()
	if err := p.store.SetSourceStatus(ctx, src); err != nil {
		p.log.Warn("could not record failure", "url", src.URL, "error", err)
	}
	return Outcome{URL: src.URL, Result: ResultFailed, Err: cause}
}

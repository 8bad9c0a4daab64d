package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunker"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/extractors"
	"github.com/markdave123-py/contexta-ingest/internal/core/fetcher"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/core/router"
	"github.com/markdave123-py/contexta-ingest/internal/core/sources"
	"github.com/markdave123-py/contexta-ingest/internal/core/triage"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Store    *db.DatabaseClient
	Embedder *llm.Client
	Pipeline *ingestion_engine.Pipeline
	Review   *services.ReviewService

	closers []func() error
}

// Overrides adjust a run without touching the environment.
type Overrides struct {
	Concurrency int
	Reprocess   bool
}

// NewApp validates the configuration and wires every component. Any error here is a startup failure.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger, ov Overrides) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	if ov.Concurrency > 0 {
		cfg.Concurrency = ov.Concurrency
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	provider, err := a.newProvider(appCtx)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	a.Embedder, err = llm.NewClient(provider, llm.ClientConfig{
		BatchSize: cfg.EmbedBatch,
		Dim:       cfg.EmbedDim,
		Retries:   cfg.EmbedRetries,
		Backoff:   cfg.EmbedBackoff,
		Timeout:   cfg.EmbedTimeout,
		RPS:       cfg.EmbedRPS,
	}, log)
	if err != nil {
		return nil, err
	}
	// The provider must agree with EMBED_DIM before the vector column is migrated.
	if err := a.Embedder.CheckDimension(appCtx); err != nil {
		return nil, err
	}

	store, err := db.NewDatabaseClient(appCtx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, store.Close)
	log.Info("database initialized and ready", "dialect", store.Dialect())

	f := fetcher.New(fetcher.Options{
		UserAgent:       cfg.UserAgent,
		HeadTimeout:     cfg.HeadTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
		Retries:         cfg.FetchRetries,
	})

	var prober router.Prober
	if cfg.RouterProbe {
		prober = f
	}

	tr, err := triage.New(f, triage.Thresholds{
		MaxBytes:         cfg.MaxSizeBytes,
		AutoApproveBytes: cfg.AutoApproveBytes,
		ReviewDomains:    cfg.ReviewDomains,
	})
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(cfg.ChunkMode, cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	registry, err := a.newRegistry(appCtx)
	if err != nil {
		return nil, err
	}

	deps := ingestion_engine.Deps{
		Store:     store,
		Router:    router.New(prober, log),
		Triage:    tr,
		Extractor: registry,
		Chunker:   ch,
		Embedder:  a.Embedder,
	}
	if cfg.ArchiveEnabled() {
		s3, err := objectclient.NewS3Client(appCtx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("object client: %w", err)
		}
		deps.Archiver = objectclient.NewArchiver(s3, cfg.BucketName)
	}
	if cfg.DiscoverLinks {
		deps.Expander = sources.NewDiscoverer(f, cfg.LinkDiscoverMax, log)
	}

	a.Pipeline, err = ingestion_engine.New(deps, ingestion_engine.Options{
		Concurrency:   cfg.Concurrency,
		SourceTimeout: cfg.SourceTimeout,
		Reprocess:     ov.Reprocess,
		MinContent:    extractors.MinContent{Chars: cfg.MinTextChars, Words: cfg.MinTextWords},
	}, log)
	if err != nil {
		return nil, err
	}

	a.Review = services.NewReviewService(store, a.Embedder, log)

	ok = true
	return a, nil
}

func (a *App) newProvider(ctx context.Context) (core.EmbeddingProvider, error) {
	cfg := a.Config
	switch cfg.EmbedProvider {
	case "gemini":
		g, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, g.Close)
		return g, nil
	default:
		return llm.NewOpenAIEmbedder(llm.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.EmbedModel,
			Dimensions: cfg.EmbedDim,
		})
	}
}

func (a *App) newRegistry(ctx context.Context) (*extractors.Registry, error) {
	cfg := a.Config
	var docs extractors.DocumentFetcher
	if cfg.GoogleCredentialsJSON != "" {
		f, err := extractors.NewGoogleDocsFetcher(ctx, cfg.GoogleCredentialsJSON)
		if err != nil {
			return nil, fmt.Errorf("document service: %w", err)
		}
		docs = f
	} else {
		a.Log.Warn("GOOGLE_APPLICATION_CREDENTIALS_JSON not set, Google documents will extract empty")
	}

	return extractors.NewRegistry().
		Register(models.SourceWebpage, extractors.NewHTMLExtractor(cfg.WebReadability, a.Log)).
		Register(models.SourcePDF, extractors.NewPDFExtractor(a.Log)).
		Register(models.SourceDocument, extractors.NewDocExtractor(docs, cfg.DocTimeout, a.Log)), nil
}

// Lister picks the source list: explicit URLs, then a file, then a sheet, then the configured file or sheet.
func (a *App) Lister(ctx context.Context, urls []string, file, sheetID string) (core.SourceLister, error) {
	return NewLister(ctx, a.Config, urls, file, sheetID)
}

func NewLister(ctx context.Context, cfg *config.Config, urls []string, file, sheetID string) (core.SourceLister, error) {
	switch {
	case len(urls) > 0:
		return sources.ArgsLister(urls), nil
	case file != "":
		return &sources.FileLister{Path: file}, nil
	case sheetID != "":
		return sources.NewSheetsLister(ctx, cfg.GoogleCredentialsJSON, sheetID, cfg.SheetRange)
	case cfg.SourcesFile != "":
		return &sources.FileLister{Path: cfg.SourcesFile}, nil
	case cfg.GoogleSheetID != "":
		return sources.NewSheetsLister(ctx, cfg.GoogleCredentialsJSON, cfg.GoogleSheetID, cfg.SheetRange)
	}
	return nil, errors.New("no sources: pass URLs, --file, --sheet, or set SOURCES_FILE / GOOGLE_SHEET_ID")
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

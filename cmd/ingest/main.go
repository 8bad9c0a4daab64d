package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/markdave123-py/contexta-ingest/internal/app"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/models"
	"github.com/markdave123-py/contexta-ingest/internal/pkg/logger"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

func main() {
	cliApp := &cli.App{
		Name:  "contexta-ingest",
		Usage: "Ingest web pages, PDFs and Google Docs into the vector store",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Ingest the given URLs, or the configured source list",
				ArgsUsage: "[url...]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "File with one source URL per line"},
					&cli.StringFlag{Name: "sheet", Usage: "Google Sheet id holding the source list"},
					&cli.BoolFlag{Name: "reprocess", Usage: "Process sources that already reached a terminal status"},
					&cli.IntFlag{Name: "concurrency", Aliases: []string{"c"}, Usage: "Sources processed in parallel (overrides CONCURRENCY)"},
				},
				Action: runCommand,
			},
			{
				Name:   "migrate",
				Usage:  "Apply pending schema migrations",
				Action: migrateCommand,
			},
			{
				Name:  "pending",
				Usage: "List chunks awaiting review",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "Only chunks from this source URL"},
					&cli.StringFlag{Name: "status", Value: models.PendingStatusPending, Usage: "pending, approved or rejected"},
					&cli.IntFlag{Name: "limit", Value: 100},
				},
				Action: pendingCommand,
			},
			{
				Name:      "approve",
				Usage:     "Embed and store a pending chunk, or every pending chunk of a source",
				ArgsUsage: "<pending-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Usage: "Approve every pending chunk of this source URL"},
				},
				Action: approveCommand,
			},
			{
				Name:      "reject",
				Usage:     "Reject a pending chunk",
				ArgsUsage: "<pending-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "notes", Usage: "Reason recorded with the rejection"},
				},
				Action: rejectCommand,
			},
			{
				Name:   "serve",
				Usage:  "Serve the review and run API",
				Action: serveCommand,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func setup(c *cli.Context, ov app.Overrides) (*app.App, func(), error) {
	cfg := config.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.NewApp(c.Context, cfg, log, ov)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		log.Sync()
	}, nil
}

func runCommand(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()
	c.Context = ctx

	a, cleanup, err := setup(c, app.Overrides{Concurrency: c.Int("concurrency"), Reprocess: c.Bool("reprocess")})
	if err != nil {
		return err
	}
	defer cleanup()

	lister, err := a.Lister(ctx, c.Args().Slice(), c.String("file"), c.String("sheet"))
	if err != nil {
		return err
	}
	urls, err := lister.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	sum, err := a.Pipeline.Run(ctx, urls)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Printf("total=%d processed=%d sidelined=%d manual_review=%d skipped=%d failed=%d chunks=%d\n",
		sum.Total, sum.Processed, sum.Sidelined, sum.ManualReview, sum.Skipped, sum.Failed, sum.ChunksStored)
	return nil
}

func migrateCommand(c *cli.Context) error {
	cfg := config.LoadConfig()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL not set")
	}

	store, err := db.NewDatabaseClient(c.Context, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	v, err := store.SchemaVersion(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("schema at version %d (%s)\n", v, store.Dialect())
	return nil
}

func pendingCommand(c *cli.Context) error {
	a, cleanup, err := setup(c, app.Overrides{})
	if err != nil {
		return err
	}
	defer cleanup()

	recs, err := a.Review.List(c.Context, models.PendingFilter{
		SourceURL: c.String("source"),
		Status:    c.String("status"),
		Limit:     c.Int("limit"),
	})
	if err != nil {
		return err
	}
	for _, r := range recs {
		fmt.Printf("%s\t%s\t#%d\t%s\t%d chars\n", r.ID, r.Status, r.Ordinal, r.SourceURL, len(r.ChunkContent))
	}
	fmt.Printf("%d chunk(s)\n", len(recs))
	return nil
}

func approveCommand(c *cli.Context) error {
	a, cleanup, err := setup(c, app.Overrides{})
	if err != nil {
		return err
	}
	defer cleanup()

	if src := c.String("source"); src != "" {
		n, err := a.Review.ApproveSource(c.Context, src)
		if err != nil {
			return err
		}
		fmt.Printf("approved %d chunk(s) from %s\n", n, src)
		return nil
	}
	if c.NArg() != 1 {
		return errors.New("approve needs a pending id or --source")
	}
	if err := a.Review.Approve(c.Context, c.Args().First()); err != nil {
		return err
	}
	fmt.Printf("approved %s\n", c.Args().First())
	return nil
}

func rejectCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("reject needs a pending id")
	}
	a, cleanup, err := setup(c, app.Overrides{})
	if err != nil {
		return err
	}
	defer cleanup()

	if err := a.Review.Reject(c.Context, c.Args().First(), c.String("notes")); err != nil {
		return err
	}
	fmt.Printf("rejected %s\n", c.Args().First())
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c.Context)
	defer stop()
	c.Context = ctx

	a, cleanup, err := setup(c, app.Overrides{})
	if err != nil {
		return err
	}
	defer cleanup()
	if a.Config.JWTSecret == "" {
		return errors.New("JWT_SECRET not set")
	}

	// Without a configured list, POST /api/runs must carry URLs.
	lister, err := app.NewLister(ctx, a.Config, nil, "", "")
	if err != nil {
		a.Log.Info("no default source list configured", "reason", err)
		lister = nil
	}
	runs := services.NewRunService(ctx, a.Pipeline, lister, a.Log)
	srv := app.NewServer(a.Config, a.Review, runs, a.Log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("server shutdown", "error", err)
	}
	runs.Wait()
	return nil
}

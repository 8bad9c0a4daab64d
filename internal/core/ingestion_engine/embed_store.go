package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// streamChunks feeds chunks downstream; backpressure applies on the channel.
func streamChunks(ctx context.Context, g *errgroup.Group, chunks []models.Chunk) <-chan models.Chunk {
	out := make(chan models.Chunk, 8)
	g.Go(func() error {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	return out
}

// embedAndPersist consumes chunks, embeds them in batches and upserts each batch before the next is embedded.
// A failed batch stops the source; earlier batches stay stored.
func (p *Pipeline) embedAndPersist(
	ctx context.Context,
	src models.Source,
	title string,
	in <-chan models.Chunk,
	stored *int,
) error {
	batchSize := p.embedder.BatchSize()
	batch := make([]models.Chunk, 0, batchSize)
	scrapedAt := time.Now().UTC()

	flush := func(items []models.Chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for i := range items {
			texts[i] = items[i].Content
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}

		rows := make([]models.EmbeddedChunk, len(items))
		for i := range items {
			rows[i] = models.EmbeddedChunk{
				Chunk:      items[i],
				Title:      title,
				SourceType: src.Type,
				Domain:     src.Domain,
				Embedding:  vecs[i],
				ScrapedAt:  scrapedAt,
			}
		}
		n, err := p.store.UpsertChunks(ctx, rows)
		if err != nil {
			return fmt.Errorf("persist chunks: %w", err)
		}
		*stored += n
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return flush(batch)
}

// storeChunks wires the producer and the batcher together.
func (p *Pipeline) storeChunks(ctx context.Context, src models.Source, title string, chunks []models.Chunk) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	stored := 0

	ch := streamChunks(gctx, g, chunks)
	g.Go(func() error {
		return p.embedAndPersist(gctx, src, title, ch, &stored)
	})

	if err := g.Wait(); err != nil {
		return stored, err
	}
	return stored, nil
}

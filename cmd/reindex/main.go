// Command reindex re-embeds every ready document's chunks and rebuilds the
// vector snapshot. Run it after switching embedding models or after losing
// the index directory; the chunk store in Postgres is the source of truth.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/policy-qa/internal/bootstrap"
	"github.com/kirillkom/policy-qa/internal/config"
	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/observability/logging"
)

const embedBatchSize = 32

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.NewJSONLogger("policy-qa-reindex", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	docs, err := app.Documents.ListByStatus(ctx, domain.StatusReady)
	if err != nil {
		log.Fatalf("list ready documents: %v", err)
	}
	logger.Info("reindex started", "documents", len(docs), "index_path", cfg.IndexPath)

	// Drop the loaded snapshot first: after an embedding model switch the old
	// vectors have the wrong dimension and must not survive the rebuild.
	if err := app.Index.Reset(); err != nil {
		log.Fatalf("reset index: %v", err)
	}

	var total int
	for _, doc := range docs {
		n, err := reindexDocument(ctx, app, doc.ID)
		if err != nil {
			log.Fatalf("reindex document %s: %v", doc.ID, err)
		}
		total += n
		logger.Info("document reindexed", "document_id", doc.ID, "chunks", n)
	}

	logger.Info("reindex finished", "documents", len(docs), "vectors", total)
}

func reindexDocument(ctx context.Context, app *bootstrap.App, documentID string) (int, error) {
	chunks, err := app.Chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := app.Embedder.Embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		embedded := make([]domain.EmbeddedChunk, len(batch))
		for i, c := range batch {
			embedded[i] = domain.EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
		}
		if err := app.Index.Upsert(ctx, embedded); err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

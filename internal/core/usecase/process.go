package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/core/ports"
)

// embedBatchSize bounds how many chunk texts go to the embedding service in
// one call.
const embedBatchSize = 32

// ProcessUseCase turns an uploaded document into retrievable chunks: extract
// text, split into passages, persist the chunk set, embed and index it.
type ProcessUseCase struct {
	documents ports.DocumentRepository
	chunks    ports.ChunkStore
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.EmbeddingProvider
	index     ports.VectorIndex
	log       *slog.Logger
}

func NewProcessUseCase(
	documents ports.DocumentRepository,
	chunks ports.ChunkStore,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.EmbeddingProvider,
	index ports.VectorIndex,
	log *slog.Logger,
) *ProcessUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessUseCase{
		documents: documents,
		chunks:    chunks,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		log:       log,
	}
}

func (uc *ProcessUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := uc.documents.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := uc.process(ctx, doc); err != nil {
		uc.markFailed(ctx, documentID, err)
		return err
	}
	if err := uc.documents.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	return nil
}

func (uc *ProcessUseCase) process(ctx context.Context, doc *domain.Document) error {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}

	passages := uc.chunker.Split(text)
	if len(passages) == 0 {
		return fmt.Errorf("document %s produced no chunks", doc.ID)
	}

	chunks := make([]domain.Chunk, len(passages))
	for i, p := range passages {
		chunks[i] = domain.Chunk{
			ID:         doc.ID + ":" + strconv.Itoa(i),
			DocumentID: doc.ID,
			Ordinal:    i,
			Text:       p.Text,
			Metadata: domain.ChunkMetadata{
				Section:       p.Section,
				ChunkIndex:    i,
				DocumentTitle: doc.Title,
			},
		}
	}
	if err := uc.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}

	if err := uc.embedAndIndex(ctx, chunks); err != nil {
		return err
	}

	uc.log.Info("document_processed", "document_id", doc.ID, "chunks", len(chunks))
	return nil
}

// embedAndIndex processes chunks in batches. An index write failure aborts
// the whole step: a partially flushed index must not be marked ready.
func (uc *ProcessUseCase) embedAndIndex(ctx context.Context, chunks []domain.Chunk) error {
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
		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vectors), len(batch))
		}

		embedded := make([]domain.EmbeddedChunk, len(batch))
		for i, c := range batch {
			embedded[i] = domain.EmbeddedChunk{Chunk: c, Embedding: vectors[i]}
		}
		if err := uc.index.Upsert(ctx, embedded); err != nil {
			return fmt.Errorf("index batch at %d: %w", start, err)
		}
	}
	return nil
}

func (uc *ProcessUseCase) markFailed(ctx context.Context, documentID string, cause error) {
	if err := uc.documents.UpdateStatus(ctx, documentID, domain.StatusFailed, cause.Error()); err != nil {
		uc.log.Error("mark_failed_update", "document_id", documentID, "error", err)
	}
	uc.log.Error("document_processing_failed", "document_id", documentID, "error", cause)
}

package ports

import (
	"context"
	"io"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByStatus(ctx context.Context, status domain.DocumentStatus) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
}

// ChunkStore persists the chunk set of a processed document and supplies it
// back to the retrieval engine. The engine never mutates the returned slice.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits extracted text into retrieval passages.
type Chunker interface {
	Split(text string) []domain.Passage
}

// EmbeddingProvider builds dense vectors for chunk and query text. Failures
// must be catchable: the hybrid ranker degrades to non-semantic methods when
// a call fails.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores dense embeddings and performs nearest-neighbor search.
// A non-nil allowedIDs restricts the search to those chunk ids; nil searches
// the whole index.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) error
	Query(ctx context.Context, vector []float32, topK int, allowedIDs map[string]struct{}) ([]domain.RetrievalResult, error)
}

// Retriever produces the ranked candidate list for one question.
type Retriever interface {
	Search(ctx context.Context, query string, chunks []domain.Chunk, topK int) ([]domain.RetrievalResult, error)
}

// QueryParser extracts structured intent from a question.
type QueryParser interface {
	Parse(ctx context.Context, question string) (domain.ParsedQuery, error)
}

// AnswerGenerator creates the grounded answer/justification pair.
type AnswerGenerator interface {
	Generate(ctx context.Context, question string, parsed domain.ParsedQuery, contexts []domain.RetrievalResult) (domain.GeneratedAnswer, error)
}

// Package bootstrap wires configuration into a running application graph.
// Every dependency is constructed here and passed down explicitly.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/policy-qa/internal/config"
	"github.com/kirillkom/policy-qa/internal/core/ports"
	"github.com/kirillkom/policy-qa/internal/core/usecase"
	"github.com/kirillkom/policy-qa/internal/infrastructure/chunking"
	"github.com/kirillkom/policy-qa/internal/infrastructure/extractor/doctext"
	"github.com/kirillkom/policy-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/policy-qa/internal/infrastructure/llm/openaicompat"
	"github.com/kirillkom/policy-qa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/policy-qa/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/policy-qa/internal/infrastructure/resilience"
	"github.com/kirillkom/policy-qa/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/policy-qa/internal/observability/metrics"
	"github.com/kirillkom/policy-qa/internal/retrieval"
	"github.com/kirillkom/policy-qa/internal/retrieval/sparse"
	"github.com/kirillkom/policy-qa/internal/retrieval/vectorindex"
)

type App struct {
	Config  config.Config
	Metrics *metrics.ServerMetrics

	Queue     ports.MessageQueue
	Documents ports.DocumentRepository
	Chunks    ports.ChunkStore
	Embedder  ports.EmbeddingProvider
	Index     *vectorindex.Index

	IngestUC  *usecase.IngestUseCase
	ProcessUC ports.DocumentProcessor
	AnswerUC  ports.QuestionAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunks := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             log,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	embedder, parser, generator, err := buildLLM(cfg, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	index, err := vectorindex.Open(cfg.IndexPath, vectorindex.Metric(cfg.SimilarityMetric), log)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	serverMetrics := metrics.NewServerMetrics("policy-qa")
	serverMetrics.SetIndexedVectors(index.Len())

	sparseIndex := sparse.NewIndex(cfg.SparseMaxFeatures)
	engine := retrieval.NewEngine(
		index,
		embedder,
		sparseIndex,
		log,
		retrieval.WithEmbedTimeout(time.Duration(cfg.EmbedTimeoutSecs)*time.Second),
		retrieval.WithRecorder(serverMetrics),
	)

	extractor := doctext.NewExtractor(storage)
	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	ingestUC := usecase.NewIngestUseCase(documents, storage, queue, log)
	processUC := usecase.NewProcessUseCase(documents, chunks, extractor, chunker, embedder, index, log)
	answerUC := usecase.NewAnswerUseCase(documents, chunks, parser, engine, generator, log)

	return &App{
		Config:  cfg,
		Metrics: serverMetrics,

		Queue:     queue,
		Documents: documents,
		Chunks:    chunks,
		Embedder:  embedder,
		Index:     index,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		AnswerUC:  answerUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// buildLLM selects the backend that serves parsing, generation and embeddings.
func buildLLM(cfg config.Config, executor *resilience.Executor) (ports.EmbeddingProvider, ports.QueryParser, ports.AnswerGenerator, error) {
	switch cfg.LLMBackend {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, nil, fmt.Errorf("llm backend openai requires OPENAI_API_KEY")
		}
		provider := openaicompat.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel)
		return provider, provider, provider, nil
	case "ollama", "":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		return ollama.NewEmbedder(client), ollama.NewQueryParser(client), ollama.NewGenerator(client), nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown llm backend %q", cfg.LLMBackend)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

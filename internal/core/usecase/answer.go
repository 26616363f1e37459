package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/core/ports"
)

const (
	fallbackAnswer        = "The policy document does not provide enough information to answer this question."
	fallbackJustification = "The answer generator did not return a usable response; refer to the cited clauses directly."
)

// AnswerUseCase orchestrates one question: load the document's chunks, parse
// intent, run the hybrid retriever, generate the grounded answer and shape
// the structured response.
type AnswerUseCase struct {
	documents ports.DocumentRepository
	chunks    ports.ChunkStore
	parser    ports.QueryParser
	retriever ports.Retriever
	generator ports.AnswerGenerator
	log       *slog.Logger
}

func NewAnswerUseCase(
	documents ports.DocumentRepository,
	chunks ports.ChunkStore,
	parser ports.QueryParser,
	retriever ports.Retriever,
	generator ports.AnswerGenerator,
	log *slog.Logger,
) *AnswerUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &AnswerUseCase{
		documents: documents,
		chunks:    chunks,
		parser:    parser,
		retriever: retriever,
		generator: generator,
		log:       log,
	}
}

func (uc *AnswerUseCase) Answer(ctx context.Context, documentID, question string, topK int) (*domain.StructuredResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("empty question"))
	}
	if documentID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("empty document id"))
	}

	doc, err := uc.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status != domain.StatusReady {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", fmt.Errorf("document %s is %s, not ready", documentID, doc.Status))
	}

	chunks, err := uc.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", documentID, err)
	}

	// Intent parsing is advisory; a failed parse falls back to the default
	// response classification instead of failing the question.
	parsed, err := uc.parser.Parse(ctx, question)
	if err != nil {
		uc.log.Warn("query_parse_degraded", "document_id", documentID, "error", err)
		parsed = domain.ParsedQuery{}
	}

	retrieved, err := uc.retriever.Search(ctx, question, chunks, topK)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	answer := uc.generate(ctx, question, parsed, retrieved)
	resp := FormatStructuredResponse(question, answer, retrieved, parsed)

	uc.log.Info("question_answered",
		"document_id", documentID,
		"retrieved", len(retrieved),
		"response_type", resp.ResponseType,
		"confidence", resp.ConfidenceScore,
	)
	return resp, nil
}

// generate replaces malformed or unreachable generator output with a fixed
// fallback pair so the caller always receives an answer.
func (uc *AnswerUseCase) generate(ctx context.Context, question string, parsed domain.ParsedQuery, retrieved []domain.RetrievalResult) domain.GeneratedAnswer {
	answer, err := uc.generator.Generate(ctx, question, parsed, retrieved)
	if err == nil {
		return answer
	}
	if domain.IsKind(err, domain.ErrMalformedGeneratorOutput) || domain.IsKind(err, domain.ErrDownstreamUnavailable) {
		uc.log.Warn("answer_generation_degraded", "error", err)
		return domain.GeneratedAnswer{Answer: fallbackAnswer, Justification: fallbackJustification}
	}
	uc.log.Error("answer_generation_failed", "error", err)
	return domain.GeneratedAnswer{Answer: fallbackAnswer, Justification: fallbackJustification}
}

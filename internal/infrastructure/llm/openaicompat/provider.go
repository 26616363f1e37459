// Package openaicompat implements the LLM ports against any
// OpenAI-compatible chat/embedding API. Selected at startup via LLM_BACKEND.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

type Provider struct {
	client     *openai.Client
	chatModel  string
	embedModel string
}

func New(apiKey, baseURL, chatModel, embedModel string) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Provider{
		client:     openai.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(p.embedModel),
	})
	if err != nil {
		return nil, wrapAPIError("embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (p *Provider) Parse(ctx context.Context, question string) (domain.ParsedQuery, error) {
	content, err := p.chatJSON(ctx,
		"You analyze insurance policy questions. Respond with a JSON object with keys: "+
			"intent (coverage_inquiry, waiting_period, exclusion_check, benefit_amount or general), "+
			"clause_type, policy_section, specific_terms (array of strings).",
		question,
	)
	if err != nil {
		return domain.ParsedQuery{}, err
	}

	var parsed domain.ParsedQuery
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return domain.ParsedQuery{}, fmt.Errorf("parse query json: %w", err)
	}
	if parsed.SpecificTerms == nil {
		parsed.SpecificTerms = []string{}
	}
	return parsed, nil
}

func (p *Provider) Generate(ctx context.Context, question string, parsed domain.ParsedQuery, contexts []domain.RetrievalResult) (domain.GeneratedAnswer, error) {
	var sb strings.Builder
	for idx, c := range contexts {
		fmt.Fprintf(&sb, "[%d] chunk=%s section=%s score=%.3f\n%s\n\n", idx+1, c.ID, c.Metadata.Section, c.Score, c.Text)
	}

	content, err := p.chatJSON(ctx,
		"You answer questions about an insurance policy using only the supplied clauses. "+
			"Respond with a JSON object with keys: answer, justification. "+
			"If the clauses do not contain the answer, say so in the answer field.",
		fmt.Sprintf("Detected intent: %s.\n\nQuestion:\n%s\n\nClauses:\n%s", parsed.Intent, question, sb.String()),
	)
	if err != nil {
		return domain.GeneratedAnswer{}, err
	}

	var answer domain.GeneratedAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return domain.GeneratedAnswer{}, domain.WrapError(domain.ErrMalformedGeneratorOutput, "generate answer", err)
	}
	if strings.TrimSpace(answer.Answer) == "" {
		return domain.GeneratedAnswer{}, domain.WrapError(domain.ErrMalformedGeneratorOutput, "generate answer", fmt.Errorf("empty answer field"))
	}
	return answer, nil
}

func (p *Provider) chatJSON(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", wrapAPIError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrMalformedGeneratorOutput, "chat", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// wrapAPIError marks server-side and rate-limit failures as downstream
// unavailability; client-side errors (bad request, auth) pass through.
func wrapAPIError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
		return fmt.Errorf("openai %s: %w", operation, err)
	}
	return domain.WrapError(domain.ErrDownstreamUnavailable, "openai "+operation, err)
}

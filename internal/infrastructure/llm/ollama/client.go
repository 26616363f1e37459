// Package ollama implements the embedding, query-parsing and answer
// generation ports against a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d texts", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type QueryParser struct {
	client *Client
}

func NewQueryParser(client *Client) *QueryParser {
	return &QueryParser{client: client}
}

func (p *QueryParser) Parse(ctx context.Context, question string) (domain.ParsedQuery, error) {
	respText, err := p.client.generateJSON(ctx, buildParsePrompt(question))
	if err != nil {
		return domain.ParsedQuery{}, err
	}

	var parsed domain.ParsedQuery
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &parsed); err != nil {
		return domain.ParsedQuery{}, fmt.Errorf("parse query json: %w", err)
	}
	if parsed.SpecificTerms == nil {
		parsed.SpecificTerms = []string{}
	}
	return parsed, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, question string, parsed domain.ParsedQuery, contexts []domain.RetrievalResult) (domain.GeneratedAnswer, error) {
	respText, err := g.client.generateJSON(ctx, buildAnswerPrompt(question, parsed, contexts))
	if err != nil {
		return domain.GeneratedAnswer{}, err
	}

	var answer domain.GeneratedAnswer
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), &answer); err != nil {
		return domain.GeneratedAnswer{}, domain.WrapError(domain.ErrMalformedGeneratorOutput, "generate answer", err)
	}
	if strings.TrimSpace(answer.Answer) == "" {
		return domain.GeneratedAnswer{}, domain.WrapError(domain.ErrMalformedGeneratorOutput, "generate answer", fmt.Errorf("empty answer field"))
	}
	return answer, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

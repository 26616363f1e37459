// Package retrieval combines dense, sparse and exact retrieval into one
// ranked candidate list.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/core/ports"
	"github.com/kirillkom/policy-qa/internal/retrieval/exact"
	"github.com/kirillkom/policy-qa/internal/retrieval/sparse"
)

const (
	DefaultTopK         = 10
	DefaultEmbedTimeout = 10 * time.Second
)

// Recorder receives per-search observations. A nil Recorder disables them.
type Recorder interface {
	ObserveRetrieval(method string, results int)
	ObserveSearchDuration(seconds float64)
}

// Engine runs the three retrieval branches concurrently and merges their
// results. A failing branch contributes nothing instead of failing the
// search; only an exhausted context aborts the whole call.
type Engine struct {
	index        ports.VectorIndex
	embedder     ports.EmbeddingProvider
	sparse       *sparse.Index
	embedTimeout time.Duration
	log          *slog.Logger
	rec          Recorder
}

type Option func(*Engine)

func WithEmbedTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.embedTimeout = d
		}
	}
}

func WithRecorder(rec Recorder) Option {
	return func(e *Engine) { e.rec = rec }
}

func NewEngine(index ports.VectorIndex, embedder ports.EmbeddingProvider, sparseIndex *sparse.Index, log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		index:        index,
		embedder:     embedder,
		sparse:       sparseIndex,
		embedTimeout: DefaultEmbedTimeout,
		log:          log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search retrieves the topK best candidates for query over chunks. Duplicate
// chunks found by several methods keep their first occurrence, preferring
// semantic over keyword over exact.
func (e *Engine) Search(ctx context.Context, query string, chunks []domain.Chunk, topK int) ([]domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(chunks) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	start := time.Now()

	// Ensure returns this request's corpus snapshot; the keyword branch must
	// search that snapshot, not the shared cache, which a concurrent request
	// for another document may swap at any time.
	model := e.sparse.Ensure(chunks)

	var semantic, keyword, exactMatches []domain.RetrievalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semantic = e.searchSemantic(gctx, query, chunks, topK)
		return nil
	})
	g.Go(func() error {
		keyword = model.Search(query, topK)
		return nil
	})
	g.Go(func() error {
		exactMatches = exact.Match(query, chunks)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := merge(topK, semantic, keyword, exactMatches)

	if e.rec != nil {
		e.rec.ObserveRetrieval(string(domain.MethodSemantic), len(semantic))
		e.rec.ObserveRetrieval(string(domain.MethodKeyword), len(keyword))
		e.rec.ObserveRetrieval(string(domain.MethodExact), len(exactMatches))
		e.rec.ObserveSearchDuration(time.Since(start).Seconds())
	}
	e.log.Debug("hybrid_search",
		"semantic", len(semantic),
		"keyword", len(keyword),
		"exact", len(exactMatches),
		"merged", len(merged),
	)
	return merged, nil
}

// searchSemantic embeds the query and probes the vector index, restricted to
// the ids of the supplied corpus. Any failure degrades to no semantic
// candidates.
func (e *Engine) searchSemantic(ctx context.Context, query string, chunks []domain.Chunk, topK int) []domain.RetrievalResult {
	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()

	vector, err := e.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		e.log.Warn("semantic_branch_degraded", "stage", "embed", "error", err)
		return nil
	}

	allowed := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		allowed[c.ID] = struct{}{}
	}

	results, err := e.index.Query(ctx, vector, topK, allowed)
	if err != nil {
		e.log.Warn("semantic_branch_degraded", "stage", "query", "error", err)
		return nil
	}
	return results
}

// merge deduplicates by chunk id keeping the first occurrence across the
// branch slices in the order given, then ranks by descending score.
func merge(topK int, branches ...[]domain.RetrievalResult) []domain.RetrievalResult {
	seen := make(map[string]struct{})
	out := make([]domain.RetrievalResult, 0, topK)
	for _, branch := range branches {
		for _, r := range branch {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

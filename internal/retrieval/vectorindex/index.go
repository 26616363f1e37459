package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

// Metric selects how stored and query vectors are compared.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

type record struct {
	ID       string               `json:"id"`
	Text     string               `json:"text"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// Index is a flat in-process vector index. The dimension is fixed by the
// first inserted vector; every later insert and query must match it.
// Upserts are serialized, queries run concurrently under a read lock.
type Index struct {
	mu      sync.RWMutex
	metric  Metric
	dim     int
	vectors [][]float32
	records []record

	dir string
	log *slog.Logger
}

// Open loads the snapshot pair from dir when present, otherwise starts empty.
// A snapshot whose vector and record counts disagree is rejected; rebuild it
// from the chunk store (cmd/reindex).
func Open(dir string, metric Metric, log *slog.Logger) (*Index, error) {
	if metric != MetricCosine && metric != MetricDot {
		return nil, fmt.Errorf("unsupported similarity metric: %q", metric)
	}
	if log == nil {
		log = slog.Default()
	}
	ix := &Index{metric: metric, dir: dir, log: log}
	if err := ix.loadSnapshot(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Upsert stores the batch, overwriting vectors whose id already exists, and
// flushes both snapshot artifacts. A dimension
// mismatch rejects the whole batch before anything is stored; a snapshot
// write failure is fatal for the ingestion step that triggered it.
func (ix *Index) Upsert(ctx context.Context, chunks []domain.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dim := ix.dim
	if dim == 0 {
		dim = len(chunks[0].Embedding)
		if dim == 0 {
			return domain.WrapError(domain.ErrDimensionMismatch, "vector upsert", fmt.Errorf("empty embedding for chunk %s", chunks[0].ID))
		}
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return domain.WrapError(
				domain.ErrDimensionMismatch,
				"vector upsert",
				fmt.Errorf("chunk %s has dimension %d, index has %d", c.ID, len(c.Embedding), dim),
			)
		}
	}

	position := make(map[string]int, len(ix.records))
	for i, r := range ix.records {
		position[r.ID] = i
	}

	for _, c := range chunks {
		vec := make([]float32, dim)
		copy(vec, c.Embedding)
		if ix.metric == MetricCosine {
			// Zero-norm vectors stay raw; they score 0 on every query.
			normalize(vec)
		}
		rec := record{ID: c.ID, Text: c.Text, Metadata: c.Metadata}
		if i, ok := position[c.ID]; ok {
			ix.vectors[i] = vec
			ix.records[i] = rec
			continue
		}
		position[c.ID] = len(ix.vectors)
		ix.vectors = append(ix.vectors, vec)
		ix.records = append(ix.records, rec)
	}
	ix.dim = dim

	if err := ix.saveSnapshot(); err != nil {
		return domain.WrapError(domain.ErrIndexPersistence, "vector upsert", err)
	}
	ix.log.Debug("vector_index_upsert", "added", len(chunks), "total", len(ix.vectors))
	return nil
}

// Query returns at most topK results ordered by descending similarity. A
// non-nil allowedIDs restricts scoring to those records, so a small corpus
// cannot be crowded out of the result by foreign vectors. An empty index
// yields an empty slice, not an error.
func (ix *Index) Query(ctx context.Context, vector []float32, topK int, allowedIDs map[string]struct{}) ([]domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []domain.RetrievalResult{}, nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) == 0 {
		return []domain.RetrievalResult{}, nil
	}
	if len(vector) != ix.dim {
		return nil, domain.WrapError(
			domain.ErrDimensionMismatch,
			"vector query",
			fmt.Errorf("query has dimension %d, index has %d", len(vector), ix.dim),
		)
	}

	query := make([]float32, ix.dim)
	copy(query, vector)
	if ix.metric == MetricCosine {
		normalize(query)
	}

	out := make([]domain.RetrievalResult, 0, len(ix.vectors))
	for i, stored := range ix.vectors {
		if allowedIDs != nil {
			if _, ok := allowedIDs[ix.records[i].ID]; !ok {
				continue
			}
		}
		out = append(out, domain.RetrievalResult{
			ID:       ix.records[i].ID,
			Score:    float64(dot(query, stored)),
			Method:   domain.MethodSemantic,
			Text:     ix.records[i].Text,
			Metadata: ix.records[i].Metadata,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// Reset drops every vector and record and flushes empty snapshot artifacts.
// The dimension unlocks too, so the next upsert may use a different embedding
// model.
func (ix *Index) Reset() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.dim = 0
	ix.vectors = nil
	ix.records = nil
	if err := ix.saveSnapshot(); err != nil {
		return domain.WrapError(domain.ErrIndexPersistence, "vector reset", err)
	}
	return nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

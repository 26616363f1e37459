package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/policy-qa/internal/core/domain"
	"github.com/kirillkom/policy-qa/internal/retrieval/sparse"
	"github.com/kirillkom/policy-qa/internal/retrieval/vectorindex"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type failingIndex struct{}

func (failingIndex) Upsert(context.Context, []domain.EmbeddedChunk) error {
	return errors.New("index down")
}

func (failingIndex) Query(context.Context, []float32, int, map[string]struct{}) ([]domain.RetrievalResult, error) {
	return nil, errors.New("index down")
}

func policyCorpus() []domain.Chunk {
	return []domain.Chunk{
		{ID: "c0", Ordinal: 0, Text: "Maternity expenses are covered after a waiting period of 24 months."},
		{ID: "c1", Ordinal: 1, Text: "Dental treatment is excluded unless necessitated by an accident."},
		{ID: "c2", Ordinal: 2, Text: "Room rent is limited to one percent of the sum insured per day."},
	}
}

func seedIndex(t *testing.T, corpus []domain.Chunk, embeddings map[string][]float32) *vectorindex.Index {
	t.Helper()
	ix, err := vectorindex.Open(t.TempDir(), vectorindex.MetricCosine, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	batch := make([]domain.EmbeddedChunk, 0, len(corpus))
	for _, c := range corpus {
		batch = append(batch, domain.EmbeddedChunk{Chunk: c, Embedding: embeddings[c.ID]})
	}
	if err := ix.Upsert(context.Background(), batch); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	return ix
}

func TestSearchCombinesAllThreeMethods(t *testing.T) {
	corpus := policyCorpus()
	ix := seedIndex(t, corpus, map[string][]float32{
		"c0": {1, 0, 0},
		"c1": {0, 1, 0},
		"c2": {0, 0, 1},
	})
	engine := NewEngine(ix, &stubEmbedder{vec: []float32{1, 0, 0}}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "maternity waiting period", corpus, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected results")
	}
	if results[0].ID != "c0" {
		t.Fatalf("expected maternity chunk ranked first, got %s", results[0].ID)
	}
	if results[0].Method != domain.MethodSemantic {
		t.Fatalf("duplicate chunk must keep semantic attribution, got %s", results[0].Method)
	}
	seen := make(map[string]int)
	for i := 1; i < len(results); i++ {
		if results[i-1].Score < results[i].Score {
			t.Fatalf("results not sorted by descending score at %d", i)
		}
	}
	for _, r := range results {
		seen[r.ID]++
		if seen[r.ID] > 1 {
			t.Fatalf("chunk %s returned more than once", r.ID)
		}
	}
}

func TestSearchDegradesWhenEmbeddingFails(t *testing.T) {
	corpus := policyCorpus()
	ix := seedIndex(t, corpus, map[string][]float32{
		"c0": {1, 0, 0},
		"c1": {0, 1, 0},
		"c2": {0, 0, 1},
	})
	engine := NewEngine(ix, &stubEmbedder{err: errors.New("model offline")}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "dental treatment accident", corpus, 10)
	if err != nil {
		t.Fatalf("Search() must tolerate a failing branch, got %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("keyword and exact branches should still produce candidates")
	}
	for _, r := range results {
		if r.Method == domain.MethodSemantic {
			t.Fatalf("unexpected semantic result %s after embedding failure", r.ID)
		}
	}
}

func TestSearchDegradesWhenIndexFails(t *testing.T) {
	corpus := policyCorpus()
	engine := NewEngine(failingIndex{}, &stubEmbedder{vec: []float32{1, 0, 0}}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "room rent limit", corpus, 10)
	if err != nil {
		t.Fatalf("Search() must tolerate a failing branch, got %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected non-semantic candidates")
	}
}

func TestSearchEmptyCorpusReturnsEmpty(t *testing.T) {
	engine := NewEngine(failingIndex{}, &stubEmbedder{vec: []float32{1}}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "anything", nil, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result on empty corpus, got %d", len(results))
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	corpus := policyCorpus()
	ix := seedIndex(t, corpus, map[string][]float32{
		"c0": {1, 0, 0},
		"c1": {0, 1, 0},
		"c2": {0, 0, 1},
	})
	engine := NewEngine(ix, &stubEmbedder{vec: []float32{1, 1, 1}}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "maternity dental room rent", corpus, 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK=2 results, got %d", len(results))
	}
}

func TestSearchSemanticSurvivesForeignVectors(t *testing.T) {
	corpus := []domain.Chunk{
		{ID: "doc1:0", Ordinal: 0, Text: "Maternity expenses are covered after a waiting period."},
	}
	embeddings := map[string][]float32{"doc1:0": {1, 0, 0}}
	indexed := append([]domain.Chunk(nil), corpus...)
	// Many foreign vectors from other documents align with the query better
	// than the corpus vector does.
	for i := 0; i < 50; i++ {
		id := "other:" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		indexed = append(indexed, domain.Chunk{ID: id, Text: "foreign"})
		embeddings[id] = []float32{1, 0.01, 0}
	}
	ix := seedIndex(t, indexed, embeddings)
	engine := NewEngine(ix, &stubEmbedder{vec: []float32{1, 0.01, 0}}, sparse.NewIndex(0), nil)

	results, err := engine.Search(context.Background(), "zzz", corpus, 10)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "doc1:0" {
		t.Fatalf("expected the corpus chunk despite foreign vectors, got %+v", results)
	}
	if results[0].Method != domain.MethodSemantic {
		t.Fatalf("expected a semantic result, got %s", results[0].Method)
	}
}

func TestConcurrentSearchesKeepCorporaSeparate(t *testing.T) {
	corpusA := []domain.Chunk{
		{ID: "docA:0", Ordinal: 0, Text: "Maternity expenses covered after waiting period."},
		{ID: "docA:1", Ordinal: 1, Text: "Dental treatment excluded unless accidental."},
		{ID: "docA:2", Ordinal: 2, Text: "Room rent limited per day."},
	}
	corpusB := []domain.Chunk{
		{ID: "docB:0", Ordinal: 0, Text: "Maternity benefits payable after waiting period."},
		{ID: "docB:1", Ordinal: 1, Text: "Cataract surgery waiting period applies."},
		{ID: "docB:2", Ordinal: 2, Text: "Ambulance charges reimbursed."},
	}
	// Semantic branch down: every result comes from the keyword or exact
	// branch, which must only ever see the calling request's corpus.
	engine := NewEngine(failingIndex{}, &stubEmbedder{err: errors.New("model offline")}, sparse.NewIndex(0), nil)

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		corpus, prefix := corpusA, "docA:"
		if i%2 == 1 {
			corpus, prefix = corpusB, "docB:"
		}
		wg.Add(1)
		go func(corpus []domain.Chunk, prefix string) {
			defer wg.Done()
			results, err := engine.Search(context.Background(), "maternity waiting period", corpus, 10)
			if err != nil {
				t.Errorf("Search() error = %v", err)
				return
			}
			for _, r := range results {
				if !strings.HasPrefix(r.ID, prefix) {
					t.Errorf("request for %s corpus got result %s", prefix, r.ID)
				}
			}
		}(corpus, prefix)
	}
	wg.Wait()
}

func TestSearchRebuildsSparseOnCorpusChange(t *testing.T) {
	corpus := policyCorpus()
	ix := seedIndex(t, corpus, map[string][]float32{
		"c0": {1, 0, 0},
		"c1": {0, 1, 0},
		"c2": {0, 0, 1},
	})
	sp := sparse.NewIndex(0)
	engine := NewEngine(ix, &stubEmbedder{vec: []float32{1, 0, 0}}, sp, nil)

	if _, err := engine.Search(context.Background(), "maternity", corpus, 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	first := sp.Version()
	if first == 0 {
		t.Fatalf("expected sparse model built on first search")
	}

	changed := append(corpus, domain.Chunk{ID: "c3", Ordinal: 3, Text: "Cataract surgery carries a waiting period of 24 months."})
	if _, err := engine.Search(context.Background(), "cataract", changed, 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if sp.Version() == first {
		t.Fatalf("expected sparse model rebuilt after corpus change")
	}
}

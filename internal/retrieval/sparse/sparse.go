// Package sparse implements TF-IDF keyword retrieval over the current chunk
// corpus. A Model is an immutable point-in-time snapshot: Ensure fits a fresh
// model when the corpus changed and swaps it in atomically, so concurrent
// searches always run against one consistent corpus, never a half-built one.
package sparse

import (
	"hash/fnv"
	"math"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/policy-qa/internal/core/domain"
)

const DefaultMaxFeatures = 1000

type chunkRef struct {
	id       string
	ordinal  int
	text     string
	metadata domain.ChunkMetadata
}

// Model is a fitted TF-IDF snapshot of one corpus. It is immutable; callers
// holding a Model keep searching the corpus it was fitted to even while the
// owning Index swaps in a model for a different corpus.
type Model struct {
	fingerprint uint64
	stopwords   map[string]struct{}
	vocabulary  map[string]int
	idf         []float64
	rows        [][]float64
	chunks      []chunkRef
}

// Index caches the most recently fitted Model. It is safe for concurrent use.
type Index struct {
	maxFeatures int
	stopwords   map[string]struct{}

	buildMu sync.Mutex
	model   atomic.Pointer[Model]
}

func NewIndex(maxFeatures int) *Index {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &Index{
		maxFeatures: maxFeatures,
		stopwords:   defaultStopwords(),
	}
}

// Version reports the fingerprint of the corpus the cached model was built
// from, or 0 when no model exists yet.
func (ix *Index) Version() uint64 {
	m := ix.model.Load()
	if m == nil {
		return 0
	}
	return m.fingerprint
}

// Fingerprint identifies a chunk corpus for cache invalidation.
func Fingerprint(chunks []domain.Chunk) uint64 {
	if len(chunks) == 0 {
		return 0
	}
	h := fnv.New64a()
	for _, c := range chunks {
		_, _ = h.Write([]byte(c.ID))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(strconv.Itoa(len(c.Text))))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Ensure returns a model fitted to chunks, reusing the cached one when its
// fingerprint matches. The returned Model is the caller's snapshot: a
// concurrent Ensure for a different corpus replaces the cache but never the
// snapshot already handed out.
func (ix *Index) Ensure(chunks []domain.Chunk) *Model {
	fp := Fingerprint(chunks)
	if m := ix.model.Load(); m != nil && m.fingerprint == fp {
		return m
	}

	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()
	if m := ix.model.Load(); m != nil && m.fingerprint == fp {
		return m
	}
	m := ix.fit(chunks)
	ix.model.Store(m)
	return m
}

// Build replaces the cached model with one fitted to chunks.
func (ix *Index) Build(chunks []domain.Chunk) {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()
	ix.model.Store(ix.fit(chunks))
}

// Search runs against the cached model. Before any Build or Ensure it returns
// an empty slice.
func (ix *Index) Search(query string, topK int) []domain.RetrievalResult {
	m := ix.model.Load()
	if m == nil {
		return []domain.RetrievalResult{}
	}
	return m.Search(query, topK)
}

func (ix *Index) fit(chunks []domain.Chunk) *Model {
	m := &Model{fingerprint: Fingerprint(chunks), stopwords: ix.stopwords}
	if len(chunks) == 0 {
		return m
	}

	type termStat struct {
		corpusFreq int
		docFreq    int
	}
	stats := make(map[string]*termStat)
	perChunk := make([][]string, len(chunks))

	for i, c := range chunks {
		terms := m.ngrams(c.Text)
		perChunk[i] = terms
		seen := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			st := stats[term]
			if st == nil {
				st = &termStat{}
				stats[term] = st
			}
			st.corpusFreq++
			if _, ok := seen[term]; !ok {
				seen[term] = struct{}{}
				st.docFreq++
			}
		}
	}
	if len(stats) == 0 {
		return m
	}

	// Cap the vocabulary to the most frequent terms across the corpus,
	// then index the survivors in lexical order.
	terms := make([]string, 0, len(stats))
	for term := range stats {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if stats[terms[i]].corpusFreq != stats[terms[j]].corpusFreq {
			return stats[terms[i]].corpusFreq > stats[terms[j]].corpusFreq
		}
		return terms[i] < terms[j]
	})
	if len(terms) > ix.maxFeatures {
		terms = terms[:ix.maxFeatures]
	}
	sort.Strings(terms)

	m.vocabulary = make(map[string]int, len(terms))
	m.idf = make([]float64, len(terms))
	n := float64(len(chunks))
	for i, term := range terms {
		m.vocabulary[term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(stats[term].docFreq))) + 1.0
	}

	m.rows = make([][]float64, len(chunks))
	m.chunks = make([]chunkRef, len(chunks))
	for i, c := range chunks {
		m.rows[i] = m.encode(perChunk[i])
		m.chunks[i] = chunkRef{id: c.ID, ordinal: c.Ordinal, text: c.Text, metadata: c.Metadata}
	}
	return m
}

// Search ranks the model's chunks by cosine similarity between the query's
// TF-IDF vector and each corpus row.
func (m *Model) Search(query string, topK int) []domain.RetrievalResult {
	if len(m.vocabulary) == 0 || topK <= 0 {
		return []domain.RetrievalResult{}
	}

	queryVec := m.encode(m.ngrams(query))
	out := make([]domain.RetrievalResult, 0, topK)
	for i, row := range m.rows {
		score := dot(queryVec, row)
		if score <= 0 {
			continue
		}
		out = append(out, domain.RetrievalResult{
			ID:       m.chunks[i].id,
			Score:    score,
			Method:   domain.MethodKeyword,
			Text:     m.chunks[i].text,
			Metadata: m.chunks[i].metadata,
		})
	}
	// Ties keep corpus order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

// Fingerprint reports the corpus hash the model was fitted to.
func (m *Model) Fingerprint() uint64 {
	return m.fingerprint
}

// encode maps terms to an L2-normalized TF-IDF vector over the model's
// vocabulary.
func (m *Model) encode(terms []string) []float64 {
	vec := make([]float64, len(m.idf))
	for _, term := range terms {
		if idx, ok := m.vocabulary[term]; ok {
			vec[idx]++
		}
	}
	var norm float64
	for i := range vec {
		vec[i] *= m.idf[i]
		norm += vec[i] * vec[i]
	}
	if norm > 0 {
		inv := 1.0 / math.Sqrt(norm)
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// ngrams produces stop-word-filtered unigrams and bigrams.
func (m *Model) ngrams(text string) []string {
	tokens := tokenizeAlphaNum(text)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, isStop := m.stopwords[tok]; isStop {
			continue
		}
		kept = append(kept, tok)
	}

	out := make([]string, 0, 2*len(kept))
	out = append(out, kept...)
	for i := 0; i+1 < len(kept); i++ {
		out = append(out, kept[i]+" "+kept[i+1])
	}
	return out
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

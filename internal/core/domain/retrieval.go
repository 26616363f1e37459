package domain

// RetrievalMethod identifies which retrieval signal produced a result.
type RetrievalMethod string

const (
	MethodSemantic RetrievalMethod = "semantic"
	MethodKeyword  RetrievalMethod = "keyword"
	MethodExact    RetrievalMethod = "exact"
)

// RetrievalResult is one scored candidate produced during a single query.
// Results are transient and never persisted.
type RetrievalResult struct {
	ID           string          `json:"id"`
	Score        float64         `json:"score"`
	Method       RetrievalMethod `json:"method"`
	Text         string          `json:"text"`
	MatchedTerms []string        `json:"matched_terms,omitempty"`
	Metadata     ChunkMetadata   `json:"metadata"`
}

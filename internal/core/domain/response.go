package domain

// ParsedQuery is the structured intent extracted from a natural-language
// question by the query parser. A zero value is a valid "unknown intent".
type ParsedQuery struct {
	Intent        string   `json:"intent"`
	ClauseType    string   `json:"clause_type,omitempty"`
	PolicySection string   `json:"policy_section,omitempty"`
	SpecificTerms []string `json:"specific_terms,omitempty"`
}

// GeneratedAnswer is the answer generator's output pair.
type GeneratedAnswer struct {
	Answer        string `json:"answer"`
	Justification string `json:"justification"`
}

// ClauseReference cites one retrieved chunk inside a structured response.
type ClauseReference struct {
	ChunkID      string          `json:"chunk_id"`
	Score        float64         `json:"score"`
	SearchMethod RetrievalMethod `json:"search_method"`
	Metadata     ChunkMetadata   `json:"metadata"`
	TextSnippet  string          `json:"text_snippet"`
}

// CoverageDetails carries heuristic extractions from the answer and the
// retrieved chunks. IsCovered is nil when the answer is inconclusive.
type CoverageDetails struct {
	IsCovered     *bool    `json:"is_covered"`
	WaitingPeriod string   `json:"waiting_period,omitempty"`
	Limitations   []string `json:"limitations"`
	Requirements  []string `json:"requirements"`
	Exclusions    []string `json:"exclusions"`
}

type QueryAnalysis struct {
	Intent        string   `json:"intent"`
	ClauseType    string   `json:"clause_type,omitempty"`
	PolicySection string   `json:"policy_section,omitempty"`
	SpecificTerms []string `json:"specific_terms,omitempty"`
}

type RetrievalMetadata struct {
	TotalChunksRetrieved int      `json:"total_chunks_retrieved"`
	SearchMethodsUsed    []string `json:"search_methods_used"`
	TopChunkScore        float64  `json:"top_chunk_score"`
}

// StructuredResponse is the final shaped answer for one question.
type StructuredResponse struct {
	Question          string            `json:"question"`
	Answer            string            `json:"answer"`
	Justification     string            `json:"justification"`
	ConfidenceScore   float64           `json:"confidence_score"`
	ResponseType      string            `json:"response_type"`
	ClauseReferences  []ClauseReference `json:"clause_references"`
	CoverageDetails   CoverageDetails   `json:"coverage_details"`
	QueryAnalysis     QueryAnalysis     `json:"query_analysis"`
	RetrievalMetadata RetrievalMetadata `json:"retrieval_metadata"`
}

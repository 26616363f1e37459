package domain

// Chunk is the unit of retrieval: a bounded span of document text plus the
// positional metadata needed to cite it back to the source. Chunks are
// produced by the ingestion pipeline and read-only everywhere else.
type Chunk struct {
	ID         string        `json:"id"`
	DocumentID string        `json:"document_id"`
	Ordinal    int           `json:"ordinal"`
	Text       string        `json:"text"`
	Metadata   ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	Section       string `json:"section,omitempty"`
	Page          int    `json:"page,omitempty"`
	ChunkIndex    int    `json:"chunk_index"`
	DocumentTitle string `json:"document_title,omitempty"`
}

// EmbeddedChunk is a chunk with its dense embedding attached. All embeddings
// inside one vector index must share the same dimension.
type EmbeddedChunk struct {
	Chunk
	Embedding []float32 `json:"embedding"`
}

// Passage is an intermediate chunking artifact: a span of text with the
// section heading it was cut from.
type Passage struct {
	Section string
	Text    string
}

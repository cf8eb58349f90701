package domain

// Chunk is the unit of retrieval: a bounded span of a document's
// page-concatenated text with offset and page provenance.
//
// Invariants: CharStart < CharEnd, PageStart <= PageEnd, Index values are
// contiguous and ascending within a document. Spans may overlap by the
// configured overlap but Index never repeats.
type Chunk struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	CollectionID string `json:"collection_id"`
	Index        int    `json:"chunk_index"`
	Content      string `json:"content"`

	// Rune offsets into the page-concatenated source text.
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`

	// Approximate, estimator-defined.
	TokenCount int `json:"token_count"`

	// Inclusive page range the chunk's characters span.
	PageStart int `json:"page_start"`
	PageEnd   int `json:"page_end"`

	// Nil until the embedding gateway has processed the chunk.
	Embedding []float32 `json:"embedding,omitempty"`
}

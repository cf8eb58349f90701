package domain

// SearchScope narrows retrieval to one collection (knowledge base).
type SearchScope struct {
	CollectionID string
}

// RetrievalTier records which strategy actually produced a result set.
type RetrievalTier string

const (
	// TierRanked is the storage layer's native vector index.
	TierRanked RetrievalTier = "ranked"
	// TierRelaxed is the native index retried at the relaxed threshold.
	TierRelaxed RetrievalTier = "relaxed"
	// TierClient is client-side cosine recomputation over all embedded chunks.
	TierClient RetrievalTier = "client"
	// TierSnapshot is the unranked top-N snapshot; its scores are synthetic.
	TierSnapshot RetrievalTier = "snapshot"
)

type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`

	// Filename of the owning document, when the storage layer can join it.
	Filename string `json:"filename,omitempty"`
}

// RetrievalResult is transient per-query state, never stored.
// Scores are in [0,1] unless Synthetic marks them as fabricated.
type RetrievalResult struct {
	Chunks    []ScoredChunk `json:"chunks"`
	Tier      RetrievalTier `json:"tier"`
	Synthetic bool          `json:"synthetic"`
}

// SupplementalResult is an external full-text search hit appended after
// knowledge-base chunks in the grounding prompt.
type SupplementalResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Citation is a back-reference from a generated answer to a source that was
// actually part of the prompt context. Derived per answer, never persisted.
type Citation struct {
	Index      int      `json:"index"`
	DocumentID string   `json:"document_id,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	PageStart  int      `json:"page_start,omitempty"`
	PageEnd    int      `json:"page_end,omitempty"`
	Title      string   `json:"title,omitempty"`
	URL        string   `json:"url,omitempty"`
	Snippet    string   `json:"snippet"`
	Similarity *float64 `json:"similarity"`
}

// AskOptions tunes a single query; zero values fall back to configuration.
type AskOptions struct {
	Limit        int
	Threshold    float64
	UseWebSearch bool
}

type Answer struct {
	Text            string        `json:"text"`
	Citations       []Citation    `json:"citations"`
	ChunksRetrieved int           `json:"chunks_retrieved"`
	Tier            RetrievalTier `json:"tier,omitempty"`
}

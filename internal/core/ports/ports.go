package ports

import (
	"context"
	"io"

	"tutorbase/internal/core/domain"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveCounts(ctx context.Context, id string, chunkCount, embeddedCount int) error
}

type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type MessageQueue interface {
	PublishDocumentUploaded(ctx context.Context, documentID string) error
	SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, domain.UploadEvent) error) error
}

// TextExtractor turns a stored document into ordered page texts.
// The chunker itself never performs I/O.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error)
}

// Chunker splits extracted pages into offset- and page-tracked chunks.
type Chunker interface {
	SplitPages(pages []domain.PageText) []domain.Chunk
}

// Embedder is the raw embedding provider boundary. A provider error covers
// the whole call; per-item failure isolation lives in the gateway above it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore is the vector storage boundary. Rank may be entirely
// unavailable; retrieval must still work through FetchEmbedded.
type ChunkStore interface {
	ReplaceChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
	UpdateEmbedding(ctx context.Context, chunkID string, vector []float32) error
	Rank(ctx context.Context, scope domain.SearchScope, queryVector []float32, limit int, threshold float64) ([]domain.ScoredChunk, error)
	FetchEmbedded(ctx context.Context, scope domain.SearchScope) ([]domain.ScoredChunk, error)
	Dimensions(ctx context.Context, scope domain.SearchScope) (int, error)
}

// PipelineObserver receives processing progress signals for
// instrumentation. Implementations must be cheap and never fail.
type PipelineObserver interface {
	ObserveChunks(count int)
	RecordEmbedBatch(failed bool)
}

// AnswerGenerator is the opaque text-completion capability.
// Retries belong to the caller, not here.
type AnswerGenerator interface {
	Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// WebSearcher supplies supplemental full-text results for grounding.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.SupplementalResult, error)
}

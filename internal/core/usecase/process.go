package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// ProcessDocumentUseCase runs the ingestion pipeline for one document:
// extract page texts, chunk with provenance, persist chunks, embed them in
// batches, and record progress on the document row. Reprocessing is
// idempotent because chunk persistence replaces the document's prior chunks.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	gateway   *EmbeddingGateway
	store     ports.ChunkStore
	observer  ports.PipelineObserver
	log       *slog.Logger
}

// NewProcessDocumentUseCase wires the pipeline. observer may be nil when
// the consumer carries no instrumentation.
func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	gateway *EmbeddingGateway,
	store ports.ChunkStore,
	observer ports.PipelineObserver,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		gateway:   gateway,
		store:     store,
		observer:  observer,
		log:       log,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.Status == domain.StatusProcessing {
		return domain.WrapError(
			domain.ErrProcessingInProgress,
			"process document",
			fmt.Errorf("document %s is already being processed", documentID),
		)
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, doc); err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, doc *domain.Document) error {
	pages, err := uc.extractPages(ctx, doc)
	if err != nil {
		return err
	}

	chunks, err := uc.chunk(doc, pages)
	if err != nil {
		return err
	}

	stored, err := uc.persistChunks(ctx, doc, chunks)
	if err != nil {
		return err
	}
	if uc.observer != nil {
		uc.observer.ObserveChunks(len(stored))
	}

	embedded, err := uc.embedChunks(ctx, doc, stored)
	if err != nil {
		return err
	}

	if err := uc.repo.SaveCounts(ctx, doc.ID, len(stored), embedded); err != nil {
		return fmt.Errorf("save chunk counts: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractPages(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	return pages, nil
}

func (uc *ProcessDocumentUseCase) chunk(doc *domain.Document, pages []domain.PageText) ([]domain.Chunk, error) {
	chunks := uc.chunker.SplitPages(pages)
	if len(chunks) == 0 {
		return nil, domain.WrapError(
			domain.ErrNoContentExtracted,
			"chunk document",
			errors.New("no text content survived extraction and chunking"),
		)
	}
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].DocumentID = doc.ID
		chunks[i].CollectionID = doc.CollectionID
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) persistChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	stored, err := uc.store.ReplaceChunks(ctx, doc, chunks)
	if err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}
	return stored, nil
}

// embedChunks embeds in batches and attaches each successful vector to its
// chunk. Individual batch failures reduce the embedded count; only a total
// failure fails the document.
func (uc *ProcessDocumentUseCase) embedChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	results := uc.gateway.EmbedChunks(ctx, texts)

	expectedDims, err := uc.expectedDimensions(ctx, doc, results)
	if err != nil {
		return 0, err
	}

	embedded := 0
	for i, res := range results {
		if res.Err != nil {
			uc.log.Warn("chunk embedding failed",
				"document_id", doc.ID,
				"chunk_index", chunks[i].Index,
				"error", res.Err,
			)
			continue
		}
		if expectedDims > 0 && len(res.Vector) != expectedDims {
			uc.log.Warn("chunk vector has unexpected dimensionality",
				"document_id", doc.ID,
				"chunk_index", chunks[i].Index,
				"got", len(res.Vector),
				"want", expectedDims,
			)
			continue
		}
		if err := uc.store.UpdateEmbedding(ctx, chunks[i].ID, res.Vector); err != nil {
			uc.log.Warn("storing chunk vector failed",
				"document_id", doc.ID,
				"chunk_index", chunks[i].Index,
				"error", err,
			)
			continue
		}
		embedded++
	}

	if embedded == 0 {
		return 0, domain.WrapError(
			domain.ErrEmbeddingFailed,
			"embed document",
			fmt.Errorf("none of %d chunks could be embedded", len(chunks)),
		)
	}
	return embedded, nil
}

// expectedDimensions returns the dimensionality already stored for the
// collection, falling back to the first successful vector of this run. A
// conflict between the two fails processing: mixing vector spaces inside
// one collection would silently corrupt retrieval.
func (uc *ProcessDocumentUseCase) expectedDimensions(ctx context.Context, doc *domain.Document, results []EmbedResult) (int, error) {
	runDims := 0
	for _, res := range results {
		if res.Err == nil && len(res.Vector) > 0 {
			runDims = len(res.Vector)
			break
		}
	}

	scope := domain.SearchScope{CollectionID: doc.CollectionID}
	storedDims, err := uc.store.Dimensions(ctx, scope)
	if err != nil {
		uc.log.Warn("collection dimension lookup failed", "collection", doc.CollectionID, "error", err)
		return runDims, nil
	}
	if storedDims > 0 && runDims > 0 && storedDims != runDims {
		return 0, domain.WrapError(
			domain.ErrDimensionMismatch,
			"embed document",
			fmt.Errorf("collection stores %d dims, new vectors have %d", storedDims, runDims),
		)
	}
	if storedDims > 0 {
		return storedDims, nil
	}
	return runDims, nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}

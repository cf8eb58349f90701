package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrProcessingInProgress means another job already owns this document.
	ErrProcessingInProgress = errors.New("processing already in progress")

	// ErrNoContentExtracted means extraction produced only whitespace.
	ErrNoContentExtracted = errors.New("no content extracted")

	// ErrEmbeddingFailed marks a single failed item in a batch; the caller
	// decides whether to retry or accept partial coverage.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrDimensionMismatch means the query vector is incompatible with the
	// collection's stored embeddings. Fatal for that query.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyCollection means the scope holds zero embedded chunks.
	ErrEmptyCollection = errors.New("no embedded chunks in collection")

	// ErrNoRelevantResults means the collection is non-empty but every tier
	// came back below threshold or empty. Distinct from ErrEmptyCollection.
	ErrNoRelevantResults = errors.New("no relevant results")

	// ErrSynthesisSkipped means there were no usable sources at all, so
	// answer generation was never attempted.
	ErrSynthesisSkipped = errors.New("synthesis skipped: no usable sources")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

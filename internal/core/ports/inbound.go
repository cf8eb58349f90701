package ports

import (
	"context"
	"io"

	"tutorbase/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, collectionID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// QuestionAnswerer is the inbound contract for grounded question answering.
type QuestionAnswerer interface {
	Ask(ctx context.Context, collectionID, question string, opts domain.AskOptions) (*domain.Answer, error)
}

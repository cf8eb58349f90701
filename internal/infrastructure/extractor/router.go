package extractor

import (
	"context"
	"path/filepath"
	"strings"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// Router picks the extractor for a document by MIME type, falling back to
// the filename extension when the upload did not declare one.
type Router struct {
	pdf   ports.TextExtractor
	plain ports.TextExtractor
}

func NewRouter(pdf, plain ports.TextExtractor) *Router {
	return &Router{pdf: pdf, plain: plain}
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	if isPDF(doc) {
		return r.pdf.Extract(ctx, doc)
	}
	return r.plain.Extract(ctx, doc)
}

func isPDF(doc *domain.Document) bool {
	if strings.EqualFold(strings.TrimSpace(doc.MimeType), "application/pdf") {
		return true
	}
	return strings.EqualFold(filepath.Ext(doc.Filename), ".pdf")
}

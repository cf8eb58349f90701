package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// Extractor pulls text out of PDF documents page by page, preserving the
// page number each run of text came from. Pages that yield no text are
// still reported so downstream page numbering matches the physical file.
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.PageText, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", doc.Filename, err)
	}

	total := pdfReader.NumPage()
	pages := make([]domain.PageText, 0, total)
	for num := 1; num <= total; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := pdfReader.Page(num)
		if page.V.IsNull() {
			pages = append(pages, domain.PageText{Page: num})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			pages = append(pages, domain.PageText{Page: num})
			continue
		}
		pages = append(pages, domain.PageText{Page: num, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

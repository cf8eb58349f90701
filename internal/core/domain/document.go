package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID            string         `json:"id"`
	CollectionID  string         `json:"collection_id"`
	Filename      string         `json:"filename"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	Status        DocumentStatus `json:"status"`
	Error         string         `json:"error,omitempty"`
	ChunkCount    int            `json:"chunk_count"`
	EmbeddedCount int            `json:"embedded_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// PageText is one page of extracted source text.
// A plain document has exactly one implicit page 1.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// UploadEvent is the queue message produced by an upload. EnqueuedAt lets
// the consumer measure how long the document waited for a worker.
type UploadEvent struct {
	DocumentID string    `json:"document_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

package nats

import (
	"testing"
	"time"

	"tutorbase/internal/core/domain"
)

func TestUploadEventRoundTrip(t *testing.T) {
	enqueued := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	payload, err := encodeUploadEvent(domain.UploadEvent{
		DocumentID: "doc-42",
		EnqueuedAt: enqueued,
	})
	if err != nil {
		t.Fatalf("encodeUploadEvent() error = %v", err)
	}

	event, err := decodeUploadEvent(payload)
	if err != nil {
		t.Fatalf("decodeUploadEvent() error = %v", err)
	}
	if event.DocumentID != "doc-42" {
		t.Fatalf("unexpected document id %q", event.DocumentID)
	}
	if !event.EnqueuedAt.Equal(enqueued) {
		t.Fatalf("unexpected enqueue time %v", event.EnqueuedAt)
	}
}

func TestEncodeRejectsMissingDocumentID(t *testing.T) {
	if _, err := encodeUploadEvent(domain.UploadEvent{EnqueuedAt: time.Now()}); err == nil {
		t.Fatalf("expected error for event without document id")
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	for _, payload := range []string{"", "not-json", "{}", `{"enqueued_at":"2026-03-14T09:30:00Z"}`} {
		if _, err := decodeUploadEvent([]byte(payload)); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"tutorbase/internal/core/domain"
)

type embedderFake struct {
	mu      sync.Mutex
	batches [][]string
	queries []string

	failBatchContaining string
	shortBatch          bool
	queryErr            error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	f.batches = append(f.batches, batch)
	f.mu.Unlock()

	if f.failBatchContaining != "" {
		for _, t := range texts {
			if strings.Contains(t, f.failBatchContaining) {
				return nil, errors.New("provider rejected batch")
			}
		}
	}

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	if f.shortBatch && len(vectors) > 1 {
		vectors = vectors[:len(vectors)-1]
	}
	return vectors, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{1, 2, 3}, nil
}

type observerFake struct {
	mu            sync.Mutex
	chunkCounts   []int
	batchOutcomes []bool
}

func (f *observerFake) ObserveChunks(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunkCounts = append(f.chunkCounts, count)
}

func (f *observerFake) RecordEmbedBatch(failed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchOutcomes = append(f.batchOutcomes, failed)
}

func TestEmbeddingGatewayResultsAlignWithInputs(t *testing.T) {
	fake := &embedderFake{}
	g := NewEmbeddingGateway(fake, GatewayConfig{BatchSize: 2})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results := g.EmbedChunks(context.Background(), texts)

	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("result %d: unexpected error %v", i, res.Err)
		}
		if got := res.Vector[0]; got != float32(len(texts[i])) {
			t.Fatalf("result %d misaligned: vector %f for text %q", i, got, texts[i])
		}
	}
}

func TestEmbeddingGatewayBatchFailureIsIsolated(t *testing.T) {
	fake := &embedderFake{failBatchContaining: "poison"}
	g := NewEmbeddingGateway(fake, GatewayConfig{BatchSize: 2})

	texts := []string{"ok-1", "ok-2", "poison", "ok-3", "ok-4", "ok-5"}
	results := g.EmbedChunks(context.Background(), texts)

	// The poison text sits in batch [2,3]; both positions fail, the rest
	// still succeed.
	for _, i := range []int{2, 3} {
		if results[i].Err == nil {
			t.Fatalf("result %d: expected error from poisoned batch", i)
		}
		if !domain.IsKind(results[i].Err, domain.ErrEmbeddingFailed) {
			t.Fatalf("result %d: expected ErrEmbeddingFailed, got %v", i, results[i].Err)
		}
	}
	for _, i := range []int{0, 1, 4, 5} {
		if results[i].Err != nil {
			t.Fatalf("result %d: expected success, got %v", i, results[i].Err)
		}
	}
}

func TestEmbeddingGatewayShortProviderResponseFailsBatch(t *testing.T) {
	fake := &embedderFake{shortBatch: true}
	g := NewEmbeddingGateway(fake, GatewayConfig{BatchSize: 3})

	results := g.EmbedChunks(context.Background(), []string{"a", "b", "c"})
	for i, res := range results {
		if !domain.IsKind(res.Err, domain.ErrEmbeddingFailed) {
			t.Fatalf("result %d: expected ErrEmbeddingFailed on short response, got %v", i, res.Err)
		}
	}
}

func TestEmbeddingGatewayBatchSizeInvariance(t *testing.T) {
	texts := []string{"one", "two", "three", "four", "five", "six", "seven"}

	collect := func(batchSize int) []float32 {
		g := NewEmbeddingGateway(&embedderFake{}, GatewayConfig{BatchSize: batchSize})
		results := g.EmbedChunks(context.Background(), texts)
		out := make([]float32, len(results))
		for i, res := range results {
			if res.Err != nil {
				t.Fatalf("batchSize=%d result %d: %v", batchSize, i, res.Err)
			}
			out[i] = res.Vector[0]
		}
		return out
	}

	small := collect(2)
	large := collect(50)
	for i := range small {
		if small[i] != large[i] {
			t.Fatalf("result %d differs across batch sizes: %f vs %f", i, small[i], large[i])
		}
	}
}

func TestEmbeddingGatewayCleansInput(t *testing.T) {
	fake := &embedderFake{}
	g := NewEmbeddingGateway(fake, GatewayConfig{BatchSize: 10, MaxInputRunes: 5})

	g.EmbedChunks(context.Background(), []string{"  line1\nline2  ", "0123456789"})

	if len(fake.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(fake.batches))
	}
	if got := fake.batches[0][0]; got != "line1" {
		t.Fatalf("expected newline collapsed and truncated to %q, got %q", "line1", got)
	}
	if got := fake.batches[0][1]; got != "01234" {
		t.Fatalf("expected rune truncation to %q, got %q", "01234", got)
	}
}

func TestEmbeddingGatewayRecordsBatchOutcomes(t *testing.T) {
	observer := &observerFake{}
	g := NewEmbeddingGateway(&embedderFake{failBatchContaining: "poison"}, GatewayConfig{
		BatchSize:   2,
		Concurrency: 1,
		Observer:    observer,
	})

	g.EmbedChunks(context.Background(), []string{"ok-1", "ok-2", "poison", "ok-3"})

	if len(observer.batchOutcomes) != 2 {
		t.Fatalf("expected 2 batch observations, got %v", observer.batchOutcomes)
	}
	failures := 0
	for _, failed := range observer.batchOutcomes {
		if failed {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly 1 failed batch, got %d", failures)
	}
}

func TestEmbeddingGatewayRejectsForeignModelDims(t *testing.T) {
	// The fake emits 1-dim vectors; a 1536-dim model must refuse them.
	g := NewEmbeddingGateway(&embedderFake{}, GatewayConfig{BatchSize: 10, ModelDims: 1536})

	results := g.EmbedChunks(context.Background(), []string{"a", "b"})
	for i, res := range results {
		if !domain.IsKind(res.Err, domain.ErrEmbeddingFailed) {
			t.Fatalf("result %d: expected ErrEmbeddingFailed for wrong dims, got %v", i, res.Err)
		}
	}

	_, err := g.EmbedQuery(context.Background(), "question")
	if !domain.IsKind(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch for query, got %v", err)
	}
}

func TestEmbeddingGatewayAcceptsMatchingModelDims(t *testing.T) {
	// embedderFake answers queries with 3-dim vectors.
	g := NewEmbeddingGateway(&embedderFake{}, GatewayConfig{ModelDims: 3})
	if _, err := g.EmbedQuery(context.Background(), "question"); err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
}

func TestEmbeddingGatewayEmbedQuery(t *testing.T) {
	fake := &embedderFake{}
	g := NewEmbeddingGateway(fake, GatewayConfig{})

	vec, err := g.EmbedQuery(context.Background(), "what is\nphotosynthesis")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3-dim vector, got %d", len(vec))
	}
	if fake.queries[0] != "what is photosynthesis" {
		t.Fatalf("expected cleaned query, got %q", fake.queries[0])
	}
}

func TestEmbeddingGatewayEmbedQueryEmpty(t *testing.T) {
	g := NewEmbeddingGateway(&embedderFake{}, GatewayConfig{})
	_, err := g.EmbedQuery(context.Background(), "   \n  ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

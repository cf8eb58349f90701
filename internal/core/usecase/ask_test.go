package usecase

import (
	"context"
	"errors"
	"testing"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

type webSearcherFake struct {
	query      string
	maxResults int
	results    []domain.SupplementalResult
	err        error
}

func (f *webSearcherFake) Search(_ context.Context, query string, maxResults int) ([]domain.SupplementalResult, error) {
	f.query = query
	f.maxResults = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func newAskUseCase(store *chunkStoreFake, gen *generatorFake, web *webSearcherFake) *AskUseCase {
	gateway := NewEmbeddingGateway(&embedderFake{}, GatewayConfig{})
	retriever := NewRetriever(store, RetrieverConfig{}, nil)
	synthesizer := NewSynthesizer(gen, SynthesizerConfig{})
	var searcher ports.WebSearcher
	if web != nil {
		searcher = web
	}
	return NewAskUseCase(gateway, retriever, synthesizer, searcher, AskConfig{}, nil)
}

func TestAskSuccess(t *testing.T) {
	store := &chunkStoreFake{
		rankByThreshold: map[float64][]domain.ScoredChunk{
			0.7: {scoredChunk("a", 0.9), scoredChunk("b", 0.8), scoredChunk("c", 0.75)},
		},
	}
	gen := &generatorFake{answer: "grounded answer [1]"}
	uc := newAskUseCase(store, gen, nil)

	answer, err := uc.Ask(context.Background(), "col-1", "what is osmosis?", domain.AskOptions{})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "grounded answer [1]" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if answer.ChunksRetrieved != 3 || answer.Tier != domain.TierRanked {
		t.Fatalf("unexpected answer metadata: %+v", answer)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(answer.Citations))
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	uc := newAskUseCase(&chunkStoreFake{}, &generatorFake{}, nil)
	_, err := uc.Ask(context.Background(), "col-1", "   ", domain.AskOptions{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAskEmptyCollectionSurfaces(t *testing.T) {
	store := &chunkStoreFake{rankErr: errors.New("index unavailable")}
	uc := newAskUseCase(store, &generatorFake{answer: "x"}, nil)

	_, err := uc.Ask(context.Background(), "col-1", "question", domain.AskOptions{})
	if !domain.IsKind(err, domain.ErrEmptyCollection) {
		t.Fatalf("expected ErrEmptyCollection, got %v", err)
	}
}

func TestAskFallsBackToWebOnEmptyCollection(t *testing.T) {
	store := &chunkStoreFake{rankErr: errors.New("index unavailable")}
	gen := &generatorFake{answer: "from the web [1]"}
	web := &webSearcherFake{results: []domain.SupplementalResult{
		{Title: "Osmosis", URL: "https://example.org/osmosis", Snippet: "Movement of water."},
	}}
	uc := newAskUseCase(store, gen, web)

	answer, err := uc.Ask(context.Background(), "col-1", "what is osmosis?", domain.AskOptions{UseWebSearch: true})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.ChunksRetrieved != 0 {
		t.Fatalf("expected no chunks, got %d", answer.ChunksRetrieved)
	}
	if len(answer.Citations) != 1 || answer.Citations[0].URL != "https://example.org/osmosis" {
		t.Fatalf("expected web citation, got %+v", answer.Citations)
	}
	if web.query != "what is osmosis?" || web.maxResults != 5 {
		t.Fatalf("unexpected web search call: %q max=%d", web.query, web.maxResults)
	}
}

func TestAskWebSearchFailureIsBestEffort(t *testing.T) {
	store := &chunkStoreFake{
		rankByThreshold: map[float64][]domain.ScoredChunk{
			0.7: {scoredChunk("a", 0.9), scoredChunk("b", 0.8), scoredChunk("c", 0.75)},
		},
	}
	web := &webSearcherFake{err: errors.New("search down")}
	uc := newAskUseCase(store, &generatorFake{answer: "ok [1]"}, web)

	answer, err := uc.Ask(context.Background(), "col-1", "question", domain.AskOptions{UseWebSearch: true})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.ChunksRetrieved != 3 {
		t.Fatalf("expected chunks despite web failure, got %d", answer.ChunksRetrieved)
	}
}

func TestAskPerRequestOverrides(t *testing.T) {
	store := &chunkStoreFake{
		rankByThreshold: map[float64][]domain.ScoredChunk{
			0.5: {scoredChunk("a", 0.6), scoredChunk("b", 0.55), scoredChunk("c", 0.52)},
		},
	}
	uc := newAskUseCase(store, &generatorFake{answer: "ok"}, nil)

	_, err := uc.Ask(context.Background(), "col-1", "question", domain.AskOptions{Limit: 2, Threshold: 0.5})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(store.rankCalls) == 0 || store.rankCalls[0] != 0.5 {
		t.Fatalf("expected rank at overridden threshold 0.5, got %v", store.rankCalls)
	}
}

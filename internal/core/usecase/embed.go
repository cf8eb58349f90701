package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// GatewayConfig tunes batching and throttling for the embedding provider.
type GatewayConfig struct {
	// BatchSize is the number of texts sent per provider request.
	BatchSize int
	// MaxInputRunes truncates each text before submission.
	MaxInputRunes int
	// Concurrency caps in-flight provider requests.
	Concurrency int
	// RequestsPerSecond throttles provider calls; zero disables the limiter.
	RequestsPerSecond float64
	// ModelDims is the configured embedding model's dimensionality. When
	// set, vectors of any other size are rejected before they can be
	// stored or compared. Zero skips the check (unknown model).
	ModelDims int
	// Observer records batch outcomes; nil disables instrumentation.
	Observer ports.PipelineObserver
}

func (c GatewayConfig) normalize() GatewayConfig {
	out := c
	if out.BatchSize <= 0 {
		out.BatchSize = 50
	}
	if out.MaxInputRunes <= 0 {
		out.MaxInputRunes = 8000
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	return out
}

// EmbedResult is the positional outcome for one input text. Exactly one of
// Vector and Err is set.
type EmbedResult struct {
	Vector []float32
	Err    error
}

// EmbeddingGateway batches texts toward an embedding provider. A failed
// provider call poisons only its own batch: other batches still produce
// vectors, and the caller decides what to do with the holes.
type EmbeddingGateway struct {
	embedder ports.Embedder
	cfg      GatewayConfig
	limiter  *rate.Limiter
}

func NewEmbeddingGateway(embedder ports.Embedder, cfg GatewayConfig) *EmbeddingGateway {
	cfg = cfg.normalize()
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &EmbeddingGateway{embedder: embedder, cfg: cfg, limiter: limiter}
}

// EmbedChunks embeds texts in batches and returns one result per input, in
// input order. It never returns an error itself; failures are per position.
func (g *EmbeddingGateway) EmbedChunks(ctx context.Context, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	if len(texts) == 0 {
		return results
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Concurrency)

	for batchStart := 0; batchStart < len(texts); batchStart += g.cfg.BatchSize {
		batchEnd := batchStart + g.cfg.BatchSize
		if batchEnd > len(texts) {
			batchEnd = len(texts)
		}
		start, end := batchStart, batchEnd

		eg.Go(func() error {
			g.embedBatch(egCtx, texts[start:end], results[start:end])
			// Batch failures are recorded positionally, never propagated,
			// so sibling batches keep running.
			return nil
		})
	}

	// Always nil by construction.
	_ = eg.Wait()
	return results
}

func (g *EmbeddingGateway) embedBatch(ctx context.Context, texts []string, results []EmbedResult) {
	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = cleanForEmbedding(t, g.cfg.MaxInputRunes)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			failBatch(results, err)
			return
		}
	}

	vectors, err := g.embedder.Embed(ctx, cleaned)
	if err != nil {
		failBatch(results, err)
		g.recordBatch(true)
		return
	}
	if len(vectors) != len(cleaned) {
		failBatch(results, fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(cleaned)))
		g.recordBatch(true)
		return
	}
	for i := range vectors {
		if err := g.checkModelDims(vectors[i]); err != nil {
			results[i] = EmbedResult{Err: domain.WrapError(domain.ErrEmbeddingFailed, "embed batch", err)}
			continue
		}
		results[i] = EmbedResult{Vector: vectors[i]}
	}
	g.recordBatch(false)
}

// checkModelDims rejects vectors that do not match the configured model's
// dimensionality; a mismatch means the provider served a different model.
func (g *EmbeddingGateway) checkModelDims(vector []float32) error {
	if g.cfg.ModelDims > 0 && len(vector) != g.cfg.ModelDims {
		return fmt.Errorf("vector has %d dims, configured model expects %d", len(vector), g.cfg.ModelDims)
	}
	return nil
}

func (g *EmbeddingGateway) recordBatch(failed bool) {
	if g.cfg.Observer != nil {
		g.cfg.Observer.RecordEmbedBatch(failed)
	}
}

// EmbedQuery embeds a single query text with the same cleaning rules as
// chunk inputs, so queries and chunks live in the same vector space.
func (g *EmbeddingGateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	cleaned := cleanForEmbedding(text, g.cfg.MaxInputRunes)
	if cleaned == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed query", fmt.Errorf("empty query text"))
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}
	vector, err := g.embedder.EmbedQuery(ctx, cleaned)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbeddingFailed, "embed query", err)
	}
	if err := g.checkModelDims(vector); err != nil {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "embed query", err)
	}
	return vector, nil
}

func failBatch(results []EmbedResult, err error) {
	wrapped := domain.WrapError(domain.ErrEmbeddingFailed, "embed batch", err)
	for i := range results {
		results[i] = EmbedResult{Err: wrapped}
	}
}

// cleanForEmbedding normalizes text the way the provider expects: newlines
// become spaces and overlong inputs are truncated by rune count.
func cleanForEmbedding(text string, maxRunes int) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	runes := []rune(cleaned)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes])
	}
	return cleaned
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// RetrieverConfig carries the retrieval constants as named, overridable
// settings rather than magic numbers.
type RetrieverConfig struct {
	// Limit is the default result count when the caller passes none.
	Limit int
	// MinResults is the per-tier acceptance heuristic: a tier's output is
	// accepted only when it returns at least this many rows.
	MinResults int
	// Threshold is the default minimum similarity.
	Threshold float64
	// RelaxedThreshold is the absolute threshold used for the second,
	// relaxed native-search attempt.
	RelaxedThreshold float64
	// ClientRelaxFactor lowers the bar to threshold*factor for client-side
	// recomputation while the result set is still under limit.
	ClientRelaxFactor float64
	// AllowUnranked enables the last-resort unranked snapshot whose scores
	// are marked synthetic. Off by default: fabricated scores are opt-in.
	AllowUnranked bool
	// RankTimeout bounds each native search call so a hang falls back
	// instead of blocking the query.
	RankTimeout time.Duration
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.Limit <= 0 {
		out.Limit = 5
	}
	if out.MinResults <= 0 {
		out.MinResults = 3
	}
	if out.Threshold <= 0 || out.Threshold > 1 {
		out.Threshold = 0.7
	}
	if out.RelaxedThreshold <= 0 || out.RelaxedThreshold > 1 {
		out.RelaxedThreshold = 0.3
	}
	if out.ClientRelaxFactor <= 0 || out.ClientRelaxFactor > 1 {
		out.ClientRelaxFactor = 0.7
	}
	if out.RankTimeout <= 0 {
		out.RankTimeout = 10 * time.Second
	}
	return out
}

// Retriever runs the three-tier similarity search: native ranked search,
// native search at a relaxed threshold, then client-side cosine
// recomputation over every embedded chunk in scope.
type Retriever struct {
	store ports.ChunkStore
	cfg   RetrieverConfig
	log   *slog.Logger
}

func NewRetriever(store ports.ChunkStore, cfg RetrieverConfig, log *slog.Logger) *Retriever {
	if log == nil {
		log = slog.Default()
	}
	return &Retriever{store: store, cfg: cfg.normalize(), log: log}
}

func (r *Retriever) Search(
	ctx context.Context,
	scope domain.SearchScope,
	queryVector []float32,
	limit int,
	threshold float64,
) (domain.RetrievalResult, error) {
	if len(queryVector) == 0 {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "similarity search", errors.New("empty query vector"))
	}
	if limit <= 0 {
		limit = r.cfg.Limit
	}
	if threshold <= 0 {
		threshold = r.cfg.Threshold
	}

	if err := r.checkDimensions(ctx, scope, len(queryVector)); err != nil {
		return domain.RetrievalResult{}, err
	}

	best := domain.RetrievalResult{Tier: domain.TierRanked}
	best.Chunks = r.rank(ctx, scope, queryVector, limit, threshold)
	if len(best.Chunks) >= r.cfg.MinResults {
		return best, nil
	}

	if threshold > r.cfg.RelaxedThreshold {
		relaxed := r.rank(ctx, scope, queryVector, limit, r.cfg.RelaxedThreshold)
		if len(relaxed) > len(best.Chunks) {
			best = domain.RetrievalResult{Chunks: relaxed, Tier: domain.TierRelaxed}
		}
		if len(best.Chunks) >= r.cfg.MinResults {
			return best, nil
		}
	}

	clientResult, err := r.searchClientSide(ctx, scope, queryVector, limit, threshold)
	if err == nil && len(clientResult.Chunks) > 0 {
		return clientResult, nil
	}

	// A partial native result beats surfacing a fallback failure.
	if len(best.Chunks) > 0 {
		return best, nil
	}
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	return domain.RetrievalResult{}, domain.WrapError(
		domain.ErrNoRelevantResults,
		"similarity search",
		fmt.Errorf("no chunk scored above threshold %.2f", threshold),
	)
}

// rank runs one native ranked-search attempt. Storage errors and timeouts
// are logged and recovered: they trigger fallback, not failure.
func (r *Retriever) rank(
	ctx context.Context,
	scope domain.SearchScope,
	queryVector []float32,
	limit int,
	threshold float64,
) []domain.ScoredChunk {
	rankCtx, cancel := context.WithTimeout(ctx, r.cfg.RankTimeout)
	defer cancel()

	rows, err := r.store.Rank(rankCtx, scope, queryVector, limit, threshold)
	if err != nil {
		r.log.Warn("native vector search failed, falling back",
			"collection", scope.CollectionID,
			"threshold", threshold,
			"error", err,
		)
		return nil
	}
	return rows
}

func (r *Retriever) searchClientSide(
	ctx context.Context,
	scope domain.SearchScope,
	queryVector []float32,
	limit int,
	threshold float64,
) (domain.RetrievalResult, error) {
	candidates, err := r.store.FetchEmbedded(ctx, scope)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("fetch embedded chunks: %w", err)
	}
	if len(candidates) == 0 {
		return domain.RetrievalResult{}, domain.WrapError(
			domain.ErrEmptyCollection,
			"similarity search",
			fmt.Errorf("collection %s has no embedded chunks", scope.CollectionID),
		)
	}

	scored := r.scoreCandidates(queryVector, candidates)

	relaxedBar := threshold * r.cfg.ClientRelaxFactor
	kept := make([]domain.ScoredChunk, 0, limit)
	for _, sc := range scored {
		if sc.Score >= threshold {
			kept = append(kept, sc)
		} else if len(kept) < limit && sc.Score >= relaxedBar {
			kept = append(kept, sc)
		}
	}

	if len(kept) > 0 {
		sortByScore(kept)
		return domain.RetrievalResult{Chunks: trim(kept, limit), Tier: domain.TierClient}, nil
	}

	if r.cfg.AllowUnranked && len(scored) > 0 {
		sortByScore(scored)
		return domain.RetrievalResult{
			Chunks:    trim(scored, limit),
			Tier:      domain.TierSnapshot,
			Synthetic: true,
		}, nil
	}

	return domain.RetrievalResult{}, domain.WrapError(
		domain.ErrNoRelevantResults,
		"similarity search",
		fmt.Errorf("%d candidates, none above threshold %.2f", len(scored), threshold),
	)
}

// scoreCandidates computes cosine similarity normalized from [-1,1] to [0,1]
// to match the native tier's score convention. Chunks whose vector
// dimensionality differs from the query are excluded.
func (r *Retriever) scoreCandidates(queryVector []float32, candidates []domain.ScoredChunk) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, 0, len(candidates))
	mismatches := 0
	for _, c := range candidates {
		if len(c.Chunk.Embedding) != len(queryVector) {
			mismatches++
			continue
		}
		cos, ok := cosineSimilarity(queryVector, c.Chunk.Embedding)
		if !ok {
			continue
		}
		c.Score = (cos + 1) / 2
		out = append(out, c)
	}
	if mismatches > 0 {
		r.log.Warn("excluded dimension-mismatched chunks from client-side scoring",
			"excluded", mismatches,
			"query_dims", len(queryVector),
		)
	}
	return out
}

func (r *Retriever) checkDimensions(ctx context.Context, scope domain.SearchScope, queryDims int) error {
	dims, err := r.store.Dimensions(ctx, scope)
	if err != nil {
		// Advisory only: the client tier re-checks per chunk.
		r.log.Warn("collection dimension lookup failed", "collection", scope.CollectionID, "error", err)
		return nil
	}
	if dims > 0 && dims != queryDims {
		return domain.WrapError(
			domain.ErrDimensionMismatch,
			"similarity search",
			fmt.Errorf("query has %d dims, collection stores %d", queryDims, dims),
		)
	}
	return nil
}

func cosineSimilarity(a []float32, b []float32) (float64, bool) {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

// sortByScore orders descending; equal scores keep scan order.
func sortByScore(chunks []domain.ScoredChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
}

func trim(chunks []domain.ScoredChunk, limit int) []domain.ScoredChunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

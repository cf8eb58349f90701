package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"tutorbase/internal/core/domain"
	"tutorbase/internal/core/ports"
)

// AskConfig carries query-time defaults applied when per-request options are
// left at their zero values.
type AskConfig struct {
	Limit      int
	Threshold  float64
	WebResults int
}

func (c AskConfig) normalize() AskConfig {
	out := c
	if out.Limit <= 0 {
		out.Limit = 5
	}
	if out.Threshold <= 0 || out.Threshold > 1 {
		out.Threshold = 0.7
	}
	if out.WebResults <= 0 {
		out.WebResults = 5
	}
	return out
}

// AskUseCase answers a question against one collection: embed the question,
// retrieve grounding chunks through the tiered search, optionally supplement
// with external web results, then synthesize a cited answer.
type AskUseCase struct {
	gateway     *EmbeddingGateway
	retriever   *Retriever
	synthesizer *Synthesizer
	web         ports.WebSearcher
	cfg         AskConfig
	log         *slog.Logger
}

// NewAskUseCase wires the query path. web may be nil when external search is
// not configured.
func NewAskUseCase(
	gateway *EmbeddingGateway,
	retriever *Retriever,
	synthesizer *Synthesizer,
	web ports.WebSearcher,
	cfg AskConfig,
	log *slog.Logger,
) *AskUseCase {
	if log == nil {
		log = slog.Default()
	}
	return &AskUseCase{
		gateway:     gateway,
		retriever:   retriever,
		synthesizer: synthesizer,
		web:         web,
		cfg:         cfg.normalize(),
		log:         log,
	}
}

func (uc *AskUseCase) Ask(
	ctx context.Context,
	collectionID, question string,
	opts domain.AskOptions,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("empty question"))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = uc.cfg.Limit
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = uc.cfg.Threshold
	}

	queryVector, err := uc.gateway.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	scope := domain.SearchScope{CollectionID: collectionID}
	retrieval, retrieveErr := uc.retriever.Search(ctx, scope, queryVector, limit, threshold)

	supplemental := uc.searchWeb(ctx, question, opts.UseWebSearch)

	if retrieveErr != nil {
		// An empty or irrelevant collection is still answerable when web
		// results exist; other retrieval failures surface as-is.
		recoverable := domain.IsKind(retrieveErr, domain.ErrEmptyCollection) ||
			domain.IsKind(retrieveErr, domain.ErrNoRelevantResults)
		if !recoverable || len(supplemental) == 0 {
			return nil, retrieveErr
		}
		uc.log.Info("answering from web results only",
			"collection", collectionID,
			"reason", retrieveErr.Error(),
		)
		retrieval = domain.RetrievalResult{}
	}

	answer, err := uc.synthesizer.Synthesize(ctx, question, retrieval, supplemental)
	if err != nil {
		return nil, err
	}
	return answer, nil
}

func (uc *AskUseCase) searchWeb(ctx context.Context, question string, enabled bool) []domain.SupplementalResult {
	if !enabled || uc.web == nil {
		return nil
	}
	results, err := uc.web.Search(ctx, question, uc.cfg.WebResults)
	if err != nil {
		// Supplemental search is best effort.
		uc.log.Warn("web search failed", "error", err)
		return nil
	}
	return results
}

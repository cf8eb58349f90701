package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tutorbase/internal/config"
	"tutorbase/internal/core/ports"
	"tutorbase/internal/core/usecase"
	"tutorbase/internal/infrastructure/chunking"
	"tutorbase/internal/infrastructure/extractor"
	"tutorbase/internal/infrastructure/extractor/pdftext"
	"tutorbase/internal/infrastructure/extractor/plaintext"
	"tutorbase/internal/infrastructure/llm/openai"
	"tutorbase/internal/infrastructure/queue/nats"
	"tutorbase/internal/infrastructure/repository/postgres"
	"tutorbase/internal/infrastructure/resilience"
	"tutorbase/internal/infrastructure/storage/localfs"
	"tutorbase/internal/infrastructure/websearch/duckduckgo"
	"tutorbase/internal/observability/logging"
	"tutorbase/internal/observability/metrics"
)

const serviceName = "tutorbase"

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	WorkerMetrics *metrics.WorkerMetrics
	QueryMetrics  *metrics.QueryMetrics

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	AskUC     ports.QuestionAnswerer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.New(serviceName, cfg.LogLevel)

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	queryMetrics := metrics.NewQueryMetrics(serviceName)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	chunkStore := postgres.NewChunkRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logging.WithComponent(logger, "resilience"))

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logging.WithComponent(logger, "queue"),
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	llmClient := openai.NewWithOptions(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIChatModel, cfg.OpenAIEmbedModel, openai.Options{
		ResilienceExecutor: executor,
	})
	embedder := openai.NewEmbedder(llmClient)
	generator := openai.NewGenerator(llmClient)

	gateway := usecase.NewEmbeddingGateway(embedder, usecase.GatewayConfig{
		BatchSize:         cfg.EmbedBatchSize,
		MaxInputRunes:     cfg.EmbedMaxInputChars,
		Concurrency:       cfg.EmbedConcurrency,
		RequestsPerSecond: cfg.EmbedRequestsPerSecond,
		ModelDims:         config.EmbeddingDims(cfg.OpenAIEmbedModel),
		Observer:          workerMetrics.Pipeline(serviceName),
	})
	retriever := usecase.NewRetriever(chunkStore, usecase.RetrieverConfig{
		Limit:             cfg.RetrievalLimit,
		MinResults:        cfg.RetrievalMinResults,
		Threshold:         cfg.RetrievalThreshold,
		RelaxedThreshold:  cfg.RetrievalRelaxedThreshold,
		ClientRelaxFactor: cfg.RetrievalClientRelaxFactor,
		AllowUnranked:     cfg.RetrievalAllowUnranked,
		RankTimeout:       time.Duration(cfg.RetrievalRankTimeoutSecs) * time.Second,
	}, logging.WithComponent(logger, "retriever"))
	synthesizer := usecase.NewSynthesizer(generator, usecase.SynthesizerConfig{
		Temperature:  cfg.AnswerTemperature,
		MaxTokens:    cfg.AnswerMaxTokens,
		SnippetRunes: cfg.SnippetChars,
	})

	var webSearcher ports.WebSearcher
	if cfg.WebSearchEnabled {
		webSearcher = duckduckgo.NewWithOptions(cfg.WebSearchBaseURL, duckduckgo.Options{
			ResilienceExecutor: executor,
		})
	}

	chunker := chunking.NewSplitter(cfg.ChunkMaxUnits, cfg.ChunkOverlap, chunking.Unit(cfg.ChunkUnit))
	docExtractor := extractor.NewRouter(
		pdftext.NewExtractor(storage),
		plaintext.NewExtractor(storage),
	)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		repo,
		docExtractor,
		chunker,
		gateway,
		chunkStore,
		workerMetrics.Pipeline(serviceName),
		logging.WithComponent(logger, "processor"),
	)
	askUC := usecase.NewAskUseCase(gateway, retriever, synthesizer, webSearcher, usecase.AskConfig{
		Limit:      cfg.RetrievalLimit,
		Threshold:  cfg.RetrievalThreshold,
		WebResults: cfg.WebSearchMaxResults,
	}, logging.WithComponent(logger, "ask"))

	return &App{
		Config: cfg,
		Logger: logger,
		Queue:  queue,
		Repo:   repo,

		WorkerMetrics: workerMetrics,
		QueryMetrics:  queryMetrics,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		AskUC:     askUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

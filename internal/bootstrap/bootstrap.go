package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/episode-insight/internal/config"
	"github.com/kirillkom/episode-insight/internal/core/ports"
	"github.com/kirillkom/episode-insight/internal/core/usecase"
	"github.com/kirillkom/episode-insight/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/episode-insight/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/episode-insight/internal/infrastructure/queue/nats"
	"github.com/kirillkom/episode-insight/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/episode-insight/internal/infrastructure/resilience"
	"github.com/kirillkom/episode-insight/internal/infrastructure/transcript"
	"github.com/kirillkom/episode-insight/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/episode-insight/internal/observability/logging"
	"github.com/kirillkom/episode-insight/internal/observability/metrics"
)

const (
	plannerTimeout = 15 * time.Second
	graderTimeout  = 15 * time.Second
	callTimeout    = 20 * time.Second
)

// App wires the query pipeline and its adapters. Postgres and NATS are
// optional: without a DSN the service runs stateless, without a NATS URL
// completion events are dropped.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Service       ports.QueryService
	Conversations ports.ConversationStore
	Metrics       *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, service string, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ollamaClient := ollama.New(ollama.Options{
		BaseURL:           cfg.OllamaURL,
		GenerateModel:     cfg.OllamaGenModel,
		EmbedModel:        cfg.OllamaEmbedModel,
		RequestsPerSecond: cfg.OllamaRPS,
		Burst:             cfg.OllamaBurst,
	}, executor)
	classifier := ollama.NewClassifier(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)
	generator := ollama.NewGenerator(ollamaClient)

	var vector ports.VectorSearch
	if cfg.QdrantURL != "" {
		vector = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, embedder)
	} else {
		logger.Warn("qdrant url not set, using in-memory transcript store")
		memory := qdrant.NewMemoryClient()
		if cfg.TranscriptsDir != "" {
			chunks, err := transcript.LoadDir(cfg.TranscriptsDir, transcript.NewSplitter(900, 1))
			if err != nil {
				return nil, fmt.Errorf("seed transcripts: %w", err)
			}
			memory.Add(chunks...)
			logger.Info("seeded in-memory store", "chunks", len(chunks), "dir", cfg.TranscriptsDir)
		}
		vector = memory
	}

	graph, err := neo4j.New(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		return nil, fmt.Errorf("init neo4j: %w", err)
	}
	if err := graph.Verify(ctx); err != nil {
		logger.Warn("neo4j connectivity not verified", "error", err)
	}

	var conversations ports.ConversationStore
	closers := []func(){func() { _ = graph.Close(context.Background()) }}
	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewConversationRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure conversation schema: %w", err)
		}
		conversations = repo
		closers = append(closers, func() { _ = db.Close() })
	}

	var events ports.EventPublisher
	if cfg.NATSURL != "" {
		publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, fmt.Errorf("init nats: %w", err)
		}
		events = publisher
		closers = append(closers, publisher.Close)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	pipelineMetrics := metrics.NewPipelineMetrics(service, httpMetrics.Registry())

	planner := usecase.NewPlanner(classifier, logger, plannerTimeout)
	reranker := usecase.NewReranker(embedder, logger, cfg.FusionRRFK, cfg.MMRLambda, cfg.MMRWindow)
	synthesizer := usecase.NewSynthesizer(generator, logger, cfg.SynthesisRAGLimit, cfg.SynthesisKGLimit)
	gate := usecase.NewGate(classifier, logger, cfg.GraderConfidence, graderTimeout)

	engine := usecase.NewEngine(
		planner,
		classifier,
		vector,
		graph,
		reranker,
		synthesizer,
		gate,
		events,
		pipelineMetrics,
		logger,
		usecase.EngineConfig{
			FusionStrategy: usecase.FusionStrategy(cfg.FusionStrategy),
			Retrieval: usecase.RetrievalConfig{
				Workers:           cfg.RetrievalWorkers,
				TopK:              cfg.RetrievalTopK,
				KGLimit:           cfg.KGLimit,
				KGMaxHops:         cfg.KGMaxHops,
				CallTimeout:       callTimeout,
				ExpansionQueries:  cfg.ExpansionQueries,
				ExpansionPerQuery: cfg.ExpansionPerQuery,
			},
		},
	)

	return &App{
		Config:        cfg,
		Logger:        logger,
		Service:       engine,
		Conversations: conversations,
		Metrics:       httpMetrics,
		closeFn: func() {
			for _, closeOne := range closers {
				closeOne()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

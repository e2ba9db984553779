package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

// Run outcomes, used for metrics and the completion event.
const (
	OutcomeAnswered = "answered"
	OutcomeRefused  = "refused"
	OutcomeRejected = "rejected_irrelevant"
	OutcomeDirect   = "direct"
	OutcomeError    = "synthesis_error"
)

// StageObserver receives pipeline timing and outcome signals. Implemented by
// the metrics package; nil disables observation.
type StageObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveOutcome(outcome string, ragCount, kgCount int)
}

// EngineConfig tunes the pipeline. Zero values fall back to defaults.
type EngineConfig struct {
	FusionStrategy FusionStrategy
	Retrieval      RetrievalConfig
}

// Engine is the orchestrating state machine. Each query gets a fresh
// RunState that flows through the fixed stage order exactly once:
// plan, retrieve_rag, retrieve_kg, rerank, synthesize, self_reflect.
// The engine is the only component that mutates the state between stages,
// and concurrent runs share nothing.
type Engine struct {
	planner     *Planner
	classifier  ports.Classifier
	vector      ports.VectorSearch
	graph       ports.GraphSearch
	reranker    *Reranker
	synthesizer *Synthesizer
	gate        *Gate
	events      ports.EventPublisher
	observer    StageObserver
	logger      *slog.Logger

	fusion    FusionStrategy
	retrieval RetrievalConfig
}

func NewEngine(
	planner *Planner,
	classifier ports.Classifier,
	vector ports.VectorSearch,
	graph ports.GraphSearch,
	reranker *Reranker,
	synthesizer *Synthesizer,
	gate *Gate,
	events ports.EventPublisher,
	observer StageObserver,
	logger *slog.Logger,
	cfg EngineConfig,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		planner:     planner,
		classifier:  classifier,
		vector:      vector,
		graph:       graph,
		reranker:    reranker,
		synthesizer: synthesizer,
		gate:        gate,
		events:      events,
		observer:    observer,
		logger:      logger,
		fusion:      NormalizeFusionStrategy(string(cfg.FusionStrategy)),
		retrieval:   cfg.Retrieval.normalize(),
	}
}

type stage struct {
	name string
	run  func(context.Context, *domain.RunState)
}

func (e *Engine) Run(ctx context.Context, question string, history []domain.Turn, session domain.SessionMetadata) (*domain.QueryResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run query", errors.New("question is empty"))
	}

	state := domain.NewRunState(uuid.NewString(), domain.Query{
		Text:    strings.TrimSpace(question),
		History: history,
		Session: session,
	})

	stages := []stage{
		{"plan", e.stagePlan},
		{"retrieve_rag", e.stageRetrieveRAG},
		{"retrieve_kg", e.stageRetrieveKG},
		{"rerank", e.stageRerank},
		{"synthesize", e.stageSynthesize},
		{"self_reflect", e.stageReflect},
	}
	for _, s := range stages {
		start := time.Now()
		s.run(ctx, state)
		if e.observer != nil {
			e.observer.ObserveStage(s.name, time.Since(start))
		}
	}

	e.finish(ctx, state)
	return &domain.QueryResult{
		Answer:   state.Answer,
		Sources:  state.Sources,
		Metadata: state.Metadata,
	}, nil
}

func (e *Engine) stagePlan(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	state.Plan = e.planner.Plan(ctx, state.Query)
	state.Metadata["intent"] = string(state.Plan.Intent)
	state.Metadata["complexity"] = string(state.Plan.Complexity)
	state.Metadata["sub_queries"] = len(state.Plan.SubQueries)

	if !state.Plan.IsRelevant {
		state.Metadata["rejection_reason"] = state.Plan.RejectionReason
		state.Halt(domain.RefusalOutOfScope, []domain.RetrievalResult{})
	}
}

func (e *Engine) stageRetrieveRAG(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	e.retrieveRAG(ctx, state)
}

func (e *Engine) stageRetrieveKG(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	e.retrieveKG(ctx, state)

	// Hard stop: an evidence-requiring intent with nothing retrieved never
	// reaches rerank or synthesis.
	if state.Plan.Intent.RequiresEvidence() &&
		len(state.RAGResults) == 0 && len(state.KGResults) == 0 {
		state.Metadata["rejected_by"] = "no_evidence_hard_stop"
		state.Halt(domain.RefusalNoEvidence, []domain.RetrievalResult{})
	}
}

func (e *Engine) stageRerank(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	if len(state.RAGResults)+len(state.KGResults) == 0 {
		return
	}
	state.Reranked = e.reranker.Rerank(ctx, state.Query.Text, state.RAGResults, state.KGResults, e.fusion)
	state.Metadata["reranked"] = len(state.Reranked)
	state.Metadata["fusion_strategy"] = string(e.fusion)
}

func (e *Engine) stageSynthesize(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	e.synthesizer.Synthesize(ctx, state)
}

func (e *Engine) stageReflect(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	e.gate.Inspect(ctx, state)
}

// finish classifies the run outcome, records metrics, and publishes the
// completion event best effort.
func (e *Engine) finish(ctx context.Context, state *domain.RunState) {
	outcome := classifyOutcome(state)
	duration := time.Since(state.StartedAt)
	state.Metadata["run_id"] = state.RunID
	state.Metadata["outcome"] = outcome
	state.Metadata["duration_ms"] = duration.Milliseconds()

	if e.observer != nil {
		e.observer.ObserveOutcome(outcome, len(state.RAGResults), len(state.KGResults))
	}
	e.logger.Info("query_completed",
		"run_id", state.RunID,
		"outcome", outcome,
		"rag_count", len(state.RAGResults),
		"kg_count", len(state.KGResults),
		"duration_ms", duration.Milliseconds(),
	)

	if e.events == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	err := e.events.PublishQueryCompleted(publishCtx, domain.QueryCompletedEvent{
		RunID:      state.RunID,
		Question:   state.Query.Text,
		Outcome:    outcome,
		RAGCount:   len(state.RAGResults),
		KGCount:    len(state.KGResults),
		Sources:    len(state.Sources),
		DurationMS: duration.Milliseconds(),
	})
	if err != nil {
		e.logger.Warn("completion_event_failed", "run_id", state.RunID, "error", err)
	}
}

func classifyOutcome(state *domain.RunState) string {
	switch {
	case state.Error != "":
		return OutcomeError
	case !state.Plan.IsRelevant:
		return OutcomeRejected
	case state.Plan.Strategy.DirectAnswer && state.ShouldContinue:
		return OutcomeDirect
	case !state.ShouldContinue:
		return OutcomeRefused
	default:
		return OutcomeAnswered
	}
}

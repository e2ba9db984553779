package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

// Synthesizer turns the top reranked evidence into an answer. It owns the
// decision of whether to call generation at all: with no evidence it writes
// nothing and defers to the reflection gate, which is also enforced upstream
// by the orchestrator. Synthesis is the primary hallucination risk, so the
// redundancy is intentional.
type Synthesizer struct {
	generator ports.AnswerGenerator
	logger    *slog.Logger
	ragLimit  int
	kgLimit   int
}

func NewSynthesizer(generator ports.AnswerGenerator, logger *slog.Logger, ragLimit, kgLimit int) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if ragLimit <= 0 {
		ragLimit = 5
	}
	if kgLimit <= 0 {
		kgLimit = 10
	}
	return &Synthesizer{
		generator: generator,
		logger:    logger,
		ragLimit:  ragLimit,
		kgLimit:   kgLimit,
	}
}

func (s *Synthesizer) Synthesize(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	if state.Plan.Strategy.DirectAnswer {
		state.Answer = domain.DirectReply(state.Query.Text)
		state.Sources = []domain.RetrievalResult{}
		return
	}

	ragEvidence, kgEvidence := splitEvidence(state.Reranked, s.ragLimit, s.kgLimit)
	if len(ragEvidence)+len(kgEvidence) == 0 {
		state.Metadata["synthesis_skipped"] = "no_evidence"
		return
	}

	answer, err := s.generator.GenerateAnswer(ctx, state.Query.Text, ragEvidence, kgEvidence)
	if err != nil {
		s.logger.Error("synthesis_failed", "run_id", state.RunID, "error", err)
		state.Error = err.Error()
		state.Metadata["synthesis_error"] = err.Error()
		state.Halt(domain.AnswerSynthesisFailed, []domain.RetrievalResult{})
		return
	}

	state.Answer = answer
	state.Sources = append(append([]domain.RetrievalResult{}, ragEvidence...), kgEvidence...)
	state.Metadata["evidence_rag"] = len(ragEvidence)
	state.Metadata["evidence_kg"] = len(kgEvidence)
}

// splitEvidence walks the reranked list in order and fills the two bounded
// buckets, preserving the fused ranking within each source type.
func splitEvidence(reranked []domain.RetrievalResult, ragLimit, kgLimit int) ([]domain.RetrievalResult, []domain.RetrievalResult) {
	var ragEvidence, kgEvidence []domain.RetrievalResult
	for _, result := range reranked {
		switch result.SourceType {
		case domain.SourceKG:
			if len(kgEvidence) < kgLimit {
				kgEvidence = append(kgEvidence, result)
			}
		default:
			if len(ragEvidence) < ragLimit {
				ragEvidence = append(ragEvidence, result)
			}
		}
	}
	return ragEvidence, kgEvidence
}

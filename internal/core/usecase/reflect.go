package usecase

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

// Gate is the terminal self-reflection veto. It runs as the last stage of
// every pipeline and its checks are each independently sufficient to reject.
// Rejection always replaces the answer with the fixed refusal; passing never
// modifies the answer text.
type Gate struct {
	grader     ports.Classifier
	logger     *slog.Logger
	confidence float64
	timeout    time.Duration
}

// NewGate builds the gate. grader may be nil; the optional LLM grading pass
// (check 3) is skipped without it and the deterministic checks always run.
func NewGate(grader ports.Classifier, logger *slog.Logger, confidence float64, timeout time.Duration) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 0.7
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gate{
		grader:     grader,
		logger:     logger,
		confidence: confidence,
		timeout:    timeout,
	}
}

var interrogativeLead = regexp.MustCompile(`(?i)^(what|who|whom|whose|where|when|why|how|which|do|does|did|is|are|was|were|can|could|should|would|will)\b`)

var knowledgeSeekingCues = []string{
	"tell me about",
	"explain",
	"describe",
	"summarize",
	"what do you know",
	"talk about",
}

func (g *Gate) Inspect(ctx context.Context, state *domain.RunState) {
	if !state.ShouldContinue {
		return
	}
	ragCount := len(state.RAGResults)
	kgCount := len(state.KGResults)
	isGreeting := domain.IsGreetingPhrase(state.Query.Text)

	// Check 1: a knowledge-seeking question with zero evidence never passes,
	// unless the input is a verified literal greeting.
	if ragCount == 0 && kgCount == 0 && seeksKnowledge(state.Query.Text) && !isGreeting {
		g.reject(state, "no_evidence", ragCount, kgCount)
		return
	}

	// Check 2: an answer with no sources and no retrieval behind it is
	// unsupported for any evidence-requiring intent.
	if state.Answer != "" && len(state.Sources) == 0 && ragCount == 0 && kgCount == 0 &&
		state.Plan.Intent.RequiresEvidence() {
		g.reject(state, "unsupported_answer", ragCount, kgCount)
		return
	}

	// Check 3: optional grading pass. Only honored above the confidence
	// threshold; a low-confidence model opinion must not override the
	// deterministic checks.
	if g.grader != nil && state.Answer != "" && state.Plan.Intent.RequiresEvidence() {
		gradeCtx, cancel := context.WithTimeout(ctx, g.timeout)
		verdict, err := g.grader.GradeAnswer(gradeCtx, domain.GradeRequest{
			Question: state.Query.Text,
			Answer:   state.Answer,
			RAGCount: ragCount,
			KGCount:  kgCount,
		})
		cancel()
		if err != nil {
			g.logger.Warn("grading_failed", "run_id", state.RunID, "error", err)
		} else if verdict.Reject && verdict.Confidence >= g.confidence {
			g.reject(state, "grader", ragCount, kgCount)
			state.Metadata["grader_reason"] = verdict.Reason
			return
		}
	}

	// Check 4: for evidence-requiring intents, the counts must reflect a
	// real retrieval attempt, not a skipped stage.
	if state.Plan.Intent.RequiresEvidence() && !retrievalAttempted(state) {
		g.reject(state, "retrieval_not_attempted", ragCount, kgCount)
		return
	}

	// Check 5: repeat of check 1 as defense against an upstream logic error
	// that mutated state after the first pass.
	if len(state.RAGResults) == 0 && len(state.KGResults) == 0 && seeksKnowledge(state.Query.Text) && !isGreeting {
		g.reject(state, "no_evidence_final", ragCount, kgCount)
		return
	}

	state.Metadata["reflection"] = map[string]any{
		"passed":    true,
		"rag_count": ragCount,
		"kg_count":  kgCount,
	}
	g.logger.Info("reflection_passed",
		"run_id", state.RunID,
		"intent", string(state.Plan.Intent),
		"rag_count", ragCount,
		"kg_count", kgCount,
		"sources", len(state.Sources),
	)
}

func (g *Gate) reject(state *domain.RunState, check string, ragCount, kgCount int) {
	g.logger.Warn("reflection_rejected",
		"run_id", state.RunID,
		"check", check,
		"intent", string(state.Plan.Intent),
		"rag_count", ragCount,
		"kg_count", kgCount,
	)
	state.Metadata = map[string]any{
		"rejected_by": check,
		"rag_count":   ragCount,
		"kg_count":    kgCount,
	}
	state.Halt(domain.RefusalNoEvidence, []domain.RetrievalResult{})
}

// seeksKnowledge reports whether the text is lexically a question or contains
// a domain-knowledge-seeking phrase.
func seeksKnowledge(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	if interrogativeLead.MatchString(trimmed) {
		return true
	}
	lowered := strings.ToLower(trimmed)
	for _, cue := range knowledgeSeekingCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// retrievalAttempted verifies the retrieval stages actually ran: the stages
// flag their attempt in metadata when invoked, so a skipped stage cannot be
// mistaken for an empty-but-real result.
func retrievalAttempted(state *domain.RunState) bool {
	ragAttempted, _ := state.Metadata["rag_attempted"].(bool)
	kgAttempted, _ := state.Metadata["kg_attempted"].(bool)
	return ragAttempted || kgAttempted
}

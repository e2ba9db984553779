package domain

import "time"

// Canned terminal answers. The refusal and the synthesis failure are distinct
// on purpose so users can tell "I don't know" from "something broke".
const (
	RefusalNoEvidence = "I couldn't find anything in the episode library that answers this, so I won't guess. Try asking about a topic, speaker, or episode from the collection."
	RefusalOutOfScope = "I can only answer questions about the episode library, so this one is outside what I cover."
	AnswerSynthesisFailed = "Something went wrong while composing the answer. The retrieved material was fine, so please try again."
)

// RunState is the single mutable object threaded through the pipeline. One is
// created per query, flows through the stages exactly once, and is discarded
// after the result is returned.
type RunState struct {
	RunID     string
	StartedAt time.Time

	Query Query
	Plan  QueryPlan

	RAGResults []RetrievalResult
	KGResults  []RetrievalResult
	Reranked   []RetrievalResult

	Answer  string
	Sources []RetrievalResult

	Metadata       map[string]any
	ShouldContinue bool
	Error          string
}

func NewRunState(runID string, query Query) *RunState {
	return &RunState{
		RunID:          runID,
		StartedAt:      time.Now().UTC(),
		Query:          query,
		Metadata:       map[string]any{},
		ShouldContinue: true,
	}
}

// Halt latches the terminal answer. ShouldContinue is a one-way latch: once
// it is false, later calls are no-ops and may not overwrite answer or sources.
func (s *RunState) Halt(answer string, sources []RetrievalResult) {
	if !s.ShouldContinue {
		return
	}
	s.ShouldContinue = false
	s.Answer = answer
	s.Sources = sources
}

// QueryResult is what the pipeline emits at the terminal state.
type QueryResult struct {
	Answer   string            `json:"answer"`
	Sources  []RetrievalResult `json:"sources"`
	Metadata map[string]any    `json:"metadata"`
}

// QueryCompletedEvent is published after every run, best effort.
type QueryCompletedEvent struct {
	RunID      string `json:"run_id"`
	Question   string `json:"question"`
	Outcome    string `json:"outcome"`
	RAGCount   int    `json:"rag_count"`
	KGCount    int    `json:"kg_count"`
	Sources    int    `json:"sources"`
	DurationMS int64  `json:"duration_ms"`
}

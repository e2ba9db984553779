package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

func relevantKnowledgeClassifier() *fakeClassifier {
	return &fakeClassifier{
		relevance: domain.RelevanceVerdict{Relevant: true},
		classification: domain.QueryClassification{
			Complexity: domain.ComplexityModerate,
			Intent:     domain.IntentKnowledgeQuery,
			Entities:   []string{"deep work"},
		},
	}
}

func TestRunGreetingAnswersDirectlyWithoutRetrieval(t *testing.T) {
	vector := &fakeVector{fallback: []domain.RetrievalResult{ragResult("ep-01", "chunk")}}
	graph := &fakeGraph{results: []domain.RetrievalResult{kgResult("concept", "description")}}
	engine := newTestEngine(engineDeps{
		classifier: &fakeClassifier{relevanceErr: errors.New("must not be called")},
		vector:     vector,
		graph:      graph,
		generator:  &fakeGenerator{err: errors.New("must not be called")},
	})

	result, err := engine.Run(context.Background(), "hello", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer == "" {
		t.Fatalf("greeting must produce a direct answer")
	}
	if len(result.Sources) != 0 {
		t.Fatalf("greeting answers cite nothing, got %d sources", len(result.Sources))
	}
	if result.Metadata["outcome"] != OutcomeDirect {
		t.Fatalf("outcome = %v, want %s", result.Metadata["outcome"], OutcomeDirect)
	}
	if len(vector.calls()) != 0 || len(graph.calls()) != 0 {
		t.Fatalf("greetings must not hit the stores")
	}
}

func TestRunRefusesWhenBothStoresComeBackEmpty(t *testing.T) {
	publisher := &fakePublisher{}
	engine := newTestEngine(engineDeps{
		classifier: relevantKnowledgeClassifier(),
		vector:     &fakeVector{},
		graph:      &fakeGraph{},
		generator:  &fakeGenerator{err: errors.New("must not be called")},
		publisher:  publisher,
	})

	result, err := engine.Run(context.Background(), "what did anyone say about deep work?", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != domain.RefusalNoEvidence {
		t.Fatalf("empty evidence must refuse, got %q", result.Answer)
	}
	if result.Metadata["rejected_by"] != "no_evidence_hard_stop" {
		t.Fatalf("rejected_by = %v", result.Metadata["rejected_by"])
	}
	if result.Metadata["outcome"] != OutcomeRefused {
		t.Fatalf("outcome = %v, want %s", result.Metadata["outcome"], OutcomeRefused)
	}
	if len(publisher.events) != 1 || publisher.events[0].Outcome != OutcomeRefused {
		t.Fatalf("completion event = %+v", publisher.events)
	}
}

func TestRunAnswersWithEvidenceAndPublishesEvent(t *testing.T) {
	publisher := &fakePublisher{}
	vector := &fakeVector{fallback: []domain.RetrievalResult{
		ragResult("ep-01", "deep work is focused, distraction-free effort"),
	}}
	graph := &fakeGraph{results: []domain.RetrievalResult{
		kgResult("deep work", "a state of high-concentration output"),
	}}
	engine := newTestEngine(engineDeps{
		classifier: relevantKnowledgeClassifier(),
		vector:     vector,
		graph:      graph,
		generator:  &fakeGenerator{answer: "Deep work is focused, distraction-free effort."},
		publisher:  publisher,
	})

	result, err := engine.Run(context.Background(), "what is deep work according to the guests?", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != "Deep work is focused, distraction-free effort." {
		t.Fatalf("answer = %q", result.Answer)
	}
	if len(result.Sources) == 0 {
		t.Fatalf("an answered run must cite its sources")
	}
	if result.Metadata["outcome"] != OutcomeAnswered {
		t.Fatalf("outcome = %v, want %s", result.Metadata["outcome"], OutcomeAnswered)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected one completion event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Outcome != OutcomeAnswered || event.Sources != len(result.Sources) {
		t.Fatalf("event = %+v", event)
	}
}

func TestRunRejectsIrrelevantQuestionBeforeRetrieval(t *testing.T) {
	vector := &fakeVector{fallback: []domain.RetrievalResult{ragResult("ep-01", "chunk")}}
	engine := newTestEngine(engineDeps{
		classifier: &fakeClassifier{relevance: domain.RelevanceVerdict{
			Relevant: false,
			Reason:   "asks about cooking, not the episode library",
		}},
		vector:    vector,
		generator: &fakeGenerator{err: errors.New("must not be called")},
	})

	result, err := engine.Run(context.Background(), "give me a recipe for lasagna", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Answer != domain.RefusalOutOfScope {
		t.Fatalf("answer = %q", result.Answer)
	}
	if result.Metadata["rejection_reason"] != "asks about cooking, not the episode library" {
		t.Fatalf("rejection_reason = %v", result.Metadata["rejection_reason"])
	}
	if result.Metadata["outcome"] != OutcomeRejected {
		t.Fatalf("outcome = %v, want %s", result.Metadata["outcome"], OutcomeRejected)
	}
	if len(vector.calls()) != 0 {
		t.Fatalf("rejected runs must not retrieve")
	}
}

func TestRunSynthesisFailureLatchesTerminalAnswer(t *testing.T) {
	engine := newTestEngine(engineDeps{
		classifier: relevantKnowledgeClassifier(),
		vector: &fakeVector{fallback: []domain.RetrievalResult{
			ragResult("ep-01", "deep work chunk"),
		}},
		graph:     &fakeGraph{},
		generator: &fakeGenerator{err: errors.New("ollama timeout")},
	})

	result, err := engine.Run(context.Background(), "what is deep work?", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The reflection gate runs after synthesis but the latch keeps it from
	// replacing the synthesis-failure answer with a refusal.
	if result.Answer != domain.AnswerSynthesisFailed {
		t.Fatalf("answer = %q", result.Answer)
	}
	if result.Metadata["outcome"] != OutcomeError {
		t.Fatalf("outcome = %v, want %s", result.Metadata["outcome"], OutcomeError)
	}
}

func TestRunSourcesTraceBackToRetrievedEvidence(t *testing.T) {
	ragHits := []domain.RetrievalResult{
		ragResult("ep-01", "deep work is focused effort"),
		ragResult("ep-02", "shallow work fragments attention"),
	}
	kgHits := []domain.RetrievalResult{
		kgResult("deep work", "a state of high-concentration output"),
	}
	engine := newTestEngine(engineDeps{
		classifier: relevantKnowledgeClassifier(),
		vector:     &fakeVector{fallback: ragHits},
		graph:      &fakeGraph{results: kgHits},
		generator:  &fakeGenerator{answer: "grounded answer"},
	})

	result, err := engine.Run(context.Background(), "what is deep work?", nil, domain.SessionMetadata{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	known := map[string]bool{}
	for _, hit := range append(append([]domain.RetrievalResult{}, ragHits...), kgHits...) {
		known[hit.FusionKey()] = true
	}
	if len(result.Sources) == 0 {
		t.Fatalf("expected cited sources")
	}
	for _, source := range result.Sources {
		if !known[source.FusionKey()] {
			t.Fatalf("source %q did not come from retrieval", source.FusionKey())
		}
	}
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	engine := newTestEngine(engineDeps{classifier: &fakeClassifier{}})

	_, err := engine.Run(context.Background(), "   ", nil, domain.SessionMetadata{})
	if err == nil {
		t.Fatalf("an empty question must be an input error")
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

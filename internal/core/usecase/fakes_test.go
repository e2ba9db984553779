package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

type fakeClassifier struct {
	mu sync.Mutex

	relevance    domain.RelevanceVerdict
	relevanceErr error

	classification    domain.QueryClassification
	classificationErr error

	followUp    domain.FollowUpVerdict
	followUpErr error

	decomposition    []string
	decompositionErr error

	expansion    []string
	expansionErr error

	grade    domain.GradeVerdict
	gradeErr error

	relevanceCalls int
	gradeCalls     int
	expandCalls    int
}

func (f *fakeClassifier) ClassifyRelevance(context.Context, string) (domain.RelevanceVerdict, error) {
	f.mu.Lock()
	f.relevanceCalls++
	f.mu.Unlock()
	return f.relevance, f.relevanceErr
}

func (f *fakeClassifier) ClassifyQuery(context.Context, string, []domain.Turn) (domain.QueryClassification, error) {
	return f.classification, f.classificationErr
}

func (f *fakeClassifier) DetectFollowUp(context.Context, string, []domain.Turn) (domain.FollowUpVerdict, error) {
	return f.followUp, f.followUpErr
}

func (f *fakeClassifier) DecomposeQuery(context.Context, string, domain.Intent, []string) ([]string, error) {
	return f.decomposition, f.decompositionErr
}

func (f *fakeClassifier) ExpandQuery(context.Context, string, int) ([]string, error) {
	f.mu.Lock()
	f.expandCalls++
	f.mu.Unlock()
	return f.expansion, f.expansionErr
}

func (f *fakeClassifier) GradeAnswer(context.Context, domain.GradeRequest) (domain.GradeVerdict, error) {
	f.mu.Lock()
	f.gradeCalls++
	f.mu.Unlock()
	return f.grade, f.gradeErr
}

type fakeVector struct {
	mu       sync.Mutex
	byQuery  map[string][]domain.RetrievalResult
	fallback []domain.RetrievalResult
	err      error
	queries  []string
}

func (f *fakeVector) Retrieve(_ context.Context, query string, _ int) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if results, ok := f.byQuery[query]; ok {
		return results, nil
	}
	return f.fallback, nil
}

func (f *fakeVector) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...)
}

type fakeGraph struct {
	mu         sync.Mutex
	results    []domain.RetrievalResult
	err        error
	entityOnly bool // when set, err applies to non-entity query types only
	queryTypes []domain.KGQueryType
}

func (f *fakeGraph) Search(_ context.Context, _ string, queryType domain.KGQueryType, _, _ int) ([]domain.RetrievalResult, error) {
	f.mu.Lock()
	f.queryTypes = append(f.queryTypes, queryType)
	f.mu.Unlock()
	if f.err != nil {
		if !f.entityOnly || queryType != domain.KGEntityCentric {
			return nil, f.err
		}
	}
	return f.results, nil
}

func (f *fakeGraph) calls() []domain.KGQueryType {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.KGQueryType{}, f.queryTypes...)
}

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if vector, ok := f.vectors[text]; ok {
		return vector, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeGenerator struct {
	answer   string
	err      error
	captured struct {
		question string
		rag      []domain.RetrievalResult
		kg       []domain.RetrievalResult
	}
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, question string, ragEvidence, kgEvidence []domain.RetrievalResult) (string, error) {
	f.captured.question = question
	f.captured.rag = ragEvidence
	f.captured.kg = kgEvidence
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.QueryCompletedEvent
}

func (f *fakePublisher) PublishQueryCompleted(_ context.Context, event domain.QueryCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func ragResult(episode, text string) domain.RetrievalResult {
	return domain.RetrievalResult{
		SourceType: domain.SourceRAG,
		EpisodeID:  episode,
		Timestamp:  "00:01:00",
		Speaker:    "host",
		Text:       text,
	}
}

func kgResult(concept, description string) domain.RetrievalResult {
	return domain.RetrievalResult{
		SourceType:  domain.SourceKG,
		Concept:     concept,
		Description: description,
	}
}

type engineDeps struct {
	classifier *fakeClassifier
	vector     *fakeVector
	graph      *fakeGraph
	embedder   *fakeEmbedder
	generator  *fakeGenerator
	publisher  *fakePublisher
}

func newTestEngine(deps engineDeps) *Engine {
	planner := NewPlanner(deps.classifier, nil, time.Second)
	reranker := NewReranker(embedderOrNil(deps.embedder), nil, 60, 0.5, 20)
	synthesizer := NewSynthesizer(deps.generator, nil, 5, 10)
	gate := NewGate(nil, nil, 0.7, time.Second)

	var events ports.EventPublisher
	if deps.publisher != nil {
		events = deps.publisher
	}
	return NewEngine(
		planner,
		deps.classifier,
		vectorOrNil(deps.vector),
		graphOrNil(deps.graph),
		reranker,
		synthesizer,
		gate,
		events,
		nil,
		nil,
		EngineConfig{},
	)
}

// Helpers returning typed nils so the engine sees a nil interface, not a
// non-nil interface wrapping a nil pointer.
func vectorOrNil(v *fakeVector) ports.VectorSearch {
	if v == nil {
		return nil
	}
	return v
}

func graphOrNil(g *fakeGraph) ports.GraphSearch {
	if g == nil {
		return nil
	}
	return g
}

func embedderOrNil(e *fakeEmbedder) ports.Embedder {
	if e == nil {
		return nil
	}
	return e
}

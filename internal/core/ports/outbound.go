package ports

import (
	"context"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// Classifier is the typed contract over the text-completion service for all
// classification-style calls. Implementations must use a deterministic
// (temperature 0) mode. Every method may fail; each call site owns a
// documented fallback and never lets the error escape its stage.
type Classifier interface {
	ClassifyRelevance(ctx context.Context, question string) (domain.RelevanceVerdict, error)
	ClassifyQuery(ctx context.Context, question string, history []domain.Turn) (domain.QueryClassification, error)
	DetectFollowUp(ctx context.Context, question string, history []domain.Turn) (domain.FollowUpVerdict, error)
	DecomposeQuery(ctx context.Context, question string, intent domain.Intent, entities []string) ([]string, error)
	ExpandQuery(ctx context.Context, question string, limit int) ([]string, error)
	GradeAnswer(ctx context.Context, req domain.GradeRequest) (domain.GradeVerdict, error)
}

// VectorSearch retrieves unstructured chunks by semantic similarity.
type VectorSearch interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error)
}

// GraphSearch runs a typed knowledge-graph query. maxHops only applies to
// multi-hop traversals and is bounded by the adapter.
type GraphSearch interface {
	Search(ctx context.Context, query string, queryType domain.KGQueryType, maxHops, limit int) ([]domain.RetrievalResult, error)
}

// Embedder builds a vector for query or candidate text. Only required for MMR.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// AnswerGenerator creates the final user-facing answer from trusted evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, ragEvidence, kgEvidence []domain.RetrievalResult) (string, error)
}

// ConversationStore persists turns and the per-session active entity. Used by
// the transport adapters; the engine itself never writes to it.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, conversationID string) error
	AppendTurn(ctx context.Context, conversationID string, turn domain.Turn) error
	ListRecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
	ActiveEntity(ctx context.Context, conversationID string) (string, error)
	SetActiveEntity(ctx context.Context, conversationID, entity string) error
}

// EventPublisher emits pipeline completion events, best effort.
type EventPublisher interface {
	PublishQueryCompleted(ctx context.Context, event domain.QueryCompletedEvent) error
}

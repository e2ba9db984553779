package ports

import (
	"context"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// QueryService is the inbound contract for answering a question against the
// episode knowledge base. The caller supplies any conversation history it
// wants considered; the engine holds no state across calls.
type QueryService interface {
	Run(ctx context.Context, question string, history []domain.Turn, session domain.SessionMetadata) (*domain.QueryResult, error)
}

package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

const historyWindow = 10

// Router exposes the query pipeline over HTTP. The conversation store is
// optional: without it the caller gets stateless single-turn behavior.
type Router struct {
	service       ports.QueryService
	conversations ports.ConversationStore
	metrics       http.Handler
	logger        *slog.Logger
}

func NewRouter(service ports.QueryService, conversations ports.ConversationStore, metricsHandler http.Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		service:       service,
		conversations: conversations,
		metrics:       metricsHandler,
		logger:        logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/query", rt.query)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Question       string            `json:"question"`
	ConversationID string            `json:"conversation_id"`
	Session        map[string]string `json:"session"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	ctx := r.Context()
	history, session := rt.loadConversation(ctx, req)

	result, err := rt.service.Run(ctx, question, history, session)
	if err != nil {
		status := http.StatusInternalServerError
		if domain.IsKind(err, domain.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	rt.persistTurns(ctx, req.ConversationID, question, result)
	writeJSON(w, http.StatusOK, result)
}

// loadConversation merges stored history and the active entity with any
// session hints supplied inline by the caller. Store failures degrade to
// stateless behavior; they never fail the request.
func (rt *Router) loadConversation(ctx context.Context, req queryRequest) ([]domain.Turn, domain.SessionMetadata) {
	session := domain.SessionMetadata{
		ActiveEntity: req.Session["active_entity"],
		Extra:        req.Session,
	}
	conversationID := strings.TrimSpace(req.ConversationID)
	if conversationID == "" || rt.conversations == nil {
		return nil, session
	}

	if err := rt.conversations.EnsureConversation(ctx, conversationID); err != nil {
		rt.logger.Warn("ensure_conversation_failed", "conversation_id", conversationID, "error", err)
		return nil, session
	}
	history, err := rt.conversations.ListRecentTurns(ctx, conversationID, historyWindow)
	if err != nil {
		rt.logger.Warn("load_history_failed", "conversation_id", conversationID, "error", err)
		history = nil
	}
	if session.ActiveEntity == "" {
		entity, err := rt.conversations.ActiveEntity(ctx, conversationID)
		if err != nil {
			rt.logger.Warn("load_active_entity_failed", "conversation_id", conversationID, "error", err)
		} else {
			session.ActiveEntity = entity
		}
	}
	return history, session
}

// persistTurns appends the exchange and refreshes the active entity from the
// answered run, best effort.
func (rt *Router) persistTurns(ctx context.Context, conversationID, question string, result *domain.QueryResult) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" || rt.conversations == nil {
		return
	}

	if err := rt.conversations.AppendTurn(ctx, conversationID, domain.Turn{Role: "user", Content: question}); err != nil {
		rt.logger.Warn("append_user_turn_failed", "conversation_id", conversationID, "error", err)
	}
	if err := rt.conversations.AppendTurn(ctx, conversationID, domain.Turn{Role: "assistant", Content: result.Answer}); err != nil {
		rt.logger.Warn("append_assistant_turn_failed", "conversation_id", conversationID, "error", err)
	}
	if entity := primaryEntity(result); entity != "" {
		if err := rt.conversations.SetActiveEntity(ctx, conversationID, entity); err != nil {
			rt.logger.Warn("set_active_entity_failed", "conversation_id", conversationID, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// primaryEntity picks the concept of the top knowledge-graph source, the best
// available signal for what the conversation is now about.
func primaryEntity(result *domain.QueryResult) string {
	for _, source := range result.Sources {
		if source.SourceType == domain.SourceKG && source.Concept != "" {
			return source.Concept
		}
	}
	return ""
}

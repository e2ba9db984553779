package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

// Server exposes the query pipeline as an MCP tool so agent hosts can ask the
// episode knowledge base directly. Single-turn: MCP callers manage their own
// conversation state.
type Server struct {
	service ports.QueryService
	logger  *slog.Logger
	mcp     *server.MCPServer
}

func New(service ports.QueryService, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: service,
		logger:  logger,
		mcp: server.NewMCPServer(
			"episode-insight",
			version,
			server.WithToolCapabilities(false),
		),
	}

	tool := mcp.NewTool("ask_knowledge_base",
		mcp.WithDescription("Answer a question from the podcast episode knowledge base. "+
			"Refuses questions the episode library cannot support with evidence."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer from episode transcripts and the knowledge graph."),
		),
		mcp.WithString("active_entity",
			mcp.Description("Optional topic the conversation is currently about, used to resolve follow-ups."),
		),
	)
	s.mcp.AddTool(tool, s.askKnowledgeBase)
	return s
}

// ServeStdio blocks serving the stdio transport until the host disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) askKnowledgeBase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	session := domain.SessionMetadata{
		ActiveEntity: req.GetString("active_entity", ""),
	}
	result, err := s.service.Run(ctx, question, nil, session)
	if err != nil {
		s.logger.Error("mcp_query_failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatToolResult(result)), nil
}

// formatToolResult renders the answer plus a compact source list, which is
// what agent hosts surface back to their model.
func formatToolResult(result *domain.QueryResult) string {
	var b strings.Builder
	b.WriteString(result.Answer)
	if len(result.Sources) == 0 {
		return b.String()
	}

	b.WriteString("\n\nSources:\n")
	for i, source := range result.Sources {
		switch source.SourceType {
		case domain.SourceKG:
			fmt.Fprintf(&b, "%d. [graph] %s", i+1, source.Concept)
			if source.Relationship != "" {
				fmt.Fprintf(&b, " (%s)", source.Relationship)
			}
		default:
			fmt.Fprintf(&b, "%d. [transcript] episode %s", i+1, source.EpisodeID)
			if source.Speaker != "" {
				fmt.Fprintf(&b, ", %s", source.Speaker)
			}
			if source.Timestamp != "" {
				fmt.Fprintf(&b, " at %s", source.Timestamp)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

package ollama

import (
	"context"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// Generator composes the final answer strictly from the evidence handed to it.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, ragEvidence, kgEvidence []domain.RetrievalResult) (string, error) {
	return g.client.generateText(ctx, buildAnswerPrompt(question, ragEvidence, kgEvidence))
}

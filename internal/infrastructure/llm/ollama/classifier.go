package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// Classifier implements every classification-style call against the generate
// endpoint in deterministic JSON mode. Parse failures surface as
// domain.ErrClassifier so the planner can apply its documented fallbacks.
type Classifier struct {
	client *Client
}

func NewClassifier(client *Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) ClassifyRelevance(ctx context.Context, question string) (domain.RelevanceVerdict, error) {
	var verdict domain.RelevanceVerdict
	if err := c.classify(ctx, buildRelevancePrompt(question), "classify_relevance", &verdict); err != nil {
		return domain.RelevanceVerdict{}, err
	}
	return verdict, nil
}

func (c *Classifier) ClassifyQuery(ctx context.Context, question string, history []domain.Turn) (domain.QueryClassification, error) {
	var raw struct {
		Complexity string   `json:"complexity"`
		Intent     string   `json:"intent"`
		Entities   []string `json:"entities"`
	}
	if err := c.classify(ctx, buildQueryClassificationPrompt(question, history), "classify_query", &raw); err != nil {
		return domain.QueryClassification{}, err
	}
	return domain.QueryClassification{
		Complexity: domain.NormalizeComplexity(raw.Complexity),
		Intent:     domain.NormalizeIntent(raw.Intent),
		Entities:   raw.Entities,
	}, nil
}

func (c *Classifier) DetectFollowUp(ctx context.Context, question string, history []domain.Turn) (domain.FollowUpVerdict, error) {
	var verdict domain.FollowUpVerdict
	if err := c.classify(ctx, buildFollowUpPrompt(question, history), "detect_follow_up", &verdict); err != nil {
		return domain.FollowUpVerdict{}, err
	}
	return verdict, nil
}

func (c *Classifier) DecomposeQuery(ctx context.Context, question string, intent domain.Intent, entities []string) ([]string, error) {
	var raw struct {
		SubQueries []string `json:"sub_queries"`
	}
	if err := c.classify(ctx, buildDecompositionPrompt(question, intent, entities), "decompose_query", &raw); err != nil {
		return nil, err
	}
	return cleanStringList(raw.SubQueries), nil
}

func (c *Classifier) ExpandQuery(ctx context.Context, question string, limit int) ([]string, error) {
	var raw struct {
		Paraphrases []string `json:"paraphrases"`
	}
	if err := c.classify(ctx, buildExpansionPrompt(question, limit), "expand_query", &raw); err != nil {
		return nil, err
	}
	out := cleanStringList(raw.Paraphrases)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Classifier) GradeAnswer(ctx context.Context, req domain.GradeRequest) (domain.GradeVerdict, error) {
	var verdict domain.GradeVerdict
	if err := c.classify(ctx, buildGradingPrompt(req), "grade_answer", &verdict); err != nil {
		return domain.GradeVerdict{}, err
	}
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return verdict, nil
}

func (c *Classifier) classify(ctx context.Context, prompt, operation string, out any) error {
	respText, err := c.client.generateJSON(ctx, prompt)
	if err != nil {
		return domain.WrapError(domain.ErrClassifier, operation, err)
	}
	if err := json.Unmarshal([]byte(extractJSONObject(respText)), out); err != nil {
		return domain.WrapError(domain.ErrClassifier, operation+" parse", err)
	}
	return nil
}

func cleanStringList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

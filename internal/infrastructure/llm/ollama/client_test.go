package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

func newTestServer(t *testing.T, response string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if capture != nil {
			*capture = payload
		}
		_, _ = w.Write([]byte(response))
	}))
}

func TestClassifyRelevanceParsesVerdict(t *testing.T) {
	var payload map[string]any
	server := newTestServer(t, `{"response":"{\"relevant\":true,\"reason\":\"asks about an episode topic\"}"}`, &payload)
	defer server.Close()

	classifier := NewClassifier(New(Options{BaseURL: server.URL, GenerateModel: "gen"}, nil))
	verdict, err := classifier.ClassifyRelevance(context.Background(), "what is deep work?")
	if err != nil {
		t.Fatalf("ClassifyRelevance() error = %v", err)
	}
	if !verdict.Relevant || verdict.Reason == "" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}

	if payload["format"] != "json" {
		t.Fatalf("classification must request json format, payload: %v", payload)
	}
	options, _ := payload["options"].(map[string]any)
	if options == nil || options["temperature"] != float64(0) {
		t.Fatalf("classification must run at temperature 0, payload: %v", payload)
	}
}

func TestClassifyQueryNormalizesLabels(t *testing.T) {
	server := newTestServer(t, `{"response":"{\"complexity\":\"HARD\",\"intent\":\"\",\"entities\":[\"deep work\"]}"}`, nil)
	defer server.Close()

	classifier := NewClassifier(New(Options{BaseURL: server.URL, GenerateModel: "gen"}, nil))
	classification, err := classifier.ClassifyQuery(context.Background(), "question", nil)
	if err != nil {
		t.Fatalf("ClassifyQuery() error = %v", err)
	}
	if classification.Complexity != domain.ComplexityModerate {
		t.Fatalf("unknown complexity must normalize to moderate, got %s", classification.Complexity)
	}
	if classification.Intent != domain.IntentKnowledgeQuery {
		t.Fatalf("empty intent must normalize to knowledge_query, got %s", classification.Intent)
	}
}

func TestClassifierParseFailureIsTypedError(t *testing.T) {
	server := newTestServer(t, `{"response":"not json at all"}`, nil)
	defer server.Close()

	classifier := NewClassifier(New(Options{BaseURL: server.URL, GenerateModel: "gen"}, nil))
	_, err := classifier.ClassifyRelevance(context.Background(), "question")
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !domain.IsKind(err, domain.ErrClassifier) {
		t.Fatalf("parse failures must carry ErrClassifier, got %v", err)
	}
}

func TestExpandQueryHonorsLimit(t *testing.T) {
	server := newTestServer(t, `{"response":"{\"paraphrases\":[\"a\",\"b\",\"c\",\"d\"]}"}`, nil)
	defer server.Close()

	classifier := NewClassifier(New(Options{BaseURL: server.URL, GenerateModel: "gen"}, nil))
	paraphrases, err := classifier.ExpandQuery(context.Background(), "question", 2)
	if err != nil {
		t.Fatalf("ExpandQuery() error = %v", err)
	}
	if len(paraphrases) != 2 {
		t.Fatalf("expected limit to cap paraphrases, got %v", paraphrases)
	}
}

func TestGenerateAnswerBuildsEvidencePrompt(t *testing.T) {
	var payload map[string]any
	server := newTestServer(t, `{"response":"grounded answer"}`, &payload)
	defer server.Close()

	generator := NewGenerator(New(Options{BaseURL: server.URL, GenerateModel: "gen"}, nil))
	answer, err := generator.GenerateAnswer(context.Background(), "what is deep work?",
		[]domain.RetrievalResult{{
			SourceType: domain.SourceRAG,
			EpisodeID:  "ep-01",
			Speaker:    "guest",
			Timestamp:  "00:12:30",
			Text:       "deep work is focused effort",
		}},
		[]domain.RetrievalResult{{
			SourceType:   domain.SourceKG,
			Concept:      "deep work",
			Relationship: "DISCUSSED_IN",
			Description:  "a state of distraction-free concentration",
		}},
	)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if answer != "grounded answer" {
		t.Fatalf("answer = %q", answer)
	}

	prompt, _ := payload["prompt"].(string)
	for _, fragment := range []string{"what is deep work?", "deep work is focused effort", "concept=deep work", "episode=ep-01"} {
		if !strings.Contains(prompt, fragment) {
			t.Fatalf("prompt missing %q:\n%s", fragment, prompt)
		}
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(Options{BaseURL: server.URL, EmbedModel: "embed"}, nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestRetryableStatusIsWrappedTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(Options{BaseURL: server.URL, EmbedModel: "embed"}, nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable statuses must wrap as temporary, got %v", err)
	}
}

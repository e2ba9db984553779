package qdrant

import (
	"context"
	"testing"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

func TestMemoryClientRanksByTokenOverlap(t *testing.T) {
	store := NewMemoryClient(
		domain.RetrievalResult{EpisodeID: "ep-01", Text: "deep work means long stretches of focused effort"},
		domain.RetrievalResult{EpisodeID: "ep-02", Text: "the guests talked about sleep and recovery"},
		domain.RetrievalResult{EpisodeID: "ep-03", Text: "focused effort compounds into mastery"},
	)

	results, err := store.Retrieve(context.Background(), "focused deep work effort", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected topK to cap results, got %d", len(results))
	}
	if results[0].EpisodeID != "ep-01" {
		t.Fatalf("best overlap must rank first, got %+v", results[0])
	}
	for _, result := range results {
		if result.SourceType != domain.SourceRAG {
			t.Fatalf("memory hits must be tagged as rag, got %s", result.SourceType)
		}
		if result.Score <= 0 {
			t.Fatalf("matched chunks must carry a positive score")
		}
	}
}

func TestMemoryClientIgnoresNonMatchingChunks(t *testing.T) {
	store := NewMemoryClient(
		domain.RetrievalResult{EpisodeID: "ep-01", Text: "unrelated cooking discussion"},
	)

	results, err := store.Retrieve(context.Background(), "quantum gravity", 5)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("non-matching chunks must be dropped, got %v", results)
	}
}

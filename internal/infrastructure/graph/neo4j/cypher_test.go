package neo4j

import (
	"strings"
	"testing"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

func TestClampHopsBounds(t *testing.T) {
	cases := []struct{ in, want int }{
		{-1, 1},
		{0, 1},
		{1, 1},
		{3, 3},
		{10, 3},
	}
	for _, c := range cases {
		if got := clampHops(c.in); got != c.want {
			t.Fatalf("clampHops(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSearchTermsDropsShortTokens(t *testing.T) {
	terms := searchTerms("What is the Role of Deep Work?")
	for _, term := range terms {
		if len(term) <= 3 {
			t.Fatalf("short token leaked: %q", term)
		}
		if term != strings.ToLower(term) {
			t.Fatalf("terms must be lowercased: %q", term)
		}
	}
	found := false
	for _, term := range terms {
		if term == "deep" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected content token, got %v", terms)
	}
}

func TestBuildQueryFormatsHopBound(t *testing.T) {
	query := buildQuery(domain.KGMultiHop, 2)
	if !strings.Contains(query, "*1..2") {
		t.Fatalf("hop bound missing from traversal:\n%s", query)
	}

	query = buildQuery(domain.KGMultiHop, 99)
	if !strings.Contains(query, "*1..3") {
		t.Fatalf("hop bound must be clamped:\n%s", query)
	}
}

func TestBuildQueryUnknownTypeFallsBackToEntitySearch(t *testing.T) {
	query := buildQuery(domain.KGQueryType("bogus"), 1)
	if !strings.Contains(query, "MATCH (c:Concept)") {
		t.Fatalf("unknown query type must use the entity query:\n%s", query)
	}
	if strings.Contains(query, "RELATES_TO*") {
		t.Fatalf("entity query must not traverse:\n%s", query)
	}
}

func TestBuildQueryCrossEpisodeRequiresMultipleEpisodes(t *testing.T) {
	query := buildQuery(domain.KGCrossEpisode, 1)
	if !strings.Contains(query, "size(episodes) > 1") {
		t.Fatalf("cross-episode query must filter single-episode concepts:\n%s", query)
	}
}

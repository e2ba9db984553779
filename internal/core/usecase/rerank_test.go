package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

func newTestReranker(embedder *fakeEmbedder, lambda float64, window int) *Reranker {
	if embedder == nil {
		return NewReranker(nil, nil, 60, lambda, window)
	}
	return NewReranker(embedder, nil, 60, lambda, window)
}

func TestRRFAccumulatesRanksAcrossLists(t *testing.T) {
	shared := ragResult("ep-01", "attention is a trainable skill")
	listA := []domain.RetrievalResult{
		shared,
		ragResult("ep-02", "sleep regulates attention"),
	}
	listB := []domain.RetrievalResult{
		ragResult("ep-03", "meditation changes the brain"),
		shared,
	}

	reranker := newTestReranker(nil, 0.5, 20)
	fused := reranker.Rerank(context.Background(), "attention", listA, listB, FusionRRF)

	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	if fused[0].FusionKey() != shared.FusionKey() {
		t.Fatalf("shared fact must rank first, got %q", fused[0].Text)
	}
	// Sum the reciprocal ranks step by step like the fusion loop does;
	// a single constant expression rounds differently in the last bit.
	want := 1.0 / 61
	want += 1.0 / 62
	if diff := fused[0].Score - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("shared fact score = %v, want %v", fused[0].Score, want)
	}
	if fused[1].Score != 1.0/61 || fused[2].Score != 1.0/62 {
		t.Fatalf("single-list scores = %v, %v", fused[1].Score, fused[2].Score)
	}
}

func TestRRFSingleOccurrenceTieBreaksDeterministically(t *testing.T) {
	ragOnly := []domain.RetrievalResult{ragResult("ep-01", "first chunk")}
	kgOnly := []domain.RetrievalResult{kgResult("focus", "sustained attention on one task")}

	reranker := newTestReranker(nil, 0.5, 20)
	first := reranker.Rerank(context.Background(), "focus", ragOnly, kgOnly, FusionRRF)
	second := reranker.Rerank(context.Background(), "focus", ragOnly, kgOnly, FusionRRF)

	if len(first) != 2 {
		t.Fatalf("expected both results, got %d", len(first))
	}
	for i, result := range first {
		if result.Score != 1.0/61 {
			t.Fatalf("rank-1 score = %v, want %v", result.Score, 1.0/61)
		}
		if result.FusionKey() != second[i].FusionKey() {
			t.Fatalf("ordering is not deterministic at position %d", i)
		}
	}
	if !(first[0].FusionKey() < first[1].FusionKey()) {
		t.Fatalf("equal scores must order by fusion key, got %q then %q",
			first[0].FusionKey(), first[1].FusionKey())
	}
}

func TestRRFExtraOccurrenceNeverLowersScore(t *testing.T) {
	item := ragResult("ep-01", "habits compound over time")
	other := ragResult("ep-02", "identity drives behaviour")

	reranker := newTestReranker(nil, 0.5, 20)
	baseline := reranker.fuseRRF([]domain.RetrievalResult{item, other}, nil)
	boosted := reranker.fuseRRF([]domain.RetrievalResult{item, other}, []domain.RetrievalResult{item})

	baseScore, boostScore := 0.0, 0.0
	for _, r := range baseline {
		if r.FusionKey() == item.FusionKey() {
			baseScore = r.Score
		}
	}
	for _, r := range boosted {
		if r.FusionKey() == item.FusionKey() {
			boostScore = r.Score
		}
	}
	if boostScore <= baseScore {
		t.Fatalf("extra occurrence must raise the score: %v vs %v", boostScore, baseScore)
	}
}

func TestRRFMergesProvenanceOfDuplicates(t *testing.T) {
	bare := domain.RetrievalResult{
		SourceType: domain.SourceRAG,
		EpisodeID:  "ep-01",
		Timestamp:  "00:05:00",
		Text:       "deep work needs long blocks",
	}
	rich := bare
	rich.Speaker = "guest"
	rich.SourcePath = "transcripts/ep-01.txt"

	reranker := newTestReranker(nil, 0.5, 20)
	fused := reranker.fuseRRF([]domain.RetrievalResult{bare}, []domain.RetrievalResult{rich})

	if len(fused) != 1 {
		t.Fatalf("expected one fused result, got %d", len(fused))
	}
	if fused[0].Speaker != "guest" || fused[0].SourcePath != "transcripts/ep-01.txt" {
		t.Fatalf("duplicate merge must keep the richer provenance, got %+v", fused[0])
	}
}

func TestDedupCollapsesNearIdenticalText(t *testing.T) {
	first := ragResult("ep-01", "The Pomodoro technique splits work into intervals")
	duplicate := ragResult("ep-02", "the  pomodoro technique splits work into intervals")
	distinct := kgResult("pomodoro", "a time management method using 25 minute intervals")

	reranker := newTestReranker(nil, 0.5, 20)
	fused := reranker.Rerank(context.Background(), "pomodoro",
		[]domain.RetrievalResult{first, duplicate},
		[]domain.RetrievalResult{distinct},
		FusionRRF,
	)

	if len(fused) != 2 {
		t.Fatalf("expected dedup to drop the near-identical chunk, got %d results", len(fused))
	}
	for _, result := range fused {
		if result.EpisodeID == "ep-02" {
			t.Fatalf("the later duplicate must be the one dropped")
		}
	}
}

func mmrCandidates() ([]domain.RetrievalResult, *fakeEmbedder) {
	candidates := []domain.RetrievalResult{
		ragResult("ep-01", "alpha"),
		ragResult("ep-02", "beta"),
		ragResult("ep-03", "gamma"),
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"query": {1, 0, 0},
		"alpha": {1, 0, 0},
		"beta":  {0, 1, 0},
		"gamma": {0.8, 0.6, 0},
	}}
	return candidates, embedder
}

func TestMMRPureRelevanceAtLambdaOne(t *testing.T) {
	candidates, embedder := mmrCandidates()
	reranker := newTestReranker(embedder, 1.0, 20)

	selected, ok := reranker.selectMMR(context.Background(), "query", candidates)
	if !ok {
		t.Fatalf("selection must succeed with a working embedder")
	}
	got := []string{selected[0].Text, selected[1].Text, selected[2].Text}
	want := []string{"alpha", "gamma", "beta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lambda=1 must follow relevance order, got %v want %v", got, want)
		}
	}
}

func TestMMRPureDiversityAtLambdaZero(t *testing.T) {
	candidates, embedder := mmrCandidates()
	reranker := newTestReranker(embedder, 0, 20)

	selected, ok := reranker.selectMMR(context.Background(), "query", candidates)
	if !ok {
		t.Fatalf("selection must succeed with a working embedder")
	}
	// First pick is always the most relevant; lambda only shapes the rest.
	got := []string{selected[0].Text, selected[1].Text, selected[2].Text}
	want := []string{"alpha", "beta", "gamma"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lambda=0 must pick the most dissimilar next, got %v want %v", got, want)
		}
	}
}

func TestMMRFallsBackToRRFWithoutEmbedder(t *testing.T) {
	listA := []domain.RetrievalResult{
		ragResult("ep-01", "alpha"),
		ragResult("ep-02", "beta"),
	}
	listB := []domain.RetrievalResult{ragResult("ep-03", "gamma")}

	reranker := newTestReranker(nil, 0.5, 20)
	mmr := reranker.Rerank(context.Background(), "query", listA, listB, FusionMMR)
	rrf := reranker.Rerank(context.Background(), "query", listA, listB, FusionRRF)

	if len(mmr) != len(rrf) {
		t.Fatalf("fallback must match rrf length: %d vs %d", len(mmr), len(rrf))
	}
	for i := range rrf {
		if mmr[i].FusionKey() != rrf[i].FusionKey() || mmr[i].Score != rrf[i].Score {
			t.Fatalf("fallback must reproduce rrf at %d: %+v vs %+v", i, mmr[i], rrf[i])
		}
	}
}

func TestHybridReordersOnlyTheWindowHead(t *testing.T) {
	// Three items with distinct rrf ranks; window of 2 leaves the tail fixed.
	shared := ragResult("ep-01", "alpha")
	listA := []domain.RetrievalResult{shared, ragResult("ep-02", "beta")}
	listB := []domain.RetrievalResult{shared, ragResult("ep-03", "gamma")}

	_, embedder := mmrCandidates()
	reranker := newTestReranker(embedder, 0.5, 2)

	fused := reranker.Rerank(context.Background(), "query", listA, listB, FusionHybrid)
	if len(fused) != 3 {
		t.Fatalf("expected 3 results, got %d", len(fused))
	}
	tailKeyA := ragResult("ep-02", "beta").FusionKey()
	tailKeyB := ragResult("ep-03", "gamma").FusionKey()
	lastKey := fused[2].FusionKey()
	if lastKey != tailKeyA && lastKey != tailKeyB {
		t.Fatalf("an item outside the window moved: %q", lastKey)
	}
	if fused[2].Score != 1.0/62 {
		t.Fatalf("tail must keep its rrf score, got %v", fused[2].Score)
	}
}

func TestHybridFallsBackToRRFOnEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: context.DeadlineExceeded}
	listA := []domain.RetrievalResult{ragResult("ep-01", "alpha"), ragResult("ep-02", "beta")}

	reranker := newTestReranker(embedder, 0.5, 20)
	fused := reranker.Rerank(context.Background(), "query", listA, nil, FusionHybrid)

	if len(fused) != 2 {
		t.Fatalf("expected rrf fallback results, got %d", len(fused))
	}
	if fused[0].Score != 1.0/61 || fused[1].Score != 1.0/62 {
		t.Fatalf("fallback scores = %v, %v", fused[0].Score, fused[1].Score)
	}
}

func TestNormalizeFusionStrategy(t *testing.T) {
	if NormalizeFusionStrategy("rrf") != FusionRRF {
		t.Fatalf("rrf must normalize to itself")
	}
	if NormalizeFusionStrategy("unknown") != FusionHybrid {
		t.Fatalf("unknown strategies must default to hybrid")
	}
	if NormalizeFusionStrategy("") != FusionHybrid {
		t.Fatalf("empty strategy must default to hybrid")
	}
}

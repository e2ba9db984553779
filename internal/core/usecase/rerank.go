package usecase

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

type FusionStrategy string

const (
	FusionRRF    FusionStrategy = "rrf"
	FusionMMR    FusionStrategy = "mmr"
	FusionHybrid FusionStrategy = "rrf_mmr"
)

func NormalizeFusionStrategy(raw string) FusionStrategy {
	switch FusionStrategy(raw) {
	case FusionRRF, FusionMMR, FusionHybrid:
		return FusionStrategy(raw)
	default:
		return FusionHybrid
	}
}

// Reranker fuses the RAG and KG result lists. RRF accumulates reciprocal
// ranks across lists under the strict fusion key; MMR trades relevance
// against redundancy using embeddings. The hybrid default runs RRF over
// everything and MMR only over the head, bounded for cost.
type Reranker struct {
	embedder  ports.Embedder
	logger    *slog.Logger
	rrfK      int
	lambda    float64
	mmrWindow int
}

func NewReranker(embedder ports.Embedder, logger *slog.Logger, rrfK int, lambda float64, mmrWindow int) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	if rrfK <= 0 {
		rrfK = 60
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	if mmrWindow <= 0 {
		mmrWindow = 20
	}
	return &Reranker{
		embedder:  embedder,
		logger:    logger,
		rrfK:      rrfK,
		lambda:    lambda,
		mmrWindow: mmrWindow,
	}
}

func (r *Reranker) Rerank(
	ctx context.Context,
	question string,
	ragResults, kgResults []domain.RetrievalResult,
	strategy FusionStrategy,
) []domain.RetrievalResult {
	switch strategy {
	case FusionRRF:
		return dedupByTextKey(r.fuseRRF(ragResults, kgResults))
	case FusionMMR:
		candidates := dedupByTextKey(append(append([]domain.RetrievalResult{}, ragResults...), kgResults...))
		selected, ok := r.selectMMR(ctx, question, candidates)
		if !ok {
			// No embedder or embedding failure: documented fallback to RRF.
			return dedupByTextKey(r.fuseRRF(ragResults, kgResults))
		}
		return dedupByTextKey(selected)
	default:
		fused := dedupByTextKey(r.fuseRRF(ragResults, kgResults))
		if len(fused) <= 1 {
			return fused
		}
		window := r.mmrWindow
		if window > len(fused) {
			window = len(fused)
		}
		head := make([]domain.RetrievalResult, window)
		copy(head, fused[:window])
		reordered, ok := r.selectMMR(ctx, question, head)
		if !ok {
			return fused
		}
		out := make([]domain.RetrievalResult, 0, len(fused))
		out = append(out, reordered...)
		out = append(out, fused[window:]...)
		return dedupByTextKey(out)
	}
}

type fusedEvidence struct {
	result domain.RetrievalResult
	score  float64
}

// fuseRRF assigns each item the sum of 1/(k+rank) across every list it
// appears in, rank being its 1-based position in that list. The same fact in
// both lists shares a fusion key and accumulates score from both.
func (r *Reranker) fuseRRF(ragResults, kgResults []domain.RetrievalResult) []domain.RetrievalResult {
	acc := make(map[string]fusedEvidence, len(ragResults)+len(kgResults))
	order := make([]string, 0, len(ragResults)+len(kgResults))

	addList := func(results []domain.RetrievalResult) {
		for rank, result := range results {
			key := result.FusionKey()
			candidate, seen := acc[key]
			if !seen {
				order = append(order, key)
				candidate.result = result
			} else {
				candidate.result = preferRicherEvidence(candidate.result, result)
			}
			candidate.score += 1.0 / float64(r.rrfK+rank+1)
			acc[key] = candidate
		}
	}
	addList(ragResults)
	addList(kgResults)

	out := make([]domain.RetrievalResult, 0, len(acc))
	for _, key := range order {
		candidate := acc[key]
		result := candidate.result
		result.Score = candidate.score
		out = append(out, result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].FusionKey() < out[j].FusionKey()
	})
	return out
}

// preferRicherEvidence merges duplicate hits, keeping the variant with more
// provenance so the final source display loses nothing.
func preferRicherEvidence(current, candidate domain.RetrievalResult) domain.RetrievalResult {
	if current.Text == "" && candidate.Text != "" {
		current.Text = candidate.Text
	}
	if current.Description == "" && candidate.Description != "" {
		current.Description = candidate.Description
	}
	if current.Speaker == "" && candidate.Speaker != "" {
		current.Speaker = candidate.Speaker
	}
	if current.EpisodeID == "" && candidate.EpisodeID != "" {
		current.EpisodeID = candidate.EpisodeID
	}
	if current.SourcePath == "" && candidate.SourcePath != "" {
		current.SourcePath = candidate.SourcePath
	}
	if current.Relationship == "" && candidate.Relationship != "" {
		current.Relationship = candidate.Relationship
	}
	return current
}

// selectMMR greedily picks candidates maximizing
// lambda*relevance - (1-lambda)*max similarity to already-picked items.
// The first pick is always the most query-relevant candidate. Returns false
// when embeddings are unavailable.
func (r *Reranker) selectMMR(ctx context.Context, question string, candidates []domain.RetrievalResult) ([]domain.RetrievalResult, bool) {
	if len(candidates) <= 1 {
		return candidates, true
	}
	if r.embedder == nil {
		return nil, false
	}

	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil || len(queryVector) == 0 {
		r.logger.Warn("mmr_query_embedding_failed", "error", err)
		return nil, false
	}

	vectors := make([][]float32, len(candidates))
	for i, candidate := range candidates {
		vector, err := r.embedder.EmbedQuery(ctx, candidate.EvidenceText())
		if err != nil || len(vector) == 0 {
			r.logger.Warn("mmr_candidate_embedding_failed", "error", err)
			return nil, false
		}
		vectors[i] = vector
	}

	relevance := make([]float64, len(candidates))
	for i := range candidates {
		relevance[i] = cosineSimilarity(queryVector, vectors[i])
	}

	selected := make([]int, 0, len(candidates))
	remaining := make(map[int]struct{}, len(candidates))
	for i := range candidates {
		remaining[i] = struct{}{}
	}

	pickBest := func(score func(int) float64) int {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if _, ok := remaining[i]; !ok {
				continue
			}
			s := score(i)
			if s > bestScore || (s == bestScore && (best == -1 || i < best)) {
				best = i
				bestScore = s
			}
		}
		return best
	}

	first := pickBest(func(i int) float64 { return relevance[i] })
	selected = append(selected, first)
	delete(remaining, first)

	for len(remaining) > 0 {
		next := pickBest(func(i int) float64 {
			maxSim := math.Inf(-1)
			for _, s := range selected {
				if sim := cosineSimilarity(vectors[i], vectors[s]); sim > maxSim {
					maxSim = sim
				}
			}
			return r.lambda*relevance[i] - (1-r.lambda)*maxSim
		})
		selected = append(selected, next)
		delete(remaining, next)
	}

	out := make([]domain.RetrievalResult, 0, len(selected))
	for _, i := range selected {
		out = append(out, candidates[i])
	}
	return out, true
}

// dedupByTextKey drops later entries sharing a coarse normalized-text key,
// keeping the first (higher-ranked) occurrence. Applied at every stage
// transition of the reranker.
func dedupByTextKey(results []domain.RetrievalResult) []domain.RetrievalResult {
	out := make([]domain.RetrievalResult, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, result := range results {
		key := result.DedupKey()
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out = append(out, result)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

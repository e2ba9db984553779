package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// RetrievalConfig bounds the fan-out across sub-queries and the external
// calls each worker makes.
type RetrievalConfig struct {
	Workers           int
	TopK              int
	KGLimit           int
	KGMaxHops         int
	CallTimeout       time.Duration
	ExpansionQueries  int
	ExpansionPerQuery int
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.KGLimit <= 0 {
		c.KGLimit = 10
	}
	if c.KGMaxHops <= 0 || c.KGMaxHops > 3 {
		c.KGMaxHops = 3
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.ExpansionQueries <= 0 {
		c.ExpansionQueries = 2
	}
	if c.ExpansionPerQuery <= 0 {
		c.ExpansionPerQuery = 3
	}
	return c
}

// retrieveRAG runs vector search for every sub-query (plus expansions)
// concurrently with a bounded worker count. Adapter failures degrade to an
// empty list; they are never surfaced as stage errors.
func (e *Engine) retrieveRAG(ctx context.Context, state *domain.RunState) {
	strategy := state.Plan.Strategy
	if !state.ShouldContinue || !strategy.UseRAG || strategy.DirectAnswer || e.vector == nil {
		return
	}
	state.Metadata["rag_attempted"] = true

	queries := append([]string{}, state.Plan.SubQueries...)
	if strategy.RAGExpansion {
		queries = append(queries, e.expandSubQueries(ctx, state.Plan.SubQueries)...)
	}

	buckets := make([][]domain.RetrievalResult, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.retrieval.Workers)
	for i, query := range queries {
		group.Go(func() error {
			callCtx, cancel := context.WithTimeout(groupCtx, e.retrieval.CallTimeout)
			defer cancel()
			results, err := e.vector.Retrieve(callCtx, query, e.retrieval.TopK)
			if err != nil {
				e.logger.Warn("rag_retrieval_failed", "run_id", state.RunID, "query", query, "error", err)
				return nil
			}
			buckets[i] = results
			return nil
		})
	}
	_ = group.Wait()

	// Concatenated in sub-query order; dedup is the reranker's job.
	for _, bucket := range buckets {
		state.RAGResults = append(state.RAGResults, bucket...)
	}
	state.Metadata["rag_queries"] = len(queries)
}

// retrieveKG resolves the planned graph query type per sub-query. A failed
// traversal falls back to a plain entity search before giving up.
func (e *Engine) retrieveKG(ctx context.Context, state *domain.RunState) {
	strategy := state.Plan.Strategy
	if !state.ShouldContinue || !strategy.UseKG || strategy.DirectAnswer || e.graph == nil {
		return
	}
	state.Metadata["kg_attempted"] = true

	maxHops := 1
	if strategy.KGQueryType == domain.KGMultiHop {
		maxHops = e.retrieval.KGMaxHops
	}

	buckets := make([][]domain.RetrievalResult, len(state.Plan.SubQueries))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.retrieval.Workers)
	for i, query := range state.Plan.SubQueries {
		group.Go(func() error {
			buckets[i] = e.searchGraph(groupCtx, state.RunID, query, strategy.KGQueryType, maxHops)
			return nil
		})
	}
	_ = group.Wait()

	for _, bucket := range buckets {
		state.KGResults = append(state.KGResults, bucket...)
	}
}

func (e *Engine) searchGraph(ctx context.Context, runID, query string, queryType domain.KGQueryType, maxHops int) []domain.RetrievalResult {
	callCtx, cancel := context.WithTimeout(ctx, e.retrieval.CallTimeout)
	defer cancel()

	results, err := e.graph.Search(callCtx, query, queryType, maxHops, e.retrieval.KGLimit)
	if err == nil {
		return results
	}
	e.logger.Warn("kg_retrieval_failed", "run_id", runID, "query_type", queryType, "error", err)
	if queryType == domain.KGEntityCentric {
		return nil
	}

	fallbackCtx, cancelFallback := context.WithTimeout(ctx, e.retrieval.CallTimeout)
	defer cancelFallback()
	results, err = e.graph.Search(fallbackCtx, query, domain.KGEntityCentric, 1, e.retrieval.KGLimit)
	if err != nil {
		e.logger.Warn("kg_fallback_failed", "run_id", runID, "error", err)
		return nil
	}
	return results
}

// expandSubQueries paraphrases up to the first ExpansionQueries sub-queries
// via the classifier, with a template fallback when expansion fails.
func (e *Engine) expandSubQueries(ctx context.Context, subQueries []string) []string {
	limit := e.retrieval.ExpansionQueries
	if limit > len(subQueries) {
		limit = len(subQueries)
	}

	var expansions []string
	for _, query := range subQueries[:limit] {
		paraphrases := e.paraphrase(ctx, query)
		if len(paraphrases) == 0 {
			paraphrases = []string{fmt.Sprintf("tell me more about %s", strings.TrimSuffix(strings.TrimSpace(query), "?"))}
		}
		expansions = append(expansions, paraphrases...)
	}
	return expansions
}

func (e *Engine) paraphrase(ctx context.Context, query string) []string {
	if e.classifier == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, e.retrieval.CallTimeout)
	defer cancel()

	paraphrases, err := e.classifier.ExpandQuery(callCtx, query, e.retrieval.ExpansionPerQuery)
	if err != nil {
		e.logger.Warn("query_expansion_failed", "query", query, "error", err)
		return nil
	}

	out := make([]string, 0, e.retrieval.ExpansionPerQuery)
	for _, p := range paraphrases {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, query) {
			continue
		}
		out = append(out, p)
		if len(out) == e.retrieval.ExpansionPerQuery {
			break
		}
	}
	return out
}

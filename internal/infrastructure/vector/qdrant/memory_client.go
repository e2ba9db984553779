package qdrant

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// MemoryClient is an in-process stand-in for the Qdrant adapter, used in dev
// mode and tests when no vector store is running. Scoring is token overlap,
// which is enough to make small fixture corpora behave sensibly.
type MemoryClient struct {
	mu     sync.RWMutex
	chunks []domain.RetrievalResult
}

func NewMemoryClient(chunks ...domain.RetrievalResult) *MemoryClient {
	store := &MemoryClient{}
	store.Add(chunks...)
	return store
}

func (c *MemoryClient) Add(chunks ...domain.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chunk := range chunks {
		chunk.SourceType = domain.SourceRAG
		c.chunks = append(c.chunks, chunk)
	}
}

func (c *MemoryClient) Retrieve(_ context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	if topK <= 0 {
		topK = 5
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	c.mu.RLock()
	scored := make([]domain.RetrievalResult, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		score := overlap(queryTokens, tokenize(chunk.Text))
		if score == 0 {
			continue
		}
		chunk.Score = score
		scored = append(scored, chunk)
	}
	c.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func tokenize(text string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,!?;:'\"()")
		if len(field) > 2 {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

func overlap(query, text map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if _, ok := text[token]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

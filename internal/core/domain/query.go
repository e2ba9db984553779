package domain

import (
	"strings"
	"time"
)

// Turn is one prior conversation message supplied by the caller.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionMetadata carries per-session hints across turns. The engine never
// persists it; the caller owns its lifecycle.
type SessionMetadata struct {
	ActiveEntity string            `json:"active_entity,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Query is the immutable input to a single pipeline run.
type Query struct {
	Text    string
	History []Turn
	Session SessionMetadata
}

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

func NormalizeComplexity(raw string) Complexity {
	normalized := Complexity(strings.ToLower(strings.TrimSpace(raw)))
	switch normalized {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return normalized
	default:
		return ComplexityModerate
	}
}

type KGQueryType string

const (
	KGEntityCentric KGQueryType = "entity_centric"
	KGMultiHop      KGQueryType = "multi_hop"
	KGCrossEpisode  KGQueryType = "cross_episode"
)

// RetrievalStrategy tells the retrieval stages what to run and how.
type RetrievalStrategy struct {
	UseRAG       bool        `json:"use_rag"`
	UseKG        bool        `json:"use_kg"`
	KGQueryType  KGQueryType `json:"kg_query_type"`
	RAGExpansion bool        `json:"rag_expansion"`
	Iterative    bool        `json:"iterative"`
	DirectAnswer bool        `json:"direct_answer"`
}

// QueryPlan is produced once per query by the planner and immutable after.
type QueryPlan struct {
	IsFollowUp         bool              `json:"is_follow_up"`
	IsRelevant         bool              `json:"is_relevant"`
	RejectionReason    string            `json:"rejection_reason,omitempty"`
	Complexity         Complexity        `json:"complexity"`
	Intent             Intent            `json:"intent"`
	NeedsDecomposition bool              `json:"needs_decomposition"`
	SubQueries         []string          `json:"sub_queries"`
	Entities           []string          `json:"entities"`
	Strategy           RetrievalStrategy `json:"strategy"`
}

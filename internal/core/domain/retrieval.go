package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
)

type SourceType string

const (
	SourceRAG SourceType = "rag"
	SourceKG  SourceType = "kg"
)

// RetrievalResult is one piece of evidence from either store. It carries
// enough provenance to be shown as a source alongside the answer.
type RetrievalResult struct {
	SourceType   SourceType `json:"source_type"`
	Text         string     `json:"text"`
	Concept      string     `json:"concept,omitempty"`
	Description  string     `json:"description,omitempty"`
	Relationship string     `json:"relationship,omitempty"`
	Speaker      string     `json:"speaker,omitempty"`
	EpisodeID    string     `json:"episode_id,omitempty"`
	Timestamp    string     `json:"timestamp,omitempty"`
	SourcePath   string     `json:"source_path,omitempty"`
	Score        float64    `json:"score"`
}

// FusionKey identifies the underlying fact for rank fusion. The same fact
// appearing in both ranked lists must map to the same key so its reciprocal
// ranks accumulate.
func (r RetrievalResult) FusionKey() string {
	if r.SourceType == SourceKG {
		return fmt.Sprintf("kg:%s:%s", strings.ToLower(strings.TrimSpace(r.Concept)), textFingerprint(r.Description))
	}
	return fmt.Sprintf("rag:%s:%s:%s", r.EpisodeID, r.Timestamp, textFingerprint(r.Text))
}

// DedupKey is deliberately coarser than FusionKey: it collapses near-identical
// text that the fusion key keeps apart, so duplicates never leak into the
// final answer.
func (r RetrievalResult) DedupKey() string {
	text := r.Text
	if text == "" {
		text = r.Description
	}
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if len(normalized) > 120 {
		normalized = normalized[:120]
	}
	return normalized
}

// EvidenceText is the text handed to synthesis: chunk text for RAG hits,
// concept description for KG hits.
func (r RetrievalResult) EvidenceText() string {
	if r.SourceType == SourceKG && r.Text == "" {
		return r.Description
	}
	return r.Text
}

func textFingerprint(text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(strings.Fields(strings.ToLower(text)), " ")))
	return fmt.Sprintf("%016x", h.Sum64())
}

package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

const maxHistoryTurns = 6

func buildRelevancePrompt(question string) string {
	return `You decide whether a question concerns a library of podcast episode transcripts:
topics discussed, guests and hosts, concepts explained, opinions voiced, episode content.
Math, coding, weather, market prices, news and anything else not answerable from
episode transcripts is NOT relevant. A general-knowledge question about a topic the
episodes happen to cover, without asking what was said on the show, is NOT relevant.
Return strict JSON with keys: relevant (boolean), reason (string). No markdown, no extra keys.

Question:
` + question
}

func buildQueryClassificationPrompt(question string, history []domain.Turn) string {
	return fmt.Sprintf(`You classify a question about a podcast episode library.
Return strict JSON with keys:
complexity (one of "simple", "moderate", "complex"),
intent (one of "definition", "comparison", "causal", "multi_entity", "cross_episode", "knowledge_query", "conversational"),
entities (array of the topic/person names mentioned).
No markdown, no extra keys.
%s
Question:
%s`, formatHistory(history), question)
}

func buildFollowUpPrompt(question string, history []domain.Turn) string {
	return fmt.Sprintf(`You decide whether the new question continues the previous conversation
(pronouns or elliptical references pointing at an earlier topic).
Return strict JSON with keys: is_follow_up (boolean), entity (string, the topic being continued, or "").
No markdown, no extra keys.
%s
New question:
%s`, formatHistory(history), question)
}

func buildDecompositionPrompt(question string, intent domain.Intent, entities []string) string {
	return fmt.Sprintf(`You split a compound question about a podcast episode library into
independent retrieval sub-queries. Return between 2 and 4 short sub-queries.
Return strict JSON with key: sub_queries (array of strings). No markdown, no extra keys.

Intent: %s
Entities: %s
Question:
%s`, intent, strings.Join(entities, ", "), question)
}

func buildExpansionPrompt(question string, limit int) string {
	if limit <= 0 {
		limit = 3
	}
	return fmt.Sprintf(`You paraphrase a search query about podcast episode content to widen recall.
Produce up to %d alternative phrasings with different wording but identical meaning.
Return strict JSON with key: paraphrases (array of strings). No markdown, no extra keys.

Query:
%s`, limit, question)
}

func buildGradingPrompt(req domain.GradeRequest) string {
	return fmt.Sprintf(`You audit an answer produced from podcast episode evidence.
Reject the answer when it asserts facts that the evidence volume cannot support,
or when it answers a question the evidence does not address.
Return strict JSON with keys: reject (boolean), confidence (number 0 to 1), reason (string).
No markdown, no extra keys.

Question:
%s

Answer:
%s

Evidence: %d transcript chunks, %d knowledge graph facts.`,
		req.Question, req.Answer, req.RAGCount, req.KGCount)
}

func buildAnswerPrompt(question string, ragEvidence, kgEvidence []domain.RetrievalResult) string {
	var evidence strings.Builder
	idx := 0
	for _, chunk := range ragEvidence {
		idx++
		fmt.Fprintf(&evidence, "[%d] episode=%s speaker=%s ts=%s\n%s\n\n",
			idx, chunk.EpisodeID, chunk.Speaker, chunk.Timestamp, chunk.Text)
	}
	for _, fact := range kgEvidence {
		idx++
		fmt.Fprintf(&evidence, "[%d] concept=%s%s\n%s\n\n",
			idx, fact.Concept, formatRelationship(fact.Relationship), fact.EvidenceText())
	}

	return fmt.Sprintf(`Answer the question using ONLY the evidence below from podcast episode
transcripts and the episode knowledge graph. Cite evidence numbers like [1].
If the evidence does not contain the answer, say so directly instead of guessing.

Question:
%s

Evidence:
%s`, question, evidence.String())
}

func formatRelationship(relationship string) string {
	if relationship == "" {
		return ""
	}
	return " relation=" + relationship
}

func formatHistory(history []domain.Turn) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	var b strings.Builder
	b.WriteString("\nConversation so far:\n")
	for _, turn := range history {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}

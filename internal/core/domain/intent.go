package domain

import "strings"

// Intent labels what kind of response a query needs. The classifier vocabulary
// is open; labels outside the known set behave like knowledge_query.
type Intent string

const (
	IntentGreeting       Intent = "greeting"
	IntentConversational Intent = "conversational"
	IntentDefinition     Intent = "definition"
	IntentComparison     Intent = "comparison"
	IntentCausal         Intent = "causal"
	IntentMultiEntity    Intent = "multi_entity"
	IntentCrossEpisode   Intent = "cross_episode"
	IntentKnowledgeQuery Intent = "knowledge_query"
	IntentOutOfScope     Intent = "out_of_scope"
	IntentSystemInfo     Intent = "system_info"
	IntentNonQuery       Intent = "non_query"
	IntentClarification  Intent = "clarification"
)

// noEvidenceIntents is the only allow-list of intents that may be answered
// without retrieved evidence. Every stage consults this table; no stage keeps
// its own copy.
var noEvidenceIntents = map[Intent]struct{}{
	IntentGreeting:       {},
	IntentConversational: {},
	IntentSystemInfo:     {},
	IntentNonQuery:       {},
	IntentClarification:  {},
}

func (i Intent) RequiresEvidence() bool {
	_, ok := noEvidenceIntents[i]
	return !ok
}

func NormalizeIntent(raw string) Intent {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return IntentKnowledgeQuery
	}
	return Intent(label)
}

// greetingPhrases are literal greeting/closing inputs handled without
// retrieval. Both the planner fast path and the reflection gate verify
// against this list.
var greetingPhrases = map[string]struct{}{
	"hi":             {},
	"hello":          {},
	"hey":            {},
	"hi there":       {},
	"hello there":    {},
	"good morning":   {},
	"good afternoon": {},
	"good evening":   {},
	"how are you":    {},
	"thanks":         {},
	"thank you":      {},
	"ok":             {},
	"okay":           {},
	"bye":            {},
	"goodbye":        {},
	"see you":        {},
	"good night":     {},
}

func IsGreetingPhrase(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!?. ")
	_, ok := greetingPhrases[normalized]
	return ok
}

// DirectReply answers a query planned without retrieval. Literal greetings
// get the matching greeting reply; other conversational turns get a steer
// back to the episode library instead of a misplaced "Hello".
func DirectReply(text string) string {
	if IsGreetingPhrase(text) {
		return GreetingReply(text)
	}
	return "Happy to chat, but I'm most useful answering questions about the episode library. Ask about a topic, guest, or episode and I'll look it up."
}

// GreetingReply returns the direct answer for a literal greeting/closing
// phrase. Deterministic on purpose: greetings never reach the LLM.
func GreetingReply(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, "!?. ")
	switch normalized {
	case "thanks", "thank you":
		return "You're welcome! Ask me anything else about the episodes."
	case "bye", "goodbye", "see you", "good night":
		return "Goodbye! Come back whenever you have more questions about the episodes."
	case "how are you":
		return "Doing well, thanks. What would you like to know about the episodes?"
	default:
		return "Hello! Ask me anything about the episode library."
	}
}

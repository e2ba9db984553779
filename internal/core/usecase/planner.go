package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/kirillkom/episode-insight/internal/core/domain"
	"github.com/kirillkom/episode-insight/internal/core/ports"
)

// Planner turns a raw query plus conversation context into a QueryPlan. It
// never fails: classifier errors degrade to the documented defaults, and an
// internal panic degrades to the permissive safe plan that still runs
// retrieval.
type Planner struct {
	classifier ports.Classifier
	logger     *slog.Logger
	timeout    time.Duration
}

func NewPlanner(classifier ports.Classifier, logger *slog.Logger, timeout time.Duration) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Planner{
		classifier: classifier,
		logger:     logger,
		timeout:    timeout,
	}
}

const rejectionRelevanceUnavailable = "could not verify the question concerns the episode library"

// Out-of-scope walls, checked before any classifier call. A match rejects
// with its fixed reason.
var outOfScopeChecks = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`(?i)\d+\s*[-+*/^]\s*\d+|\b(calculate|solve|equation|integral|derivative)\b`), "math problems are outside the episode library"},
	{regexp.MustCompile(`(?i)\b(write|debug|fix|implement)\b[^.?!]*\b(code|function|script|program|regex)\b|\b(python|javascript|typescript|golang)\b`), "programming help is outside the episode library"},
	{regexp.MustCompile(`(?i)\b(weather|forecast)\b|\btemperature\b[^.?!]*\b(today|tomorrow|outside)\b`), "live weather is outside the episode library"},
	{regexp.MustCompile(`(?i)\b(stock|stocks|share price|bitcoin|crypto(currency)?|exchange rate|market cap)\b`), "market data is outside the episode library"},
	{regexp.MustCompile(`(?i)\b(latest news|today'?s news|breaking news|current events)\b|\bwho won\b[^.?!]*\b(election|game|match)\b`), "current events are outside the episode library"},
}

var simpleLookupPattern = regexp.MustCompile(`(?i)^(?:what|who)(?:'s|\s+is|\s+are|\s+was|\s+were)\s+(?:an?\s+|the\s+)?([\w .'-]{2,60}?)\s*\??$`)

var followUpCues = []string{
	"tell me more",
	"more about",
	"what about",
	"what else",
	"and then",
	"go on",
	"expand on",
	"elaborate",
}

var followUpLeadPronouns = map[string]struct{}{
	"he": {}, "she": {}, "they": {}, "it": {},
	"him": {}, "her": {}, "them": {},
	"that": {}, "this": {}, "those": {},
}

func (p *Planner) Plan(ctx context.Context, query domain.Query) (plan domain.QueryPlan) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("planner_recovered", "panic", fmt.Sprint(r))
			plan = safeDefaultPlan(query.Text)
		}
	}()

	text := strings.TrimSpace(query.Text)

	// Greetings bypass everything, including the relevance check.
	if domain.IsGreetingPhrase(text) {
		return domain.QueryPlan{
			IsRelevant: true,
			Complexity: domain.ComplexitySimple,
			Intent:     domain.IntentGreeting,
			SubQueries: []string{text},
			Strategy: domain.RetrievalStrategy{
				KGQueryType:  domain.KGEntityCentric,
				DirectAnswer: true,
			},
		}
	}

	followUp, contextEntities := p.analyzeContext(ctx, text, query)

	if reason, rejected := matchOutOfScope(text); rejected {
		return rejectedPlan(text, reason, followUp)
	}
	if relevant, reason := p.checkRelevance(ctx, text); !relevant {
		return rejectedPlan(text, reason, followUp)
	}

	classification := p.classifyQuery(ctx, text, query.History)
	entities := mergeEntities(classification.Entities, contextEntities)

	plan = domain.QueryPlan{
		IsFollowUp:         followUp,
		IsRelevant:         true,
		Complexity:         classification.Complexity,
		Intent:             classification.Intent,
		Entities:           entities,
		NeedsDecomposition: classification.Complexity != domain.ComplexitySimple,
	}
	plan.SubQueries = p.decompose(ctx, text, plan)
	plan.Strategy = buildStrategy(plan)
	return plan
}

// analyzeContext detects follow-up turns and folds the session's active
// entity into the entity set regardless of what the classifier says.
func (p *Planner) analyzeContext(ctx context.Context, text string, query domain.Query) (bool, []string) {
	lowered := strings.ToLower(text)
	followUp := false
	for _, cue := range followUpCues {
		if strings.Contains(lowered, cue) {
			followUp = true
			break
		}
	}
	if !followUp {
		if fields := strings.Fields(lowered); len(fields) > 0 {
			if _, ok := followUpLeadPronouns[strings.Trim(fields[0], ",.?!")]; ok {
				followUp = true
			}
		}
	}

	var entities []string
	if active := strings.TrimSpace(query.Session.ActiveEntity); active != "" {
		entities = append(entities, active)
	}

	if len(query.History) > 0 && p.classifier != nil {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		verdict, err := p.classifier.DetectFollowUp(callCtx, text, query.History)
		cancel()
		if err != nil {
			p.logger.Warn("follow_up_check_failed", "error", err)
		} else {
			followUp = followUp || verdict.IsFollowUp
			if entity := strings.TrimSpace(verdict.Entity); entity != "" {
				entities = append(entities, entity)
			}
		}
	}
	return followUp, entities
}

// checkRelevance fails closed: a classifier error rejects the query. Letting
// an irrelevant query through risks hallucination; a wrongly rejected one
// only costs a retry.
func (p *Planner) checkRelevance(ctx context.Context, text string) (bool, string) {
	if p.classifier == nil {
		return false, rejectionRelevanceUnavailable
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	verdict, err := p.classifier.ClassifyRelevance(callCtx, text)
	if err != nil {
		p.logger.Warn("relevance_check_failed", "error", err)
		return false, rejectionRelevanceUnavailable
	}
	if !verdict.Relevant {
		reason := strings.TrimSpace(verdict.Reason)
		if reason == "" {
			reason = "the question does not concern the episode library"
		}
		return false, reason
	}
	return true, ""
}

func (p *Planner) classifyQuery(ctx context.Context, text string, history []domain.Turn) domain.QueryClassification {
	if match := simpleLookupPattern.FindStringSubmatch(text); match != nil {
		return domain.QueryClassification{
			Complexity: domain.ComplexitySimple,
			Intent:     domain.IntentDefinition,
			Entities:   []string{strings.TrimSpace(match[1])},
		}
	}

	fallback := domain.QueryClassification{
		Complexity: domain.ComplexityModerate,
		Intent:     domain.IntentKnowledgeQuery,
	}
	if p.classifier == nil {
		return fallback
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	classification, err := p.classifier.ClassifyQuery(callCtx, text, history)
	if err != nil {
		p.logger.Warn("query_classification_failed", "error", err)
		return fallback
	}
	classification.Complexity = domain.NormalizeComplexity(string(classification.Complexity))
	classification.Intent = domain.NormalizeIntent(string(classification.Intent))
	return classification
}

const maxSubQueries = 4

// decompose expands moderate/complex plans into 2-4 sub-queries using
// intent-specific templates, with a classifier fallback for other intents.
// The original query is always present.
func (p *Planner) decompose(ctx context.Context, text string, plan domain.QueryPlan) []string {
	if !plan.NeedsDecomposition {
		return []string{text}
	}

	switch plan.Intent {
	case domain.IntentComparison:
		subQueries := make([]string, 0, maxSubQueries)
		for _, entity := range plan.Entities {
			if len(subQueries) == maxSubQueries-1 {
				break
			}
			subQueries = append(subQueries, fmt.Sprintf("what is %s", entity))
		}
		return clampSubQueries(append(subQueries, text), text)
	case domain.IntentCausal:
		topic := text
		if len(plan.Entities) > 0 {
			topic = plan.Entities[0]
		}
		return clampSubQueries([]string{text, fmt.Sprintf("what causes %s", topic)}, text)
	case domain.IntentMultiEntity:
		subQueries := make([]string, 0, maxSubQueries)
		for _, entity := range plan.Entities {
			if len(subQueries) == maxSubQueries-1 {
				break
			}
			subQueries = append(subQueries, fmt.Sprintf("what is said about %s", entity))
		}
		return clampSubQueries(append(subQueries, text), text)
	}

	if p.classifier == nil {
		return []string{text}
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	subQueries, err := p.classifier.DecomposeQuery(callCtx, text, plan.Intent, plan.Entities)
	if err != nil || len(subQueries) == 0 {
		if err != nil {
			p.logger.Warn("decomposition_failed", "error", err)
		}
		return []string{text}
	}
	return clampSubQueries(subQueries, text)
}

// clampSubQueries guarantees the invariants: never empty, original query
// included, at most maxSubQueries entries, no blank or duplicate entries.
func clampSubQueries(subQueries []string, original string) []string {
	out := make([]string, 0, maxSubQueries)
	seen := make(map[string]struct{}, maxSubQueries)
	hasOriginal := false
	for _, q := range subQueries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if key == strings.ToLower(original) {
			hasOriginal = true
		}
		out = append(out, q)
		if len(out) == maxSubQueries {
			break
		}
	}
	if !hasOriginal {
		if len(out) == maxSubQueries {
			out = out[:maxSubQueries-1]
		}
		out = append(out, original)
	}
	if len(out) == 0 {
		out = []string{original}
	}
	return out
}

func buildStrategy(plan domain.QueryPlan) domain.RetrievalStrategy {
	strategy := domain.RetrievalStrategy{
		UseRAG:      true,
		UseKG:       true,
		KGQueryType: domain.KGEntityCentric,
	}
	if plan.Intent == domain.IntentConversational {
		strategy.DirectAnswer = true
	}

	switch plan.Intent {
	case domain.IntentMultiEntity, domain.IntentCausal:
		strategy.KGQueryType = domain.KGMultiHop
	case domain.IntentCrossEpisode:
		strategy.KGQueryType = domain.KGCrossEpisode
	}

	expansionIntent := plan.Intent == domain.IntentMultiEntity ||
		plan.Intent == domain.IntentCausal ||
		plan.Intent == domain.IntentComparison
	strategy.RAGExpansion = plan.Complexity != domain.ComplexitySimple ||
		len(plan.Entities) > 1 ||
		expansionIntent
	strategy.Iterative = plan.Complexity == domain.ComplexityComplex
	return strategy
}

func matchOutOfScope(text string) (string, bool) {
	for _, check := range outOfScopeChecks {
		if check.re.MatchString(text) {
			return check.reason, true
		}
	}
	return "", false
}

func rejectedPlan(text, reason string, followUp bool) domain.QueryPlan {
	return domain.QueryPlan{
		IsFollowUp:      followUp,
		IsRelevant:      false,
		RejectionReason: reason,
		Complexity:      domain.ComplexitySimple,
		Intent:          domain.IntentOutOfScope,
		SubQueries:      []string{text},
		Strategy: domain.RetrievalStrategy{
			KGQueryType: domain.KGEntityCentric,
		},
	}
}

// safeDefaultPlan is the permissive planning-failure fallback: it favors
// running retrieval over silently answering from ungrounded knowledge. The
// relevance check inside normal planning fails closed instead; the asymmetry
// is intentional and documented.
func safeDefaultPlan(text string) domain.QueryPlan {
	text = strings.TrimSpace(text)
	return domain.QueryPlan{
		IsRelevant: true,
		Complexity: domain.ComplexityModerate,
		Intent:     domain.IntentKnowledgeQuery,
		SubQueries: []string{text},
		Strategy: domain.RetrievalStrategy{
			UseRAG:      true,
			UseKG:       true,
			KGQueryType: domain.KGEntityCentric,
		},
	}
}

func mergeEntities(primary, extra []string) []string {
	out := make([]string, 0, len(primary)+len(extra))
	seen := make(map[string]struct{}, len(primary)+len(extra))
	for _, entity := range append(append([]string{}, primary...), extra...) {
		entity = strings.TrimSpace(entity)
		if entity == "" {
			continue
		}
		key := strings.ToLower(entity)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, entity)
	}
	return out
}

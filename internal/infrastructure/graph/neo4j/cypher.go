package neo4j

import (
	"fmt"
	"strings"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// The graph schema written by the offline ingestion pipeline:
// (:Concept {name, description})-[:RELATES_TO {type}]->(:Concept)
// (:Concept)-[:DISCUSSED_IN {speaker, timestamp}]->(:Episode {id, title})
// This service only reads it.

const maxTraversalHops = 3

// clampHops bounds variable-length traversals. Path length cannot be a Cypher
// parameter, so the bound is validated here and formatted into the pattern.
func clampHops(hops int) int {
	if hops < 1 {
		return 1
	}
	if hops > maxTraversalHops {
		return maxTraversalHops
	}
	return hops
}

// searchTerms lowers the query and drops short stop tokens so CONTAINS
// matching hits concept names rather than articles.
func searchTerms(query string) []string {
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		field = strings.Trim(field, ".,!?;:'\"()")
		if len(field) > 3 {
			terms = append(terms, field)
		}
	}
	return terms
}

func buildQuery(queryType domain.KGQueryType, maxHops int) string {
	switch queryType {
	case domain.KGMultiHop:
		return fmt.Sprintf(`
UNWIND $terms AS term
MATCH (start:Concept) WHERE toLower(start.name) CONTAINS term
MATCH path = (start)-[rels:RELATES_TO*1..%d]->(related:Concept)
OPTIONAL MATCH (related)-[d:DISCUSSED_IN]->(ep:Episode)
RETURN DISTINCT related.name AS concept,
       related.description AS description,
       reduce(acc = start.name, r IN rels | acc + ' -' + coalesce(r.type, 'RELATES_TO') + '-> ') + related.name AS relationship,
       ep.id AS episode_id,
       d.speaker AS speaker,
       d.timestamp AS timestamp
LIMIT $limit`, clampHops(maxHops))
	case domain.KGCrossEpisode:
		return `
UNWIND $terms AS term
MATCH (c:Concept) WHERE toLower(c.name) CONTAINS term
MATCH (c)-[d:DISCUSSED_IN]->(ep:Episode)
WITH c, collect(DISTINCT ep.id) AS episodes, collect(d.speaker)[0] AS speaker
WHERE size(episodes) > 1
RETURN c.name AS concept,
       c.description AS description,
       'DISCUSSED_IN ' + reduce(acc = '', id IN episodes | acc + id + ' ') AS relationship,
       episodes[0] AS episode_id,
       speaker AS speaker,
       null AS timestamp
LIMIT $limit`
	default:
		return `
UNWIND $terms AS term
MATCH (c:Concept) WHERE toLower(c.name) CONTAINS term
OPTIONAL MATCH (c)-[d:DISCUSSED_IN]->(ep:Episode)
RETURN DISTINCT c.name AS concept,
       c.description AS description,
       null AS relationship,
       ep.id AS episode_id,
       d.speaker AS speaker,
       d.timestamp AS timestamp
LIMIT $limit`
	}
}

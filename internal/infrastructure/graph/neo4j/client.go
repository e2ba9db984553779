package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kirillkom/episode-insight/internal/core/domain"
)

// Client runs typed read queries against the episode knowledge graph.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

func New(uri, user, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Client{driver: driver, database: database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Verify(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) Search(ctx context.Context, query string, queryType domain.KGQueryType, maxHops, limit int) ([]domain.RetrievalResult, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	result, err := neo4j.ExecuteQuery(ctx, c.driver,
		buildQuery(queryType, maxHops),
		map[string]any{"terms": terms, "limit": limit},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(c.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j %s query: %w", queryType, err)
	}

	out := make([]domain.RetrievalResult, 0, len(result.Records))
	for _, record := range result.Records {
		concept := recordString(record, "concept")
		if concept == "" {
			continue
		}
		out = append(out, domain.RetrievalResult{
			SourceType:   domain.SourceKG,
			Concept:      concept,
			Description:  recordString(record, "description"),
			Relationship: recordString(record, "relationship"),
			EpisodeID:    recordString(record, "episode_id"),
			Speaker:      recordString(record, "speaker"),
			Timestamp:    recordString(record, "timestamp"),
		})
	}
	return out, nil
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

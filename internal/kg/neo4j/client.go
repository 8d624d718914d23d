// Package neo4j records archived tickets as a graph of topics, priorities
// and keywords.
package neo4j

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/anshuljethani/Deployment-CSC-Backend/internal/domain"
	"github.com/anshuljethani/Deployment-CSC-Backend/internal/metrics"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/circuitbreaker"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/logger"
	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/retry"
)

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.Breaker
	retryConfig retry.Config
}

type TopicCount struct {
	Topic   string `json:"topic"`
	Tickets int64  `json:"tickets"`
}

const recordTicketCypher = `
	CREATE (t:Ticket {ticket_id: $id, subject: $subject, sentiment: $sentiment, created_at: $created_at})
	MERGE (tp:Topic {name: $topic})
	MERGE (t)-[:HAS_TOPIC]->(tp)
	MERGE (p:Priority {name: $priority})
	MERGE (t)-[:HAS_PRIORITY]->(p)
	WITH t
	UNWIND $keywords AS kw
	MERGE (k:Keyword {name: kw})
	MERGE (t)-[:MENTIONS]->(k)
`

const topicCountsCypher = `
	MATCH (t:Ticket)-[:HAS_TOPIC]->(tp:Topic)
	RETURN tp.name AS topic, count(t) AS tickets
	ORDER BY tickets DESC, topic ASC
`

var constraints = []string{
	"CREATE CONSTRAINT topic_name IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE",
	"CREATE CONSTRAINT priority_name IF NOT EXISTS FOR (p:Priority) REQUIRE p.name IS UNIQUE",
	"CREATE CONSTRAINT keyword_name IF NOT EXISTS FOR (k:Keyword) REQUIRE k.name IS UNIQUE",
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange:    metrics.RecordBreakerState,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		Name:           "neo4j",
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Retryable:      neo4j.IsRetryable,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, mode neo4j.AccessMode, operation func(context.Context, neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database, AccessMode: mode})
			defer session.Close(ctx)
			return operation(ctx, session)
		})
	})
}

// EnsureSchema creates the uniqueness constraints the MERGE clauses rely on.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.executeWithRetry(ctx, neo4j.AccessModeWrite, func(ctx context.Context, session neo4j.SessionWithContext) error {
		for _, stmt := range constraints {
			result, err := session.Run(ctx, stmt, nil)
			if err != nil {
				return fmt.Errorf("failed to create constraint: %w", err)
			}
			if _, err := result.Consume(ctx); err != nil {
				return fmt.Errorf("failed to create constraint: %w", err)
			}
		}
		return nil
	})
}

// RecordTicket adds one archived ticket and links it to its topic, priority
// and keywords. Repeated submissions of the same ticket id create separate
// ticket nodes, matching the archive.
func (c *Client) RecordTicket(ctx context.Context, rec domain.TicketRecord) error {
	err := c.executeWithRetry(ctx, neo4j.AccessModeWrite, func(ctx context.Context, session neo4j.SessionWithContext) error {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, recordTicketCypher, ticketParams(rec))
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record ticket: %w", err)
	}

	logger.Debug("Ticket recorded in graph",
		zap.String("ticket_id", rec.ID),
		zap.String("topic", rec.Topics),
	)
	return nil
}

// TopicCounts returns the number of recorded tickets per topic, most
// frequent first.
func (c *Client) TopicCounts(ctx context.Context) ([]TopicCount, error) {
	counts := make([]TopicCount, 0)

	err := c.executeWithRetry(ctx, neo4j.AccessModeRead, func(ctx context.Context, session neo4j.SessionWithContext) error {
		counts = counts[:0]

		result, err := session.Run(ctx, topicCountsCypher, nil)
		if err != nil {
			return err
		}

		for result.Next(ctx) {
			record := result.Record()
			topic, _ := record.Get("topic")
			tickets, _ := record.Get("tickets")

			tc := TopicCount{}
			tc.Topic, _ = topic.(string)
			tc.Tickets, _ = tickets.(int64)
			counts = append(counts, tc)
		}
		return result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count topics: %w", err)
	}

	return counts, nil
}

func ticketParams(rec domain.TicketRecord) map[string]any {
	return map[string]any{
		"id":         rec.ID,
		"subject":    rec.Subject,
		"sentiment":  rec.Sentiment,
		"created_at": domain.FormatTimestamp(rec.CreatedAt),
		"topic":      rec.Topics,
		"priority":   rec.Priority,
		"keywords":   splitKeywords(rec.Keywords),
	}
}

// splitKeywords turns the stored comma-joined keyword string into
// lower-cased, de-duplicated keyword names.
func splitKeywords(s string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}

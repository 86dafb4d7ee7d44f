package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

// SenderGraphAdapter implements out.SenderGraph.
//
//	(:User)-[:RECEIVED_FROM]->(:Sender)-[:SENT]->(:DigestEmail)
//
// DigestEmail nodes are keyed by user and Gmail id, so re-recording a rebuilt
// digest does not double count.
type SenderGraphAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewSenderGraphAdapter(driver neo4j.DriverWithContext, dbName string) *SenderGraphAdapter {
	return &SenderGraphAdapter{driver: driver, dbName: dbName}
}

// EnsureIndexes creates necessary indexes and constraints.
func (a *SenderGraphAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.user_id IS UNIQUE`,
		`CREATE CONSTRAINT sender_email_unique IF NOT EXISTS FOR (s:Sender) REQUIRE s.email IS UNIQUE`,
		`CREATE INDEX digest_email_idx IF NOT EXISTS FOR (m:DigestEmail) ON (m.user_id, m.email_id)`,
	}
	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to ensure graph index: %w", err)
		}
	}
	return nil
}

const recordDigestQuery = `
	MERGE (u:User {user_id: $userID})
	WITH u
	UNWIND $entries AS e
	MERGE (s:Sender {email: e.sender})
	MERGE (u)-[:RECEIVED_FROM]->(s)
	MERGE (m:DigestEmail {user_id: $userID, email_id: e.email_id})
	ON CREATE SET m.importance = e.importance, m.processed_at = e.processed_at
	MERGE (s)-[:SENT]->(m)
`

// RecordDigest links each entry's sender to the user.
func (a *SenderGraphAdapter) RecordDigest(ctx context.Context, userID uuid.UUID, entries []domain.DigestEntry) error {
	params := entryParams(entries)
	if len(params) == 0 {
		return nil
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, recordDigestQuery, map[string]any{
			"userID":  userID.String(),
			"entries": params,
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to record digest senders: %w", err)
	}
	return nil
}

// entryParams converts entries to Cypher parameters, dropping unknown senders.
func entryParams(entries []domain.DigestEntry) []map[string]any {
	params := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		sender := strings.ToLower(strings.TrimSpace(e.Sender))
		if sender == "" || strings.EqualFold(sender, "unknown") {
			continue
		}
		params = append(params, map[string]any{
			"sender":       sender,
			"email_id":     e.EmailID,
			"importance":   e.ImportanceScore,
			"processed_at": e.ProcessedAt.UnixMilli(),
		})
	}
	return params
}

const topSendersQuery = `
	MATCH (:User {user_id: $userID})-[:RECEIVED_FROM]->(s:Sender)-[:SENT]->(m:DigestEmail {user_id: $userID})
	RETURN s.email AS sender, count(m) AS count,
	       avg(m.importance) AS avg_importance, max(m.processed_at) AS last_seen
	ORDER BY avg_importance DESC, count DESC
	LIMIT $limit
`

// TopSenders returns the senders with the highest average importance.
func (a *SenderGraphAdapter) TopSenders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SenderStat, error) {
	if limit <= 0 {
		limit = 5
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: a.dbName,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, topSendersQuery, map[string]any{
		"userID": userID.String(),
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get top senders: %w", err)
	}

	var stats []domain.SenderStat
	for result.Next(ctx) {
		stats = append(stats, toSenderStat(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read top senders: %w", err)
	}
	return stats, nil
}

func toSenderStat(record *neo4j.Record) domain.SenderStat {
	stat := domain.SenderStat{
		Sender:        getStringValue(record, "sender"),
		Count:         getIntValue(record, "count"),
		AvgImportance: getFloatValue(record, "avg_importance"),
	}
	if ms := getIntValue(record, "last_seen"); ms > 0 {
		stat.LastSeen = time.UnixMilli(int64(ms)).UTC()
	}
	return stat
}

func getStringValue(record *neo4j.Record, key string) string {
	if val, ok := record.Get(key); ok && val != nil {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func getIntValue(record *neo4j.Record, key string) int {
	if val, ok := record.Get(key); ok && val != nil {
		switch v := val.(type) {
		case int64:
			return int(v)
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}

func getFloatValue(record *neo4j.Record, key string) float64 {
	if val, ok := record.Get(key); ok && val != nil {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		}
	}
	return 0
}

var _ out.SenderGraph = (*SenderGraphAdapter)(nil)

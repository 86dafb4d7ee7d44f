package graph

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
)

func TestEntryParams(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	params := entryParams([]domain.DigestEntry{
		{EmailID: "m1", Sender: " Boss@Corp.com ", ImportanceScore: 0.9, ProcessedAt: at},
		{EmailID: "m2", Sender: "Unknown", ImportanceScore: 0.5, ProcessedAt: at},
		{EmailID: "m3", Sender: "", ImportanceScore: 0.5, ProcessedAt: at},
	})

	require.Len(t, params, 1)
	assert.Equal(t, "boss@corp.com", params[0]["sender"])
	assert.Equal(t, "m1", params[0]["email_id"])
	assert.Equal(t, 0.9, params[0]["importance"])
	assert.Equal(t, at.UnixMilli(), params[0]["processed_at"])
}

func TestToSenderStat(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	record := &neo4j.Record{
		Keys:   []string{"sender", "count", "avg_importance", "last_seen"},
		Values: []any{"boss@corp.com", int64(3), 0.75, at.UnixMilli()},
	}

	stat := toSenderStat(record)
	assert.Equal(t, domain.SenderStat{
		Sender:        "boss@corp.com",
		Count:         3,
		AvgImportance: 0.75,
		LastSeen:      at,
	}, stat)
}

func TestToSenderStat_MissingValues(t *testing.T) {
	record := &neo4j.Record{Keys: []string{"sender"}, Values: []any{nil}}
	assert.Equal(t, domain.SenderStat{}, toSenderStat(record))
}

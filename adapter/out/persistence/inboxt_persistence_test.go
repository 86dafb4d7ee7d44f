package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
)

func TestEntriesRoundTrip(t *testing.T) {
	deadline := "2024-06-01"
	in := []domain.DigestEntry{{
		EmailID:         "m1",
		Gist:            "Pay invoice",
		Sender:          "a@b.com",
		Subject:         "Invoice",
		Link:            domain.GmailLink("m1"),
		ImportanceScore: 0.9,
		Deadline:        &deadline,
		ProcessedAt:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}}

	raw, err := encodeEntries(in)
	require.NoError(t, err)
	assert.Contains(t, raw, `"importance_score":0.9`)
	assert.Contains(t, raw, `"deadline":"2024-06-01"`)

	out, err := decodeEntries([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeEntries_NilIsEmptyArray(t *testing.T) {
	raw, err := encodeEntries(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	entries, err := decodeEntries([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestDecodeEntries_Invalid(t *testing.T) {
	_, err := decodeEntries([]byte("{"))
	assert.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestBuildTaskUpdate(t *testing.T) {
	title := "New title"
	status := domain.TaskCompleted
	deadline := "2024-07-01"

	tests := []struct {
		name     string
		patch    domain.TaskPatch
		wantSets []string
		wantArgs []any
	}{
		{
			name:     "title and status",
			patch:    domain.TaskPatch{Title: &title, Status: &status},
			wantSets: []string{"title = $1", "status = $2"},
			wantArgs: []any{"New title", "completed"},
		},
		{
			name:     "deadline",
			patch:    domain.TaskPatch{Deadline: &deadline},
			wantSets: []string{"deadline = $1::date"},
			wantArgs: []any{"2024-07-01"},
		},
		{
			name:     "clear deadline wins",
			patch:    domain.TaskPatch{Deadline: &deadline, ClearDeadline: true},
			wantSets: []string{"deadline = NULL"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sets, args := buildTaskUpdate(tt.patch)
			assert.Equal(t, tt.wantSets, sets)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFromNull(t *testing.T) {
	assert.Nil(t, fromNull(sql.NullString{}))
	v := fromNull(sql.NullString{String: "x", Valid: true})
	require.NotNil(t, v)
	assert.Equal(t, "x", *v)
	assert.Nil(t, nullString(nil))
}

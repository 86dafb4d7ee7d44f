package digest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
}

func TestIsDue(t *testing.T) {
	tests := []struct {
		checkTime string
		now       time.Time
		want      bool
	}{
		{"08:00", at(8, 0), true},
		{"08:00", at(8, 5), true},
		{"08:00", at(7, 55), true},
		{"08:00", at(8, 6), false},
		{"8:00", at(8, 3), true},
		{"23:58", at(0, 2), true},
		{"00:02", at(23, 58), true},
		{"23:50", at(0, 2), false},
		{"bogus", at(8, 0), false},
		{"24:00", at(0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.checkTime+"@"+tt.now.Format("15:04"), func(t *testing.T) {
			assert.Equal(t, tt.want, IsDue(tt.checkTime, tt.now, 5))
		})
	}
}

func TestWindowTimes(t *testing.T) {
	times := WindowTimes(at(0, 1), 2)
	assert.Contains(t, times, "23:59")
	assert.Contains(t, times, "00:03")
	assert.Contains(t, times, "0:03")
	assert.NotContains(t, times, "00:04")

	times = WindowTimes(at(14, 0), 0)
	assert.Equal(t, []string{"14:00"}, times)
}

func newRunnerFixture(users ...*domain.User) (*Runner, *builderFixture) {
	f := newBuilderFixture(5)
	for _, u := range users {
		f.users.users[u.ID] = u
		f.users.tokens[u.ID] = &domain.GmailTokens{AccessToken: "access"}
	}
	r := NewRunner(f.builder, f.users, f.digests, 5)
	r.now = func() time.Time { return fixedNow }
	return r, f
}

func TestRunDaily(t *testing.T) {
	due := &domain.User{ID: uuid.New(), Email: "due@example.com", Prefs: domain.Preferences{CheckTime: "07:59"}}
	done := &domain.User{ID: uuid.New(), Email: "done@example.com", Prefs: domain.Preferences{CheckTime: "08:04"}}
	later := &domain.User{ID: uuid.New(), Email: "later@example.com", Prefs: domain.Preferences{CheckTime: "09:00"}}

	r, f := newRunnerFixture(due, done, later)
	// The fixture's own user has the default 08:00 check time and no mail.
	f.mail.fetch = func(string) ([]domain.Email, error) { return emailsWith("a"), nil }
	f.llm.scores["a"] = 0.8
	f.digests.digests[digestKey(done.ID, "2026-03-14")] = &domain.Digest{UserID: done.ID, Date: "2026-03-14"}

	summary, err := r.RunDaily(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Success)
	assert.Equal(t, 3, summary.ProcessedUsers)

	byUser := map[uuid.UUID]domain.UserRunResult{}
	for _, res := range summary.Results {
		byUser[res.UserID] = res
	}
	assert.Equal(t, domain.RunSuccess, byUser[due.ID].Status)
	assert.Equal(t, 1, byUser[due.ID].EmailsProcessed)
	assert.Equal(t, domain.RunSkipped, byUser[done.ID].Status)
	assert.Equal(t, "Digest already exists for today", byUser[done.ID].Message)
	assert.Equal(t, domain.RunSuccess, byUser[f.user.ID].Status)
	assert.NotContains(t, byUser, later.ID)
	assert.Contains(t, f.users.times, "08:01")
}

func TestRunUser_Error(t *testing.T) {
	u := &domain.User{ID: uuid.New(), Email: "x@example.com"}
	r, f := newRunnerFixture(u)
	delete(f.users.tokens, u.ID)

	res := r.RunUser(context.Background(), u.ID, domain.TriggerManual)
	assert.Equal(t, domain.RunError, res.Status)
	assert.NotEmpty(t, res.Error)

	res = r.RunUser(context.Background(), uuid.New(), domain.TriggerManual)
	assert.Equal(t, domain.RunError, res.Status)
}

package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
)

var fixedNow = time.Date(2026, 3, 14, 8, 1, 0, 0, time.UTC)

type builderFixture struct {
	user    *domain.User
	users   *fakeUsers
	digests *fakeDigests
	mail    *fakeMail
	llm     *fakeLLM
	cache   *fakeCache
	reports *fakeReports
	graph   *fakeGraph
	builder *Builder
}

func newBuilderFixture(topN int) *builderFixture {
	user := &domain.User{ID: uuid.New(), Email: "ann@example.com", Prefs: domain.Preferences{TopN: topN}}
	f := &builderFixture{
		user:    user,
		users:   newFakeUsers(user),
		digests: newFakeDigests(),
		mail: &fakeMail{
			fetch:   func(string) ([]domain.Email, error) { return nil, nil },
			refresh: func(string) (string, error) { return "", errors.New("unexpected refresh") },
		},
		llm:     &fakeLLM{scores: map[string]float64{}},
		cache:   newFakeCache(),
		reports: &fakeReports{},
		graph:   &fakeGraph{},
	}
	f.users.tokens[user.ID] = &domain.GmailTokens{AccessToken: "access", RefreshToken: "refresh"}
	f.builder = NewBuilder(BuilderConfig{
		Users:   f.users,
		Digests: f.digests,
		Mail:    f.mail,
		LLM:     f.llm,
		Reports: f.reports,
		Graph:   f.graph,
		Cache:   f.cache,
	})
	f.builder.now = func() time.Time { return fixedNow }
	return f
}

func TestBuild_SelectsTopImportantEmails(t *testing.T) {
	f := newBuilderFixture(2)
	f.mail.fetch = func(string) ([]domain.Email, error) {
		return emailsWith("a", "b", "c", "d"), nil
	}
	f.llm.scores = map[string]float64{"a": 0.9, "b": 0.2, "c": 0.95, "d": 0.6}
	f.llm.deadlines = map[string]string{"c": "2026-03-20"}

	res, err := f.builder.Build(context.Background(), f.user, domain.TriggerInitial)
	require.NoError(t, err)

	require.Len(t, res.Digest.Emails, 2)
	assert.Equal(t, "mc", res.Digest.Emails[0].EmailID)
	assert.Equal(t, "ma", res.Digest.Emails[1].EmailID)
	assert.Equal(t, "gist: c", res.Digest.Emails[0].Gist)
	require.NotNil(t, res.Digest.Emails[0].Deadline)
	assert.Equal(t, "2026-03-20", *res.Digest.Emails[0].Deadline)
	assert.Equal(t, "https://mail.google.com/mail/u/0/#inbox/mc", res.Digest.Emails[0].Link)

	assert.Equal(t, "2026-03-14", res.Digest.Date)
	assert.Equal(t, 4, res.TotalFetched)
	assert.Equal(t, 4, res.Stats.EmailsFetched)
	assert.Equal(t, 4, res.Stats.EmailsProcessed)
	assert.Equal(t, 12, res.Stats.AICalls)
	assert.Zero(t, res.Stats.Errors)

	assert.Equal(t, 1, f.digests.upserts)
	assert.Contains(t, f.cache.deleted, todayKey(f.user.ID, "2026-03-14"))
	assert.Len(t, f.graph.recorded, 2)
	require.Len(t, f.reports.reports, 1)
	assert.Equal(t, domain.RunSuccess, f.reports.reports[0].Status)
	assert.Equal(t, 2, f.reports.reports[0].Selected)
}

func TestBuild_Fallbacks(t *testing.T) {
	f := newBuilderFixture(10)
	f.mail.fetch = func(string) ([]domain.Email, error) {
		return emailsWith("a", "boom"), nil
	}
	f.llm.gistErr = errors.New("model down")
	f.llm.scoreErr = errors.New("model down")
	f.llm.panicOn = "boom"

	res, err := f.builder.Build(context.Background(), f.user, domain.TriggerManual)
	require.NoError(t, err)

	// "a" falls back to the default score and keeps its snippet as gist;
	// "boom" becomes a placeholder under the threshold.
	require.Len(t, res.Digest.Emails, 1)
	entry := res.Digest.Emails[0]
	assert.Equal(t, "snippet a", entry.Gist)
	assert.Equal(t, domain.DefaultImportance, entry.ImportanceScore)

	assert.Equal(t, 1, res.Stats.EmailsProcessed)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 6, res.Stats.AICalls)
}

func TestProcessEmail_PanicFallback(t *testing.T) {
	f := newBuilderFixture(5)
	f.llm.panicOn = "boom"

	o := f.builder.processEmail(context.Background(), domain.Email{ID: "x", Text: "boom"})
	assert.True(t, o.failed)
	assert.Equal(t, processFallback, o.entry.Gist)
	assert.Equal(t, domain.FallbackImportance, o.entry.ImportanceScore)
	assert.Nil(t, o.entry.Deadline)
}

func TestProcessEmail_GistFallbackWithoutSnippet(t *testing.T) {
	f := newBuilderFixture(5)
	f.llm.gistErr = errors.New("timeout")

	o := f.builder.processEmail(context.Background(), domain.Email{ID: "x", Text: "t"})
	assert.False(t, o.failed)
	assert.Equal(t, gistFallback, o.entry.Gist)
}

func TestBuild_RefreshesExpiredToken(t *testing.T) {
	f := newBuilderFixture(5)
	f.mail.fetch = func(token string) ([]domain.Email, error) {
		if token == "access" {
			return nil, out.NewProviderError("gmail", out.ProviderErrTokenExpired, "expired", nil, false)
		}
		return emailsWith("a"), nil
	}
	f.mail.refresh = func(rt string) (string, error) {
		assert.Equal(t, "refresh", rt)
		return "fresh", nil
	}
	f.llm.scores["a"] = 0.7

	res, err := f.builder.Build(context.Background(), f.user, domain.TriggerInitial)
	require.NoError(t, err)
	assert.Len(t, res.Digest.Emails, 1)
	assert.Equal(t, []string{"access", "fresh"}, f.mail.fetched)
	assert.Equal(t, "fresh", f.users.saved[f.user.ID])
}

func TestBuild_RefreshRevoked(t *testing.T) {
	f := newBuilderFixture(5)
	f.mail.fetch = func(string) ([]domain.Email, error) {
		return nil, out.NewProviderError("gmail", out.ProviderErrTokenExpired, "expired", nil, false)
	}
	f.mail.refresh = func(string) (string, error) {
		return "", out.NewProviderError("gmail", out.ProviderErrTokenRevoked, "revoked", nil, false)
	}

	_, err := f.builder.Build(context.Background(), f.user, domain.TriggerInitial)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeReauthRequired))
	assert.Empty(t, f.users.saved)

	require.Len(t, f.reports.reports, 1)
	assert.Equal(t, domain.RunError, f.reports.reports[0].Status)
	assert.NotEmpty(t, f.reports.reports[0].Error)
}

func TestBuild_GmailErrors(t *testing.T) {
	tests := []struct {
		name     string
		tokens   *domain.GmailTokens
		fetchErr error
		wantCode string
	}{
		{
			name:     "not connected",
			tokens:   nil,
			wantCode: apperr.CodeGmailNotConnected,
		},
		{
			name:     "empty tokens",
			tokens:   &domain.GmailTokens{},
			wantCode: apperr.CodeGmailNotConnected,
		},
		{
			name:     "expired without refresh token",
			tokens:   &domain.GmailTokens{AccessToken: "access"},
			fetchErr: out.NewProviderError("gmail", out.ProviderErrTokenExpired, "expired", nil, false),
			wantCode: apperr.CodeReauthRequired,
		},
		{
			name:     "rate limited",
			tokens:   &domain.GmailTokens{AccessToken: "access"},
			fetchErr: out.NewProviderError("gmail", out.ProviderErrRateLimit, "slow down", nil, true),
			wantCode: apperr.CodeRateLimited,
		},
		{
			name:     "server error",
			tokens:   &domain.GmailTokens{AccessToken: "access"},
			fetchErr: out.NewProviderError("gmail", out.ProviderErrServer, "503", nil, true),
			wantCode: apperr.CodeExternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBuilderFixture(5)
			delete(f.users.tokens, f.user.ID)
			if tt.tokens != nil {
				f.users.tokens[f.user.ID] = tt.tokens
			}
			f.mail.fetch = func(string) ([]domain.Email, error) { return nil, tt.fetchErr }

			_, err := f.builder.Build(context.Background(), f.user, domain.TriggerInitial)
			require.Error(t, err)
			assert.True(t, apperr.HasCode(err, tt.wantCode), "got %v", err)
			assert.Zero(t, f.digests.upserts)
		})
	}
}

func TestBuild_ScheduledKeepsExistingDigest(t *testing.T) {
	f := newBuilderFixture(5)
	existing := &domain.Digest{UserID: f.user.ID, Date: "2026-03-14"}
	f.digests.digests[digestKey(f.user.ID, "2026-03-14")] = existing
	f.mail.fetch = func(string) ([]domain.Email, error) { return emailsWith("a"), nil }
	f.llm.scores["a"] = 0.9

	res, err := f.builder.Build(context.Background(), f.user, domain.TriggerScheduled)
	require.NoError(t, err)
	assert.True(t, res.Existing)
	assert.Same(t, existing, f.digests.digests[digestKey(f.user.ID, "2026-03-14")])
	assert.Empty(t, f.cache.deleted)
	assert.Equal(t, domain.RunSkipped, f.reports.reports[0].Status)
}

func TestBuild_InitialReplacesExistingDigest(t *testing.T) {
	f := newBuilderFixture(5)
	f.digests.digests[digestKey(f.user.ID, "2026-03-14")] = &domain.Digest{UserID: f.user.ID, Date: "2026-03-14"}
	f.mail.fetch = func(string) ([]domain.Email, error) { return emailsWith("a"), nil }
	f.llm.scores["a"] = 0.9

	res, err := f.builder.Build(context.Background(), f.user, domain.TriggerInitial)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.Len(t, f.digests.digests[digestKey(f.user.ID, "2026-03-14")].Emails, 1)
}

func TestBuildForUser_UnknownUser(t *testing.T) {
	f := newBuilderFixture(5)

	_, err := f.builder.BuildForUser(context.Background(), uuid.New(), domain.TriggerInitial)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

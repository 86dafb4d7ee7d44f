package digest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

type fakeUsers struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*domain.User
	tokens map[uuid.UUID]*domain.GmailTokens
	saved  map[uuid.UUID]string
	times  []string
}

func newFakeUsers(users ...*domain.User) *fakeUsers {
	f := &fakeUsers{
		users:  map[uuid.UUID]*domain.User{},
		tokens: map[uuid.UUID]*domain.GmailTokens{},
		saved:  map[uuid.UUID]string{},
	}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) ListUsers(context.Context) ([]*domain.User, error) {
	var all []*domain.User
	for _, u := range f.users {
		all = append(all, u)
	}
	return all, nil
}

func (f *fakeUsers) ListUsersByCheckTime(_ context.Context, times []string) ([]*domain.User, error) {
	f.times = times
	set := map[string]bool{}
	for _, t := range times {
		set[t] = true
	}
	var due []*domain.User
	for _, u := range f.users {
		if set[u.Prefs.EffectiveCheckTime()] {
			due = append(due, u)
		}
	}
	return due, nil
}

func (f *fakeUsers) UpdatePreferences(_ context.Context, id uuid.UUID, upd domain.PreferencesUpdate) (*domain.Preferences, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	if upd.CheckTime != nil {
		u.Prefs.CheckTime = *upd.CheckTime
	}
	if upd.TopN != nil {
		u.Prefs.TopN = *upd.TopN
	}
	return &u.Prefs, nil
}

func (f *fakeUsers) GetGmailTokens(_ context.Context, id uuid.UUID) (*domain.GmailTokens, error) {
	t, ok := f.tokens[id]
	if !ok {
		return nil, out.ErrNotFound
	}
	return t, nil
}

func (f *fakeUsers) SaveGmailAccessToken(_ context.Context, id uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[id] = token
	return nil
}

type fakeDigests struct {
	mu      sync.Mutex
	digests map[string]*domain.Digest
	inserts   int
	upserts   int
	upsertErr error
}

func newFakeDigests() *fakeDigests {
	return &fakeDigests{digests: map[string]*domain.Digest{}}
}

func digestKey(userID uuid.UUID, date string) string { return userID.String() + "/" + date }

func (f *fakeDigests) Insert(_ context.Context, d *domain.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	k := digestKey(d.UserID, d.Date)
	if _, ok := f.digests[k]; ok {
		return out.ErrDuplicate
	}
	d.ID = uuid.New()
	f.digests[k] = d
	return nil
}

func (f *fakeDigests) Upsert(_ context.Context, d *domain.Digest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	d.ID = uuid.New()
	f.digests[digestKey(d.UserID, d.Date)] = d
	return nil
}

func (f *fakeDigests) Exists(_ context.Context, userID uuid.UUID, date string) (bool, error) {
	_, ok := f.digests[digestKey(userID, date)]
	return ok, nil
}

func (f *fakeDigests) GetByDate(_ context.Context, userID uuid.UUID, date string) (*domain.Digest, error) {
	d, ok := f.digests[digestKey(userID, date)]
	if !ok {
		return nil, out.ErrNotFound
	}
	return d, nil
}

func (f *fakeDigests) ListRecent(_ context.Context, userID uuid.UUID, limit int) ([]*domain.Digest, error) {
	var list []*domain.Digest
	for _, d := range f.digests {
		if d.UserID == userID && len(list) < limit {
			list = append(list, d)
		}
	}
	return list, nil
}

type fakeMail struct {
	fetch   func(token string) ([]domain.Email, error)
	refresh func(refreshToken string) (string, error)

	mu      sync.Mutex
	fetched []string
}

func (f *fakeMail) FetchRecent(_ context.Context, token string) ([]domain.Email, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, token)
	f.mu.Unlock()
	return f.fetch(token)
}

func (f *fakeMail) RefreshAccessToken(_ context.Context, refreshToken string) (string, error) {
	return f.refresh(refreshToken)
}

// fakeLLM scores each email by looking its text up in scores.
type fakeLLM struct {
	scores    map[string]float64
	gistErr   error
	scoreErr  error
	deadlines map[string]string
	panicOn   string
}

func (f *fakeLLM) ExtractGist(_ context.Context, text string) (string, error) {
	if text == f.panicOn {
		panic("boom")
	}
	if f.gistErr != nil {
		return "", f.gistErr
	}
	return "gist: " + text, nil
}

func (f *fakeLLM) ScoreImportance(_ context.Context, text, _, _ string) (float64, error) {
	if f.scoreErr != nil {
		return 0, f.scoreErr
	}
	return f.scores[text], nil
}

func (f *fakeLLM) ExtractDeadline(_ context.Context, text, _ string) (*string, error) {
	if d, ok := f.deadlines[text]; ok {
		return &d, nil
	}
	return nil, nil
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	reports []*domain.RunReport
}

func (f *fakeReports) Save(_ context.Context, r *domain.RunReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

func (f *fakeReports) ListByUser(context.Context, uuid.UUID, int) ([]*domain.RunReport, error) {
	return f.reports, nil
}

type fakeGraph struct {
	recorded []domain.DigestEntry
}

func (f *fakeGraph) RecordDigest(_ context.Context, _ uuid.UUID, entries []domain.DigestEntry) error {
	f.recorded = append(f.recorded, entries...)
	return nil
}

func (f *fakeGraph) TopSenders(context.Context, uuid.UUID, int) ([]domain.SenderStat, error) {
	return nil, nil
}

func emailsWith(texts ...string) []domain.Email {
	emails := make([]domain.Email, len(texts))
	for i, t := range texts {
		emails[i] = domain.Email{
			ID:      "m" + t,
			Sender:  "sender " + t,
			Subject: "subject " + t,
			Snippet: "snippet " + t,
			Text:    t,
		}
	}
	return emails
}

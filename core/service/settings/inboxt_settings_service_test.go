package settings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
)

type memUsers struct {
	out.UserRepository
	user  *domain.User
	calls int
}

func (m *memUsers) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.calls++
	if m.user == nil || m.user.ID != id {
		return nil, out.ErrNotFound
	}
	return m.user, nil
}

func (m *memUsers) UpdatePreferences(_ context.Context, id uuid.UUID, upd domain.PreferencesUpdate) (*domain.Preferences, error) {
	if m.user == nil || m.user.ID != id {
		return nil, out.ErrNotFound
	}
	if upd.CheckTime != nil {
		m.user.Prefs.CheckTime = *upd.CheckTime
	}
	if upd.TopN != nil {
		m.user.Prefs.TopN = *upd.TopN
	}
	m.user.Prefs.UpdatedAt = time.Now()
	p := m.user.Prefs
	return &p, nil
}

type mapCache struct {
	values  map[string]domain.Preferences
	deleted []string
}

func (c *mapCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	v, ok := c.values[key]
	if ok {
		*dest.(*domain.Preferences) = v
	}
	return ok, nil
}

func (c *mapCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	c.values[key] = value.(domain.Preferences)
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string    { return &v }

func TestNormalizeCheckTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: "08:30", want: "08:30"},
		{in: "8:30", want: "08:30"},
		{in: " 23:59 ", want: "23:59"},
		{in: "0:00", want: "00:00"},
		{in: "24:00", wantErr: "Invalid time format. Use HH:MM"},
		{in: "12:60", wantErr: "Invalid time format. Use HH:MM"},
		{in: "noon", wantErr: "Invalid time format. Use HH:MM"},
		{in: "", wantErr: "Valid check time is required"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCheckTime(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, apperr.AsAppError(err).Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdate(t *testing.T) {
	user := &domain.User{ID: uuid.New()}
	cache := &mapCache{values: map[string]domain.Preferences{}}
	s := NewService(&memUsers{user: user}, cache, time.Minute)

	prefs, err := s.Update(context.Background(), user.ID, &in.UpdateSettingsRequest{
		CheckTime: sptr("7:15"),
		TopN:      fptr(3),
	})
	require.NoError(t, err)
	assert.Equal(t, "07:15", prefs.CheckTime)
	assert.Equal(t, 3, prefs.TopN)
	assert.Contains(t, cache.deleted, prefsKey(user.ID))

	prefs, err = s.Update(context.Background(), user.ID, &in.UpdateSettingsRequest{TopN: fptr(10)})
	require.NoError(t, err)
	assert.Equal(t, "07:15", prefs.CheckTime)
	assert.Equal(t, 10, prefs.TopN)
}

func TestUpdate_Validation(t *testing.T) {
	user := &domain.User{ID: uuid.New()}
	s := NewService(&memUsers{user: user}, nil, 0)

	tests := []struct {
		name string
		req  in.UpdateSettingsRequest
	}{
		{"empty", in.UpdateSettingsRequest{}},
		{"top n zero", in.UpdateSettingsRequest{TopN: fptr(0)}},
		{"top n eleven", in.UpdateSettingsRequest{TopN: fptr(11)}},
		{"top n fractional", in.UpdateSettingsRequest{TopN: fptr(2.5)}},
		{"bad time", in.UpdateSettingsRequest{CheckTime: sptr("25:00")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Update(context.Background(), user.ID, &tt.req)
			assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed), "got %v", err)
		})
	}

	_, err := s.Update(context.Background(), uuid.New(), &in.UpdateSettingsRequest{TopN: fptr(4)})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

func TestGet_DefaultsAndCache(t *testing.T) {
	user := &domain.User{ID: uuid.New()}
	users := &memUsers{user: user}
	s := NewService(users, &mapCache{values: map[string]domain.Preferences{}}, time.Minute)

	prefs, err := s.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCheckTime, prefs.CheckTime)
	assert.Equal(t, domain.DefaultTopN, prefs.TopN)

	_, err = s.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, users.calls)
}

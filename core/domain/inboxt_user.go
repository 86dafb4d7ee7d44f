package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTopN      = 5
	MinTopN          = 1
	MaxTopN          = 10
	DefaultCheckTime = "08:00"
)

// User is an InBoxt account with its digest preferences.
type User struct {
	ID    uuid.UUID   `json:"id"`
	Email string      `json:"email"`
	Prefs Preferences `json:"prefs"`
}

// Preferences controls when and how large a user's digest is.
type Preferences struct {
	CheckTime string    `json:"prefs_check_time"`
	TopN      int       `json:"prefs_top_n"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// EffectiveTopN returns TopN clamped into the supported range, defaulting when unset.
func (p Preferences) EffectiveTopN() int {
	switch {
	case p.TopN == 0:
		return DefaultTopN
	case p.TopN < MinTopN:
		return MinTopN
	case p.TopN > MaxTopN:
		return MaxTopN
	}
	return p.TopN
}

// EffectiveCheckTime returns CheckTime or the default delivery time.
func (p Preferences) EffectiveCheckTime() string {
	if p.CheckTime == "" {
		return DefaultCheckTime
	}
	return p.CheckTime
}

// PreferencesUpdate is a partial preferences change. Nil fields are left untouched.
type PreferencesUpdate struct {
	CheckTime *string `json:"prefs_check_time"`
	TopN      *int    `json:"prefs_top_n"`
}

// GmailTokens is the OAuth token pair stored for a user.
type GmailTokens struct {
	AccessToken  string
	RefreshToken string
}

// Connected reports whether any Gmail credential is stored.
func (t GmailTokens) Connected() bool {
	return t.AccessToken != "" || t.RefreshToken != ""
}

package in

import (
	"context"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

type SettingsService interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Preferences, error)
	Update(ctx context.Context, userID uuid.UUID, req *UpdateSettingsRequest) (*domain.Preferences, error)
}

// UpdateSettingsRequest carries the user's new preferences. TopN is a float so
// non-integer input can be rejected with a validation error instead of a decode error.
type UpdateSettingsRequest struct {
	CheckTime *string  `json:"prefs_check_time"`
	TopN      *float64 `json:"prefs_top_n"`
}

// Package settings reads and updates digest preferences.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
)

var checkTimePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Service implements in.SettingsService.
type Service struct {
	users    out.UserRepository
	cache    out.JSONCache
	cacheTTL time.Duration
}

func NewService(users out.UserRepository, cache out.JSONCache, cacheTTL time.Duration) *Service {
	return &Service{users: users, cache: cache, cacheTTL: cacheTTL}
}

func prefsKey(userID uuid.UUID) string {
	return fmt.Sprintf("prefs:%s", userID)
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.Preferences, error) {
	key := prefsKey(userID)
	if s.cache != nil {
		var cached domain.Preferences
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}
	prefs := domain.Preferences{
		CheckTime: user.Prefs.EffectiveCheckTime(),
		TopN:      user.Prefs.EffectiveTopN(),
		UpdatedAt: user.Prefs.UpdatedAt,
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, prefs, s.cacheTTL); err != nil {
			logger.WithError(err).Warn("prefs cache write failed")
		}
	}
	return &prefs, nil
}

func (s *Service) Update(ctx context.Context, userID uuid.UUID, req *in.UpdateSettingsRequest) (*domain.Preferences, error) {
	if req.CheckTime == nil && req.TopN == nil {
		return nil, apperr.ValidationFailed("At least one of prefs_check_time or prefs_top_n is required")
	}

	var upd domain.PreferencesUpdate
	if req.CheckTime != nil {
		ct, err := NormalizeCheckTime(*req.CheckTime)
		if err != nil {
			return nil, err
		}
		upd.CheckTime = &ct
	}
	if req.TopN != nil {
		n := *req.TopN
		if n != math.Trunc(n) || n < domain.MinTopN || n > domain.MaxTopN {
			return nil, apperr.ValidationFailed("Top N must be between 1 and 10")
		}
		topN := int(n)
		upd.TopN = &topN
	}

	prefs, err := s.users.UpdatePreferences(ctx, userID, upd)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("update preferences", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, prefsKey(userID)); err != nil {
			logger.WithError(err).Warn("prefs cache invalidation failed")
		}
	}
	logger.WithContext(ctx).Info("settings updated: check_time=%s top_n=%d", prefs.CheckTime, prefs.TopN)
	return prefs, nil
}

// NormalizeCheckTime validates an H:MM or HH:MM clock value and returns it as HH:MM.
func NormalizeCheckTime(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.ValidationFailed("Valid check time is required")
	}
	if !checkTimePattern.MatchString(v) {
		return "", apperr.ValidationFailed("Invalid time format. Use HH:MM")
	}
	hs, ms, _ := strings.Cut(v, ":")
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

var _ in.SettingsService = (*Service)(nil)

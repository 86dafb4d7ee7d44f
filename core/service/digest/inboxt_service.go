package digest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
)

const (
	defaultListLimit = 7
	maxListLimit     = 30
)

// Service implements in.DigestService.
type Service struct {
	builder  *Builder
	digests  out.DigestRepository
	cache    out.JSONCache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewService(builder *Builder, digests out.DigestRepository, cache out.JSONCache, cacheTTL time.Duration) *Service {
	return &Service{
		builder:  builder,
		digests:  digests,
		cache:    cache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *Service) InitialFetch(ctx context.Context, userID uuid.UUID) (*in.InitialFetchResponse, error) {
	res, err := s.builder.BuildForUser(ctx, userID, domain.TriggerInitial)
	if err != nil {
		if res == nil {
			return nil, err
		}
		return nil, apperr.AsAppError(err).WithDetail("stats", res.Stats)
	}

	if res.TotalFetched == 0 {
		return &in.InitialFetchResponse{
			Success: true,
			Message: "No emails found",
			Stats:   res.Stats,
		}, nil
	}

	return &in.InitialFetchResponse{
		Success: true,
		Message: fmt.Sprintf("Processed %d emails", len(res.Digest.Emails)),
		Digest: &in.DigestSummary{
			Date:         res.Digest.Date,
			EmailCount:   len(res.Digest.Emails),
			TotalFetched: res.TotalFetched,
		},
		Stats: res.Stats,
	}, nil
}

// Today returns today's digest, served from cache when possible.
func (s *Service) Today(ctx context.Context, userID uuid.UUID) (*domain.Digest, error) {
	date := domain.DigestDate(s.now())
	key := todayKey(userID, date)

	if s.cache != nil {
		var cached domain.Digest
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.WithError(err).Warn("digest cache read failed")
		}
		if hit {
			return &cached, nil
		}
	}

	d, err := s.GetByDate(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, d, s.cacheTTL); err != nil {
			logger.WithError(err).Warn("digest cache write failed")
		}
	}
	return d, nil
}

func (s *Service) GetByDate(ctx context.Context, userID uuid.UUID, date string) (*domain.Digest, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, apperr.InvalidInput("date", "use YYYY-MM-DD")
	}
	d, err := s.digests.GetByDate(ctx, userID, date)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("digest")
		}
		return nil, apperr.DatabaseError("get digest", err)
	}
	return d, nil
}

func (s *Service) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Digest, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	digests, err := s.digests.ListRecent(ctx, userID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list digests", err)
	}
	return digests, nil
}

// ListRuns returns an empty list when no report store is configured.
func (s *Service) ListRuns(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RunReport, error) {
	if s.builder.reports == nil {
		return []*domain.RunReport{}, nil
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	reports, err := s.builder.reports.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list run reports", err)
	}
	return reports, nil
}

var _ in.DigestService = (*Service)(nil)

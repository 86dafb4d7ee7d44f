package in

import (
	"context"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

// DigestService serves digests to signed-in users.
type DigestService interface {
	// InitialFetch builds today's digest right away, replacing an existing one.
	InitialFetch(ctx context.Context, userID uuid.UUID) (*InitialFetchResponse, error)
	Today(ctx context.Context, userID uuid.UUID) (*domain.Digest, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date string) (*domain.Digest, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Digest, error)
	// ListRuns returns the latest build reports, newest first.
	ListRuns(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RunReport, error)
}

// DigestRunner drives scheduled digest builds.
type DigestRunner interface {
	// RunDaily builds digests for every user whose check time is now.
	RunDaily(ctx context.Context) (*domain.DailyRunSummary, error)
	// RunUser builds one user's digest unless today's already exists.
	RunUser(ctx context.Context, userID uuid.UUID, trigger domain.DigestTrigger) domain.UserRunResult
}

type DigestSummary struct {
	Date         string `json:"date"`
	EmailCount   int    `json:"emailCount"`
	TotalFetched int    `json:"totalFetched"`
}

type InitialFetchResponse struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Digest  *DigestSummary         `json:"digest,omitempty"`
	Stats   domain.ProcessingStats `json:"stats"`
}

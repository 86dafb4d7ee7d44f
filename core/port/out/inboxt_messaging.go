package out

import (
	"context"
	"time"
)

// DigestBuildJob asks a worker to build one user's digest.
type DigestBuildJob struct {
	UserID      string    `json:"user_id"`
	Trigger     string    `json:"trigger"`
	Date        string    `json:"date"`
	RequestedAt time.Time `json:"requested_at"`
}

// JobPublisher enqueues background jobs.
type JobPublisher interface {
	PublishDigestBuild(ctx context.Context, job *DigestBuildJob) error
}

package worker

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

// DueLister returns the users whose digest time has come.
type DueLister interface {
	DueUsers(ctx context.Context) ([]*domain.User, error)
}

// Scheduler enqueues a scheduled build for every due user on each tick.
// Jobs go to the stream publisher when one is configured and straight into
// the pool otherwise.
type Scheduler struct {
	due       DueLister
	publisher out.JobPublisher
	pool      *Pool
	interval  time.Duration

	// userID:date keys already enqueued by this process.
	seen *gocache.Cache
	now  func() time.Time
	log  zerolog.Logger
}

func NewScheduler(due DueLister, publisher out.JobPublisher, p *Pool, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		due:       due,
		publisher: publisher,
		pool:      p,
		interval:  interval,
		seen:      gocache.New(25*time.Hour, time.Hour),
		now:       time.Now,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues jobs for due users and returns how many were enqueued.
func (s *Scheduler) Tick(ctx context.Context) int {
	users, err := s.due.DueUsers(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list due users")
		return 0
	}

	now := s.now().UTC()
	date := domain.DigestDate(now)
	enqueued := 0
	for _, u := range users {
		key := u.ID.String() + ":" + date
		if err := s.seen.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
			continue
		}

		job := &out.DigestBuildJob{
			UserID:      u.ID.String(),
			Trigger:     string(domain.TriggerScheduled),
			Date:        date,
			RequestedAt: now,
		}
		if err := s.enqueue(ctx, job); err != nil {
			s.seen.Delete(key)
			s.log.Error().Err(err).Str("user_id", job.UserID).Msg("failed to enqueue digest job")
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.log.Info().Int("jobs", enqueued).Str("date", date).Msg("scheduled digest jobs")
	}
	return enqueued
}

func (s *Scheduler) enqueue(ctx context.Context, job *out.DigestBuildJob) error {
	if s.publisher != nil {
		return s.publisher.PublishDigestBuild(ctx, job)
	}
	if s.pool == nil {
		return ErrPoolClosed
	}
	payload, err := toPayload(job)
	if err != nil {
		return err
	}
	if !s.pool.Submit(NewMessage(JobDigestBuild, payload)) {
		return ErrPoolClosed
	}
	return nil
}

package digest

import (
	"context"
	"errors"
	"fmt"
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

const (
	minutesPerDay     = 24 * 60
	defaultWindowMins = 5
)

// Runner finds users whose delivery time has come and builds their digests.
type Runner struct {
	builder *Builder
	users   out.UserRepository
	digests out.DigestRepository
	window  int
	now     func() time.Time
}

func NewRunner(builder *Builder, users out.UserRepository, digests out.DigestRepository, windowMin int) *Runner {
	if windowMin <= 0 {
		windowMin = defaultWindowMins
	}
	return &Runner{
		builder: builder,
		users:   users,
		digests: digests,
		window:  windowMin,
		now:     time.Now,
	}
}

// DueUsers returns the users whose check time is within the window of now (UTC).
func (r *Runner) DueUsers(ctx context.Context) ([]*domain.User, error) {
	now := r.now().UTC()
	candidates, err := r.users.ListUsersByCheckTime(ctx, WindowTimes(now, r.window))
	if err != nil {
		return nil, fmt.Errorf("list due users: %w", err)
	}

	due := make([]*domain.User, 0, len(candidates))
	for _, u := range candidates {
		if IsDue(u.Prefs.EffectiveCheckTime(), now, r.window) {
			due = append(due, u)
		}
	}
	return due, nil
}

// RunDaily builds a digest for every due user, one after another.
func (r *Runner) RunDaily(ctx context.Context) (*domain.DailyRunSummary, error) {
	users, err := r.DueUsers(ctx)
	if err != nil {
		return nil, apperr.DatabaseError("list users", err)
	}
	logger.Info("daily digest run: %d users due", len(users))

	results := make([]domain.UserRunResult, 0, len(users))
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		results = append(results, r.run(ctx, u, domain.TriggerScheduled))
	}

	return &domain.DailyRunSummary{
		Success:        true,
		ProcessedUsers: len(results),
		Results:        results,
	}, nil
}

// RunUser builds one user's digest unless one already exists for today.
func (r *Runner) RunUser(ctx context.Context, userID uuid.UUID, trigger domain.DigestTrigger) domain.UserRunResult {
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			err = apperr.NotFound("user")
		} else {
			err = apperr.DatabaseError("get user", err)
		}
		return domain.UserRunResult{UserID: userID, Status: domain.RunError, Error: apperr.AsAppError(err).Message, Err: err}
	}
	return r.run(ctx, user, trigger)
}

func (r *Runner) run(ctx context.Context, u *domain.User, trigger domain.DigestTrigger) domain.UserRunResult {
	result := domain.UserRunResult{UserID: u.ID, Email: u.Email}
	log := logger.WithField("user_id", u.ID.String())

	if trigger == domain.TriggerScheduled {
		exists, err := r.digests.Exists(ctx, u.ID, domain.DigestDate(r.now()))
		if err != nil {
			result.Status = domain.RunError
			result.Error = err.Error()
			result.Err = apperr.DatabaseError("check digest", err)
			return result
		}
		if exists {
			result.Status = domain.RunSkipped
			result.Message = "Digest already exists for today"
			return result
		}
	}

	res, err := r.builder.Build(ctx, u, trigger)
	switch {
	case err != nil:
		log.WithError(err).Error("digest build failed")
		result.Status = domain.RunError
		result.Error = apperr.AsAppError(err).Message
		result.Err = err
	case res.Existing:
		result.Status = domain.RunSkipped
		result.Message = "Digest already exists for today"
	default:
		result.Status = domain.RunSuccess
		result.EmailsProcessed = res.Stats.EmailsProcessed
		result.Message = fmt.Sprintf("Digest created with %d emails", len(res.Digest.Emails))
	}
	return result
}

// IsDue reports whether checkTime ("H:MM" or "HH:MM") is within windowMin
// minutes of now, measured around the clock.
func IsDue(checkTime string, now time.Time, windowMin int) bool {
	m, ok := parseClock(checkTime)
	if !ok {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	d := m - cur
	if d < 0 {
		d = -d
	}
	if d > minutesPerDay/2 {
		d = minutesPerDay - d
	}
	return d <= windowMin
}

// WindowTimes lists every clock value within windowMin minutes of now, in
// both zero-padded and unpadded hour forms.
func WindowTimes(now time.Time, windowMin int) []string {
	cur := now.Hour()*60 + now.Minute()
	times := make([]string, 0, 2*(2*windowMin+1))
	for off := -windowMin; off <= windowMin; off++ {
		m := ((cur+off)%minutesPerDay + minutesPerDay) % minutesPerDay
		h, mm := m/60, m%60
		times = append(times, fmt.Sprintf("%02d:%02d", h, mm))
		if h < 10 {
			times = append(times, fmt.Sprintf("%d:%02d", h, mm))
		}
	}
	return times
}

func parseClock(s string) (int, bool) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

var _ in.DigestRunner = (*Runner)(nil)

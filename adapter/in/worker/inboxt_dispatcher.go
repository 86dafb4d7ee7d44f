package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inboxt_server/adapter/out/messaging"
	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
)

// Handler dispatches jobs to the digest runner.
type Handler struct {
	runner in.DigestRunner
	log    zerolog.Logger
	now    func() time.Time
}

func NewHandler(runner in.DigestRunner, log zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		log:    log.With().Str("component", "job_handler").Logger(),
		now:    time.Now,
	}
}

// Process routes msg by type.
func (h *Handler) Process(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case JobDigestBuild:
		return h.processDigestBuild(ctx, msg)
	case JobDigestSweep:
		return h.processSweep(ctx)
	default:
		return Permanent(fmt.Errorf("unknown job type: %s", msg.Type))
	}
}

func (h *Handler) processDigestBuild(ctx context.Context, msg *Message) error {
	job, err := ParsePayload[out.DigestBuildJob](msg)
	if err != nil {
		return Permanent(fmt.Errorf("invalid digest job payload: %w", err))
	}
	userID, err := uuid.Parse(job.UserID)
	if err != nil {
		return Permanent(fmt.Errorf("invalid user id %q: %w", job.UserID, err))
	}

	trigger := domain.DigestTrigger(job.Trigger)
	if trigger == "" {
		trigger = domain.TriggerScheduled
	}
	today := domain.DigestDate(h.now())
	if trigger == domain.TriggerScheduled && job.Date != "" && job.Date != today {
		h.log.Info().
			Str("user_id", job.UserID).
			Str("job_date", job.Date).
			Msg("skipping stale scheduled job")
		return nil
	}

	res := h.runner.RunUser(ctx, userID, trigger)
	log := h.log.With().
		Str("user_id", job.UserID).
		Str("trigger", string(trigger)).
		Str("status", string(res.Status)).
		Logger()

	if res.Status != domain.RunError {
		log.Info().Int("emails", res.EmailsProcessed).Msg(res.Message)
		return nil
	}

	err = res.Err
	if err == nil {
		err = errors.New(res.Error)
	}
	if retryable(err) {
		return err
	}
	log.Warn().Err(err).Msg("digest job failed permanently")
	return Permanent(err)
}

func (h *Handler) processSweep(ctx context.Context) error {
	summary, err := h.runner.RunDaily(ctx)
	if err != nil {
		return err
	}
	h.log.Info().Int("users", summary.ProcessedUsers).Msg("daily sweep finished")
	return nil
}

// retryable reports whether a failed build might succeed later: storage and
// upstream failures, rate limits and timeouts. Missing or revoked Gmail
// access needs the user to act first.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if !apperr.IsAppError(err) {
		return true
	}
	status := apperr.GetHTTPStatus(err)
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}

// StreamHandler feeds Redis Stream jobs into the pool. It implements
// messaging.JobHandler; a nil return acks the stream entry and an
// unprocessable entry is dead-lettered without redelivery.
type StreamHandler struct {
	pool *Pool
	log  zerolog.Logger
}

func NewStreamHandler(p *Pool, log zerolog.Logger) *StreamHandler {
	return &StreamHandler{pool: p, log: log.With().Str("component", "stream_handler").Logger()}
}

func (s *StreamHandler) Handle(ctx context.Context, stream string, data []byte) error {
	var jobType JobType
	switch stream {
	case messaging.StreamDigestBuild:
		jobType = JobDigestBuild
	default:
		return Permanent(fmt.Errorf("%w: no handler for stream %s", messaging.ErrUnprocessable, stream))
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return Permanent(fmt.Errorf("%w: decode %s job: %v", messaging.ErrUnprocessable, stream, err))
	}

	err := s.pool.SubmitAndWait(ctx, NewMessage(jobType, payload))
	if IsPermanent(err) {
		s.log.Warn().Err(err).Str("stream", stream).Msg("dropping job")
		return nil
	}
	return err
}

var _ messaging.JobHandler = (*StreamHandler)(nil)

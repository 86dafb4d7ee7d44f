package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"inboxt_server/pkg/metrics"
	"inboxt_server/pkg/resilience"
)

// ErrPoolClosed is returned when a job is submitted to a stopped pool.
var ErrPoolClosed = errors.New("worker pool is not running")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers        int
	WorkerChanSize int
	JobTimeout     time.Duration
	MaxRetries     int
	RetryBase      time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        4,
		WorkerChanSize: 16,
		JobTimeout:     5 * time.Minute, // a full build makes up to 100 LLM calls
		MaxRetries:     3,
		RetryBase:      2 * time.Second,
	}
}

// Processor runs a single job.
type Processor interface {
	Process(ctx context.Context, msg *Message) error
}

// Pool runs jobs on a go-pkgz/pool worker group with a per-job timeout and
// bounded in-process retries.
type Pool struct {
	proc   Processor
	config *PoolConfig
	group  *pool.WorkerGroup[*Message]

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu      sync.Mutex
	started bool
}

// messageWorker implements pool.Worker for Message processing.
type messageWorker struct {
	pool *Pool
}

func (w *messageWorker) Do(ctx context.Context, msg *Message) error {
	return w.pool.processJob(ctx, msg)
}

func NewPool(proc Processor, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	def := DefaultPoolConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.WorkerChanSize <= 0 {
		config.WorkerChanSize = def.WorkerChanSize
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = def.JobTimeout
	}
	if config.RetryBase <= 0 {
		config.RetryBase = def.RetryBase
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		proc:   proc,
		config: config,
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Str("component", "worker_pool").Logger(),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	// Batch size 1: a lone scheduled job must not wait for a full batch.
	p.group = pool.New[*Message](p.config.Workers, &messageWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()

	if err := p.group.Go(p.ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	p.started = true

	p.log.Info().
		Int("workers", p.config.Workers).
		Dur("job_timeout", p.config.JobTimeout).
		Int("max_retries", p.config.MaxRetries).
		Msg("worker pool started")
	return nil
}

// Stop waits for queued jobs to finish, up to ctx's deadline.
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	if err := p.group.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("error closing worker pool")
	}
	p.cancel()
	p.log.Info().Msg("worker pool stopped")
}

// Submit queues msg. It reports false when the pool is not running.
func (p *Pool) Submit(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return false
	}
	metrics.JobQueueDepth.Inc()
	p.group.Submit(msg)
	return true
}

// SubmitAndWait queues msg and blocks until it has been processed once.
// The caller owns retries: the pool does not re-submit these jobs.
func (p *Pool) SubmitAndWait(ctx context.Context, msg *Message) error {
	msg.done = make(chan error, 1)
	if !p.Submit(msg) {
		return ErrPoolClosed
	}
	select {
	case err := <-msg.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) processJob(ctx context.Context, msg *Message) error {
	defer metrics.JobQueueDepth.Dec()

	start := time.Now()
	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("job panicked: %v", r)
			}
		}()
		errCh <- p.proc.Process(jobCtx, msg)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-jobCtx.Done():
		err = jobCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			p.log.Warn().
				Str("job_id", msg.ID).
				Str("job_type", msg.Type).
				Dur("timeout", p.config.JobTimeout).
				Msg("job timed out")
		}
	}

	metrics.JobsProcessed.WithLabelValues(msg.Type, metrics.Status(err)).Inc()

	if msg.done != nil {
		msg.done <- err
		return nil
	}
	if err == nil {
		p.log.Debug().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Dur("elapsed", time.Since(start)).
			Msg("job completed")
		return nil
	}

	p.log.Error().
		Err(err).
		Str("job_id", msg.ID).
		Str("job_type", msg.Type).
		Int("retries", msg.Retries).
		Msg("job processing failed")

	if IsPermanent(err) {
		return nil
	}
	if msg.Retries >= p.config.MaxRetries {
		metrics.JobsProcessed.WithLabelValues(msg.Type, "dropped").Inc()
		p.log.Warn().
			Str("job_id", msg.ID).
			Str("job_type", msg.Type).
			Msg("job dropped after max retries")
		return nil
	}

	backoff := resilience.Jitter(resilience.Backoff(p.config.RetryBase, msg.Retries))
	msg.Retries++
	time.AfterFunc(backoff, func() {
		if !p.Submit(msg) {
			p.log.Warn().Str("job_id", msg.ID).Msg("retry dropped, pool stopped")
		}
	})
	return nil
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

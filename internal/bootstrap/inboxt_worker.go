package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inboxt_server/adapter/in/worker"
	"inboxt_server/adapter/out/messaging"
	"inboxt_server/pkg/logger"
)

const consumerGroup = "inboxt-workers"

// Worker runs the job pool, the stream consumer and the scheduler.
type Worker struct {
	pool      *worker.Pool
	consumer  *messaging.Consumer
	scheduler *worker.Scheduler
	log       zerolog.Logger
	wg        sync.WaitGroup
}

func NewWorker(deps *Dependencies) *Worker {
	cfg := deps.Config
	zlog := logger.Zerolog().With().Str("worker_id", cfg.WorkerID).Logger()

	handler := worker.NewHandler(deps.DigestRunner, zlog)
	pool := worker.NewPool(handler, &worker.PoolConfig{
		Workers:    cfg.WorkerMax,
		JobTimeout: cfg.WorkerJobTimeout,
		MaxRetries: cfg.WorkerMaxRetries,
	}, zlog)

	w := &Worker{pool: pool, log: zlog.With().Str("component", "worker").Logger()}

	if deps.Redis != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:                consumerGroup,
			Consumer:             cfg.WorkerID,
			Streams:              []string{messaging.StreamDigestBuild},
			Handler:              worker.NewStreamHandler(pool, zlog),
			Logger:               zlog,
			BatchSize:            cfg.ConsumerBatchSize,
			Block:                time.Duration(cfg.ConsumerBlockMS) * time.Millisecond,
			PendingCheckInterval: time.Duration(cfg.ConsumerPendingCheckSec) * time.Second,
			// A message is reclaimed only after the job timeout has surely passed.
			PendingIdleTime: cfg.WorkerJobTimeout + time.Minute,
			MaxDeliveries:   cfg.WorkerMaxRetries + 1,
		})
	} else {
		w.log.Warn().Msg("Redis not available, scheduled jobs go straight to the pool")
	}

	if cfg.SchedulerEnabled {
		w.scheduler = worker.NewScheduler(deps.DigestRunner, deps.Publisher, pool, cfg.DigestScheduleInterval, zlog)
	}
	return w
}

// Run blocks until ctx is cancelled, then drains the pool within
// shutdownTimeout.
func (w *Worker) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	if err := w.pool.Start(); err != nil {
		return err
	}

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error().Err(err).Msg("stream consumer stopped")
			}
		}()
	}
	if w.scheduler != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.scheduler.Run(ctx)
		}()
	}

	w.log.Info().
		Bool("consumer", w.consumer != nil).
		Bool("scheduler", w.scheduler != nil).
		Msg("worker started")

	<-ctx.Done()
	w.wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	w.pool.Stop(stopCtx)
	return nil
}

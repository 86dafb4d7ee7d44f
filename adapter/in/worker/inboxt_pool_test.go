package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type procFunc func(ctx context.Context, msg *Message) error

func (f procFunc) Process(ctx context.Context, msg *Message) error { return f(ctx, msg) }

func newTestPool(t *testing.T, proc Processor, cfg *PoolConfig) *Pool {
	t.Helper()
	p := NewPool(proc, cfg, zerolog.Nop())
	require.NoError(t, p.Start())
	t.Cleanup(func() { p.Stop(context.Background()) })
	return p
}

func fastConfig() *PoolConfig {
	return &PoolConfig{Workers: 2, WorkerChanSize: 4, JobTimeout: time.Second, MaxRetries: 2, RetryBase: time.Millisecond}
}

func TestPool_ProcessesJobs(t *testing.T) {
	var calls atomic.Int32
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		calls.Add(1)
		return nil
	}), fastConfig())

	for i := 0; i < 5; i++ {
		assert.True(t, p.Submit(NewMessage(JobDigestBuild, nil)))
	}
	assert.Eventually(t, func() bool { return calls.Load() == 5 }, time.Second, 5*time.Millisecond)
}

func TestPool_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		if calls.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return nil
	}), fastConfig())

	msg := NewMessage(JobDigestBuild, nil)
	p.Submit(msg)
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 2 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPool_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		calls.Add(1)
		return Permanent(errors.New("bad payload"))
	}), fastConfig())

	p.Submit(NewMessage(JobDigestBuild, nil))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestPool_DropsAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		calls.Add(1)
		return errors.New("upstream down")
	}), fastConfig())

	p.Submit(NewMessage(JobDigestBuild, nil))
	// one attempt plus MaxRetries
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return calls.Load() > 3 }, 60*time.Millisecond, 5*time.Millisecond)
}

func TestPool_SubmitAndWait(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		calls.Add(1)
		return boom
	}), fastConfig())

	err := p.SubmitAndWait(context.Background(), NewMessage(JobDigestBuild, nil))
	assert.ErrorIs(t, err, boom)
	assert.Never(t, func() bool { return calls.Load() > 1 }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestPool_JobTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	p := newTestPool(t, procFunc(func(ctx context.Context, _ *Message) error {
		<-ctx.Done()
		return ctx.Err()
	}), cfg)

	err := p.SubmitAndWait(context.Background(), NewMessage(JobDigestBuild, nil))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_RecoversPanic(t *testing.T) {
	p := newTestPool(t, procFunc(func(context.Context, *Message) error {
		panic("nil map")
	}), fastConfig())

	err := p.SubmitAndWait(context.Background(), NewMessage(JobDigestBuild, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestPool_NotRunning(t *testing.T) {
	p := NewPool(procFunc(func(context.Context, *Message) error { return nil }), nil, zerolog.Nop())
	assert.False(t, p.Submit(NewMessage(JobDigestBuild, nil)))
	assert.ErrorIs(t, p.SubmitAndWait(context.Background(), NewMessage(JobDigestBuild, nil)), ErrPoolClosed)

	require.NoError(t, p.Start())
	p.Stop(context.Background())
	assert.False(t, p.Submit(NewMessage(JobDigestBuild, nil)))
}

func TestPermanent(t *testing.T) {
	base := errors.New("x")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.NoError(t, Permanent(nil))
}

func TestParsePayload(t *testing.T) {
	msg := NewMessage(JobDigestBuild, map[string]any{"user_id": "u1", "trigger": "manual"})
	job, err := ParsePayload[struct {
		UserID  string `json:"user_id"`
		Trigger string `json:"trigger"`
	}](msg)
	require.NoError(t, err)
	assert.Equal(t, "u1", job.UserID)
	assert.Equal(t, "manual", job.Trigger)
}

package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

type fakeDue struct {
	users []*domain.User
	err   error
}

func (f *fakeDue) DueUsers(context.Context) ([]*domain.User, error) { return f.users, f.err }

type fakePublisher struct {
	jobs []*out.DigestBuildJob
	err  error
}

func (f *fakePublisher) PublishDigestBuild(_ context.Context, job *out.DigestBuildJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestScheduler_PublishesOncePerDay(t *testing.T) {
	a := &domain.User{ID: uuid.New()}
	b := &domain.User{ID: uuid.New()}
	pub := &fakePublisher{}
	s := NewScheduler(&fakeDue{users: []*domain.User{a, b}}, pub, nil, time.Minute, zerolog.Nop())
	s.now = func() time.Time { return jobNow }

	assert.Equal(t, 2, s.Tick(context.Background()))
	assert.Equal(t, 0, s.Tick(context.Background()))
	require.Len(t, pub.jobs, 2)
	assert.Equal(t, a.ID.String(), pub.jobs[0].UserID)
	assert.Equal(t, "scheduled", pub.jobs[0].Trigger)
	assert.Equal(t, "2026-03-14", pub.jobs[0].Date)

	// next day the same users are due again
	s.now = func() time.Time { return jobNow.Add(24 * time.Hour) }
	assert.Equal(t, 2, s.Tick(context.Background()))
}

func TestScheduler_RetriesFailedPublish(t *testing.T) {
	u := &domain.User{ID: uuid.New()}
	pub := &fakePublisher{err: errors.New("redis down")}
	s := NewScheduler(&fakeDue{users: []*domain.User{u}}, pub, nil, time.Minute, zerolog.Nop())
	s.now = func() time.Time { return jobNow }

	assert.Equal(t, 0, s.Tick(context.Background()))
	pub.err = nil
	assert.Equal(t, 1, s.Tick(context.Background()))
}

func TestScheduler_ListError(t *testing.T) {
	s := NewScheduler(&fakeDue{err: errors.New("db down")}, &fakePublisher{}, nil, time.Minute, zerolog.Nop())
	assert.Equal(t, 0, s.Tick(context.Background()))
}

func TestScheduler_SubmitsToPoolWithoutPublisher(t *testing.T) {
	var mu sync.Mutex
	var got []string
	p := newTestPool(t, procFunc(func(_ context.Context, msg *Message) error {
		job, err := ParsePayload[out.DigestBuildJob](msg)
		if err != nil {
			return err
		}
		mu.Lock()
		got = append(got, job.UserID)
		mu.Unlock()
		return nil
	}), fastConfig())

	u := &domain.User{ID: uuid.New()}
	s := NewScheduler(&fakeDue{users: []*domain.User{u}}, nil, p, time.Minute, zerolog.Nop())
	assert.Equal(t, 1, s.Tick(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == u.ID.String()
	}, time.Second, 5*time.Millisecond)
}

func TestScheduler_NoSink(t *testing.T) {
	u := &domain.User{ID: uuid.New()}
	s := NewScheduler(&fakeDue{users: []*domain.User{u}}, nil, nil, 0, zerolog.Nop())
	assert.Equal(t, 0, s.Tick(context.Background()))
	assert.Equal(t, time.Minute, s.interval)
}

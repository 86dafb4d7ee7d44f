package task

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
)

type memTasks struct {
	tasks      map[uuid.UUID]*domain.Task
	lastFilter domain.TaskFilter
	lastPatch  domain.TaskPatch
}

func newMemTasks() *memTasks { return &memTasks{tasks: map[uuid.UUID]*domain.Task{}} }

func (m *memTasks) Create(_ context.Context, userID uuid.UUID, nt domain.NewTask) (*domain.Task, error) {
	t := &domain.Task{
		ID:                    uuid.New(),
		UserID:                userID,
		Title:                 nt.Title,
		Description:           nt.Description,
		EmailLink:             nt.EmailLink,
		Deadline:              nt.Deadline,
		Status:                domain.TaskPending,
		CreatedFromDigestDate: nt.CreatedFromDigestDate,
	}
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTasks) Update(_ context.Context, userID, taskID uuid.UUID, p domain.TaskPatch) (*domain.Task, error) {
	m.lastPatch = p
	t, ok := m.tasks[taskID]
	if !ok || t.UserID != userID {
		return nil, out.ErrNotFound
	}
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.ClearDeadline {
		t.Deadline = nil
	} else if p.Deadline != nil {
		t.Deadline = p.Deadline
	}
	return t, nil
}

func (m *memTasks) Delete(_ context.Context, userID, taskID uuid.UUID) error {
	t, ok := m.tasks[taskID]
	if !ok || t.UserID != userID {
		return out.ErrNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

func (m *memTasks) List(_ context.Context, userID uuid.UUID, f domain.TaskFilter) ([]*domain.Task, error) {
	m.lastFilter = f
	var list []*domain.Task
	for _, t := range m.tasks {
		if t.UserID == userID && (f.Status == nil || *f.Status == t.Status) {
			list = append(list, t)
		}
	}
	return list, nil
}

type memDigests struct {
	out.DigestRepository
	digest *domain.Digest
}

func (m *memDigests) GetByDate(_ context.Context, userID uuid.UUID, date string) (*domain.Digest, error) {
	if m.digest == nil || m.digest.UserID != userID || m.digest.Date != date {
		return nil, out.ErrNotFound
	}
	return m.digest, nil
}

func ptr[T any](v T) *T { return &v }

func TestCreate_Validation(t *testing.T) {
	s := NewService(newMemTasks(), &memDigests{})
	user := uuid.New()

	tests := []struct {
		name string
		req  in.CreateTaskRequest
		msg  string
	}{
		{"blank title", in.CreateTaskRequest{Title: "   "}, "Task title is required"},
		{"long title", in.CreateTaskRequest{Title: strings.Repeat("x", 501)}, "Title must be less than 500 characters"},
		{"long description", in.CreateTaskRequest{Title: "t", Description: ptr(strings.Repeat("x", 5001))}, "Description must be less than 5000 characters"},
		{"bad link", in.CreateTaskRequest{Title: "t", EmailLink: ptr("not a url")}, "Invalid email link URL"},
		{"bad deadline format", in.CreateTaskRequest{Title: "t", Deadline: ptr("03/14/2026")}, "Invalid deadline format. Use YYYY-MM-DD"},
		{"impossible deadline", in.CreateTaskRequest{Title: "t", Deadline: ptr("2026-02-30")}, "Invalid deadline date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), user, &tt.req)
			require.Error(t, err)
			appErr := apperr.AsAppError(err)
			assert.Equal(t, apperr.CodeValidationFailed, appErr.Code)
			assert.Equal(t, tt.msg, appErr.Message)
			assert.Equal(t, 400, appErr.Status)
		})
	}
}

func TestCreate(t *testing.T) {
	repo := newMemTasks()
	s := NewService(repo, &memDigests{})

	task, err := s.Create(context.Background(), uuid.New(), &in.CreateTaskRequest{
		Title:     "  Reply to Bob  ",
		Deadline:  ptr("2026-03-20"),
		EmailLink: ptr("https://mail.google.com/mail/u/0/#inbox/abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Reply to Bob", task.Title)
	assert.Equal(t, domain.TaskPending, task.Status)
	assert.Equal(t, "2026-03-20", *task.Deadline)
	assert.Nil(t, task.Description)

	task, err = s.Create(context.Background(), uuid.New(), &in.CreateTaskRequest{
		Title:       "Sign contract",
		Description: ptr("  before Friday \n"),
	})
	require.NoError(t, err)
	require.NotNil(t, task.Description)
	assert.Equal(t, "before Friday", *task.Description)

	task, err = s.Create(context.Background(), uuid.New(), &in.CreateTaskRequest{Title: "t", Description: ptr("   ")})
	require.NoError(t, err)
	assert.Nil(t, task.Description)
}

func TestUpdate(t *testing.T) {
	repo := newMemTasks()
	s := NewService(repo, &memDigests{})
	user := uuid.New()
	task, err := s.Create(context.Background(), user, &in.CreateTaskRequest{Title: "t", Deadline: ptr("2026-03-20")})
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), user, task.ID, &in.UpdateTaskRequest{Status: ptr("completed"), Deadline: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, updated.Status)
	assert.Nil(t, updated.Deadline)
	assert.True(t, repo.lastPatch.ClearDeadline)

	_, err = s.Update(context.Background(), user, task.ID, &in.UpdateTaskRequest{Status: ptr("done")})
	assert.Equal(t, `Invalid status. Use "pending" or "completed"`, apperr.AsAppError(err).Message)

	_, err = s.Update(context.Background(), user, task.ID, &in.UpdateTaskRequest{})
	assert.True(t, apperr.HasCode(err, apperr.CodeBadRequest))

	_, err = s.Update(context.Background(), uuid.New(), task.ID, &in.UpdateTaskRequest{Title: ptr("x")})
	appErr := apperr.AsAppError(err)
	assert.Equal(t, 404, appErr.Status)
	assert.Equal(t, "Task not found or access denied", appErr.Message)
}

func TestDelete(t *testing.T) {
	repo := newMemTasks()
	s := NewService(repo, &memDigests{})
	user := uuid.New()
	task, err := s.Create(context.Background(), user, &in.CreateTaskRequest{Title: "t"})
	require.NoError(t, err)

	assert.True(t, apperr.HasCode(s.Delete(context.Background(), uuid.New(), task.ID), apperr.CodeNotFound))
	require.NoError(t, s.Delete(context.Background(), user, task.ID))
	assert.Empty(t, repo.tasks)
}

func TestList(t *testing.T) {
	repo := newMemTasks()
	s := NewService(repo, &memDigests{})

	_, err := s.List(context.Background(), uuid.New(), &in.ListTasksRequest{Status: "pending", Limit: 1000})
	require.NoError(t, err)
	require.NotNil(t, repo.lastFilter.Status)
	assert.Equal(t, domain.TaskPending, *repo.lastFilter.Status)
	assert.Equal(t, maxListLimit, repo.lastFilter.Limit)

	_, err = s.List(context.Background(), uuid.New(), &in.ListTasksRequest{Status: "all"})
	require.NoError(t, err)
	assert.Nil(t, repo.lastFilter.Status)
	assert.Equal(t, defaultListLimit, repo.lastFilter.Limit)

	_, err = s.List(context.Background(), uuid.New(), &in.ListTasksRequest{Status: "archived"})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidationFailed))
}

func TestCreateFromDigest(t *testing.T) {
	user := uuid.New()
	deadline := "2026-03-18"
	digests := &memDigests{digest: &domain.Digest{
		UserID: user,
		Date:   "2026-03-14",
		Emails: []domain.DigestEntry{{
			EmailID:  "m1",
			Gist:     "Contract needs a signature",
			Subject:  "Contract",
			Link:     domain.GmailLink("m1"),
			Deadline: &deadline,
		}},
	}}
	s := NewService(newMemTasks(), digests)
	s.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }

	task, err := s.CreateFromDigest(context.Background(), user, &in.CreateTaskFromDigestRequest{EmailID: "m1"})
	require.NoError(t, err)
	assert.Equal(t, "Contract", task.Title)
	assert.Equal(t, "Contract needs a signature", *task.Description)
	assert.Equal(t, domain.GmailLink("m1"), *task.EmailLink)
	assert.Equal(t, "2026-03-18", *task.Deadline)
	assert.Equal(t, "2026-03-14", *task.CreatedFromDigestDate)

	_, err = s.CreateFromDigest(context.Background(), user, &in.CreateTaskFromDigestRequest{EmailID: "missing"})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	_, err = s.CreateFromDigest(context.Background(), user, &in.CreateTaskFromDigestRequest{EmailID: "m1", Date: "2026-03-13"})
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	_, err = s.CreateFromDigest(context.Background(), user, &in.CreateTaskFromDigestRequest{})
	assert.True(t, apperr.HasCode(err, apperr.CodeMissingField))
}

func TestCreateFromDigest_DropsImpossibleDeadline(t *testing.T) {
	user := uuid.New()
	for _, deadline := range []string{"2025-02-30", "2026-13-01", "soon"} {
		t.Run(deadline, func(t *testing.T) {
			d := deadline
			digests := &memDigests{digest: &domain.Digest{
				UserID: user,
				Date:   "2026-03-14",
				Emails: []domain.DigestEntry{{EmailID: "m1", Gist: "g", Subject: "s", Deadline: &d}},
			}}
			s := NewService(newMemTasks(), digests)

			task, err := s.CreateFromDigest(context.Background(), user, &in.CreateTaskFromDigestRequest{EmailID: "m1", Date: "2026-03-14"})
			require.NoError(t, err)
			assert.Nil(t, task.Deadline)
		})
	}
}

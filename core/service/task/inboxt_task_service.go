// Package task manages the follow-up tasks users keep next to their digests.
package task

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/core/port/out"
	"inboxt_server/pkg/apperr"
	"inboxt_server/pkg/logger"
)

var deadlinePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service implements in.TaskService.
type Service struct {
	tasks   out.TaskRepository
	digests out.DigestRepository
	now     func() time.Time
}

func NewService(tasks out.TaskRepository, digests out.DigestRepository) *Service {
	return &Service{tasks: tasks, digests: digests, now: time.Now}
}

func errTaskNotFound() *apperr.AppError {
	return apperr.New(apperr.CodeNotFound, "Task not found or access denied", http.StatusNotFound)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, req *in.ListTasksRequest) ([]*domain.Task, error) {
	filter := domain.TaskFilter{Limit: req.Limit, Offset: req.Offset}
	if req.Status != "" && req.Status != "all" {
		st := domain.TaskStatus(req.Status)
		if !st.Valid() {
			return nil, apperr.ValidationFailed(`Invalid status. Use "pending" or "completed"`)
		}
		filter.Status = &st
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	tasks, err := s.tasks.List(ctx, userID, filter)
	if err != nil {
		return nil, apperr.DatabaseError("list tasks", err)
	}
	return tasks, nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, req *in.CreateTaskRequest) (*domain.Task, error) {
	title, err := validateTitle(req.Title)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}
	if req.EmailLink != nil && *req.EmailLink != "" && !validURL(*req.EmailLink) {
		return nil, apperr.ValidationFailed("Invalid email link URL")
	}
	deadline, err := normalizeDeadline(req.Deadline)
	if err != nil {
		return nil, err
	}
	digestDate, err := normalizeDeadline(req.CreatedFromDigestDate)
	if err != nil {
		return nil, apperr.InvalidInput("created_from_digest_date", "use YYYY-MM-DD")
	}

	task, err := s.tasks.Create(ctx, userID, domain.NewTask{
		Title:                 title,
		Description:           trimToNil(req.Description),
		EmailLink:             emptyToNil(req.EmailLink),
		Deadline:              deadline,
		CreatedFromDigestDate: digestDate,
	})
	if err != nil {
		return nil, apperr.DatabaseError("create task", err)
	}

	logger.WithContext(ctx).WithField("task_id", task.ID.String()).Debug("task created")
	return task, nil
}

func (s *Service) Update(ctx context.Context, userID, taskID uuid.UUID, req *in.UpdateTaskRequest) (*domain.Task, error) {
	var patch domain.TaskPatch

	if req.Title != nil {
		title, err := validateTitle(*req.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if req.Description != nil {
		if err := validateDescription(req.Description); err != nil {
			return nil, err
		}
		patch.Description = req.Description
	}
	if req.Deadline != nil {
		if strings.TrimSpace(*req.Deadline) == "" {
			patch.ClearDeadline = true
		} else {
			d, err := normalizeDeadline(req.Deadline)
			if err != nil {
				return nil, err
			}
			patch.Deadline = d
		}
	}
	if req.Status != nil {
		st := domain.TaskStatus(*req.Status)
		if !st.Valid() {
			return nil, apperr.ValidationFailed(`Invalid status. Use "pending" or "completed"`)
		}
		patch.Status = &st
	}
	if patch.Empty() {
		return nil, apperr.BadRequest("No fields to update")
	}

	task, err := s.tasks.Update(ctx, userID, taskID, patch)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, errTaskNotFound()
		}
		return nil, apperr.DatabaseError("update task", err)
	}
	return task, nil
}

func (s *Service) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	if err := s.tasks.Delete(ctx, userID, taskID); err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return errTaskNotFound()
		}
		return apperr.DatabaseError("delete task", err)
	}
	return nil
}

// CreateFromDigest copies a digest entry into a new pending task. The subject
// becomes the title, the gist the description.
func (s *Service) CreateFromDigest(ctx context.Context, userID uuid.UUID, req *in.CreateTaskFromDigestRequest) (*domain.Task, error) {
	if strings.TrimSpace(req.EmailID) == "" {
		return nil, apperr.MissingField("email_id")
	}
	date := req.Date
	if date == "" {
		date = domain.DigestDate(s.now())
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, apperr.InvalidInput("date", "use YYYY-MM-DD")
	}

	digest, err := s.digests.GetByDate(ctx, userID, date)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("digest")
		}
		return nil, apperr.DatabaseError("get digest", err)
	}
	entry, ok := digest.Entry(req.EmailID)
	if !ok {
		return nil, apperr.NotFound("digest entry")
	}

	title := strings.TrimSpace(entry.Subject)
	if title == "" {
		title = entry.Gist
	}
	title = truncate(title, domain.MaxTaskTitleLen)
	gist := truncate(entry.Gist, domain.MaxTaskDescriptionLen)
	link := entry.Link
	// Digest deadlines come from the model; an impossible date is dropped.
	deadline, err := normalizeDeadline(entry.Deadline)
	if err != nil {
		deadline = nil
	}

	task, err := s.tasks.Create(ctx, userID, domain.NewTask{
		Title:                 title,
		Description:           &gist,
		EmailLink:             &link,
		Deadline:              deadline,
		CreatedFromDigestDate: &date,
	})
	if err != nil {
		return nil, apperr.DatabaseError("create task", err)
	}
	return task, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperr.ValidationFailed("Task title is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxTaskTitleLen {
		return "", apperr.ValidationFailed("Title must be less than 500 characters")
	}
	return title, nil
}

func validateDescription(desc *string) error {
	if desc != nil && utf8.RuneCountInString(*desc) > domain.MaxTaskDescriptionLen {
		return apperr.ValidationFailed("Description must be less than 5000 characters")
	}
	return nil
}

// normalizeDeadline validates a YYYY-MM-DD date. Nil and empty mean no deadline.
func normalizeDeadline(d *string) (*string, error) {
	if d == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*d)
	if v == "" {
		return nil, nil
	}
	if !deadlinePattern.MatchString(v) {
		return nil, apperr.ValidationFailed("Invalid deadline format. Use YYYY-MM-DD")
	}
	if _, err := time.Parse(domain.DateLayout, v); err != nil {
		return nil, apperr.ValidationFailed("Invalid deadline date")
	}
	return &v, nil
}

func validURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func trimToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ in.TaskService = (*Service)(nil)

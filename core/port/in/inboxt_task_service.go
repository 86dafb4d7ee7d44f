package in

import (
	"context"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

type TaskService interface {
	List(ctx context.Context, userID uuid.UUID, req *ListTasksRequest) ([]*domain.Task, error)
	Create(ctx context.Context, userID uuid.UUID, req *CreateTaskRequest) (*domain.Task, error)
	Update(ctx context.Context, userID, taskID uuid.UUID, req *UpdateTaskRequest) (*domain.Task, error)
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
	// CreateFromDigest turns a digest entry into a pending task.
	CreateFromDigest(ctx context.Context, userID uuid.UUID, req *CreateTaskFromDigestRequest) (*domain.Task, error)
}

type ListTasksRequest struct {
	Status string
	Limit  int
	Offset int
}

type CreateTaskRequest struct {
	Title                 string  `json:"title"`
	Description           *string `json:"description"`
	Deadline              *string `json:"deadline"`
	EmailLink             *string `json:"email_link"`
	CreatedFromDigestDate *string `json:"created_from_digest_date"`
}

// UpdateTaskRequest is a partial update. An empty Deadline clears it.
type UpdateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Deadline    *string `json:"deadline"`
	Status      *string `json:"status"`
}

type CreateTaskFromDigestRequest struct {
	EmailID string `json:"email_id"`
	// Date defaults to today's digest.
	Date string `json:"date"`
}

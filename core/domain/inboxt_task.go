package domain

import (
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	return s == TaskPending || s == TaskCompleted
}

const (
	MaxTaskTitleLen       = 500
	MaxTaskDescriptionLen = 5000
)

// Task is a follow-up item, usually created from a digest entry.
type Task struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                uuid.UUID  `json:"user_id"`
	Title                 string     `json:"title"`
	Description           *string    `json:"description"`
	EmailLink             *string    `json:"email_link"`
	Deadline              *string    `json:"deadline"`
	Status                TaskStatus `json:"status"`
	CreatedFromDigestDate *string    `json:"created_from_digest_date"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// NewTask holds validated fields for an insert.
type NewTask struct {
	Title                 string
	Description           *string
	EmailLink             *string
	Deadline              *string
	CreatedFromDigestDate *string
}

// TaskPatch holds validated fields for an update. Nil means unchanged; ClearDeadline
// sets the deadline to null.
type TaskPatch struct {
	Title         *string
	Description   *string
	Deadline      *string
	ClearDeadline bool
	Status        *TaskStatus
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Deadline == nil && !p.ClearDeadline && p.Status == nil
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Status *TaskStatus
	Limit  int
	Offset int
}

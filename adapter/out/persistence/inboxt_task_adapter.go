package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

const (
	defaultTaskLimit = 50
	maxTaskLimit     = 200
)

// TaskAdapter implements out.TaskRepository. Every statement is scoped by user_id.
type TaskAdapter struct {
	db *sqlx.DB
}

func NewTaskAdapter(db *sqlx.DB) *TaskAdapter {
	return &TaskAdapter{db: db}
}

type taskRow struct {
	ID                    uuid.UUID      `db:"id"`
	UserID                uuid.UUID      `db:"user_id"`
	Title                 string         `db:"title"`
	Description           sql.NullString `db:"description"`
	EmailLink             sql.NullString `db:"email_link"`
	Deadline              sql.NullString `db:"deadline"`
	Status                string         `db:"status"`
	CreatedFromDigestDate sql.NullString `db:"created_from_digest_date"`
	CreatedAt             time.Time      `db:"created_at"`
	UpdatedAt             time.Time      `db:"updated_at"`
}

func (r *taskRow) toDomain() *domain.Task {
	return &domain.Task{
		ID:                    r.ID,
		UserID:                r.UserID,
		Title:                 r.Title,
		Description:           fromNull(r.Description),
		EmailLink:             fromNull(r.EmailLink),
		Deadline:              fromNull(r.Deadline),
		Status:                domain.TaskStatus(r.Status),
		CreatedFromDigestDate: fromNull(r.CreatedFromDigestDate),
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// Dates are rendered as text so they round-trip as YYYY-MM-DD.
const taskColumns = `id, user_id, title, description, email_link, deadline::text AS deadline,
	status, created_from_digest_date::text AS created_from_digest_date, created_at, updated_at`

func (a *TaskAdapter) Create(ctx context.Context, userID uuid.UUID, t domain.NewTask) (*domain.Task, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO tasks (
			id, user_id, title, description, email_link, deadline,
			status, created_from_digest_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8::date, $9, $9)
		RETURNING ` + taskColumns

	var row taskRow
	err := a.db.GetContext(ctx, &row, query,
		uuid.New(), userID, t.Title, nullString(t.Description), nullString(t.EmailLink),
		nullString(t.Deadline), string(domain.TaskPending), nullString(t.CreatedFromDigestDate), now,
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return row.toDomain(), nil
}

func (a *TaskAdapter) Update(ctx context.Context, userID, taskID uuid.UUID, patch domain.TaskPatch) (*domain.Task, error) {
	sets, args := buildTaskUpdate(patch)
	args = append(args, time.Now().UTC(), taskID, userID)
	n := len(args)

	sets = append(sets, fmt.Sprintf("updated_at = $%d", n-2))
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), n-1, n, taskColumns)

	var row taskRow
	if err := a.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return row.toDomain(), nil
}

// buildTaskUpdate returns SET clauses numbered from $1 for the fields present in patch.
func buildTaskUpdate(patch domain.TaskPatch) ([]string, []any) {
	var sets []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(clause, len(args)))
	}

	if patch.Title != nil {
		add("title = $%d", *patch.Title)
	}
	if patch.Description != nil {
		add("description = $%d", *patch.Description)
	}
	switch {
	case patch.ClearDeadline:
		sets = append(sets, "deadline = NULL")
	case patch.Deadline != nil:
		add("deadline = $%d::date", *patch.Deadline)
	}
	if patch.Status != nil {
		add("status = $%d", string(*patch.Status))
	}
	return sets, args
}

func (a *TaskAdapter) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (a *TaskAdapter) List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, error) {
	conditions := []string{"user_id = $1"}
	args := []any{userID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultTaskLimit
	}
	if limit > maxTaskLimit {
		limit = maxTaskLimit
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks
		WHERE %s
		ORDER BY deadline NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`,
		taskColumns, strings.Join(conditions, " AND "), len(args)-1, len(args))

	var rows []taskRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*domain.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toDomain()
	}
	return tasks, nil
}

var _ out.TaskRepository = (*TaskAdapter)(nil)

package out

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type UserRepository interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	// ListUsersByCheckTime returns users whose effective check time is one of times.
	ListUsersByCheckTime(ctx context.Context, times []string) ([]*domain.User, error)
	UpdatePreferences(ctx context.Context, userID uuid.UUID, upd domain.PreferencesUpdate) (*domain.Preferences, error)
	GetGmailTokens(ctx context.Context, userID uuid.UUID) (*domain.GmailTokens, error)
	SaveGmailAccessToken(ctx context.Context, userID uuid.UUID, accessToken string) error
}

type DigestRepository interface {
	// Insert fails with ErrDuplicate when the user already has a digest for the date.
	Insert(ctx context.Context, digest *domain.Digest) error
	// Upsert replaces the entries of an existing digest for the same date.
	Upsert(ctx context.Context, digest *domain.Digest) error
	Exists(ctx context.Context, userID uuid.UUID, date string) (bool, error)
	GetByDate(ctx context.Context, userID uuid.UUID, date string) (*domain.Digest, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Digest, error)
}

type TaskRepository interface {
	Create(ctx context.Context, userID uuid.UUID, task domain.NewTask) (*domain.Task, error)
	// Update and Delete return ErrNotFound when no task with id belongs to userID.
	Update(ctx context.Context, userID, taskID uuid.UUID, patch domain.TaskPatch) (*domain.Task, error)
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, filter domain.TaskFilter) ([]*domain.Task, error)
}

type ChatRepository interface {
	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*domain.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.ChatMessage, error)
	AddMessage(ctx context.Context, userID uuid.UUID, msg *domain.ChatMessage) error
}

// RunReportStore keeps an audit trail of digest builds.
type RunReportStore interface {
	Save(ctx context.Context, report *domain.RunReport) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.RunReport, error)
}

// SenderGraph tracks which senders produce important mail for each user.
type SenderGraph interface {
	RecordDigest(ctx context.Context, userID uuid.UUID, entries []domain.DigestEntry) error
	TopSenders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.SenderStat, error)
}

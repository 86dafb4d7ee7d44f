package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/out"
)

// ChatAdapter implements out.ChatRepository.
type ChatAdapter struct {
	db *sqlx.DB
}

func NewChatAdapter(db *sqlx.DB) *ChatAdapter {
	return &ChatAdapter{db: db}
}

type conversationRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *conversationRow) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:        r.ID,
		UserID:    r.UserID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type messageRow struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	CreatedAt      time.Time `db:"created_at"`
}

func (a *ChatAdapter) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	row := conversationRow{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: now, UpdatedAt: now}

	_, err := a.db.NamedExecContext(ctx, `
		INSERT INTO chat_conversations (id, user_id, title, created_at, updated_at)
		VALUES (:id, :user_id, :title, :created_at, :updated_at)`, &row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return row.toDomain(), nil
}

func (a *ChatAdapter) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.Conversation, error) {
	var row conversationRow
	err := a.db.GetContext(ctx, &row, `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_conversations
		WHERE id = $1 AND user_id = $2`, conversationID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return row.toDomain(), nil
}

func (a *ChatAdapter) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []conversationRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, title, created_at, updated_at
		FROM chat_conversations
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	convs := make([]*domain.Conversation, len(rows))
	for i := range rows {
		convs[i] = rows[i].toDomain()
	}
	return convs, nil
}

func (a *ChatAdapter) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.ChatMessage, error) {
	var rows []messageRow
	err := a.db.SelectContext(ctx, &rows, `
		SELECT id, conversation_id, role, content, created_at
		FROM chat_messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]*domain.ChatMessage, len(rows))
	for i, r := range rows {
		msgs[i] = &domain.ChatMessage{
			ID:             r.ID,
			ConversationID: r.ConversationID,
			Role:           domain.ChatRole(r.Role),
			Content:        r.Content,
			CreatedAt:      r.CreatedAt,
		}
	}
	return msgs, nil
}

// AddMessage stores msg and bumps the conversation's updated_at in one transaction.
func (a *ChatAdapter) AddMessage(ctx context.Context, userID uuid.UUID, msg *domain.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, conversation_id, user_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, userID, string(msg.Role), msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE chat_conversations SET updated_at = $2 WHERE id = $1`, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}

	return tx.Commit()
}

var _ out.ChatRepository = (*ChatAdapter)(nil)

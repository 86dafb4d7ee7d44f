package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

const MaxChatMessageLen = 5000

// Conversation groups chat messages between a user and the assistant.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           ChatRole  `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationTitle derives a title from the first message.
func ConversationTitle(message string) string {
	r := []rune(message)
	if len(r) <= 50 {
		return message
	}
	return string(r[:50]) + "..."
}

// SenderStat summarizes how important a sender's mail has been for a user.
type SenderStat struct {
	Sender        string    `json:"sender"`
	Count         int       `json:"count"`
	AvgImportance float64   `json:"avg_importance"`
	LastSeen      time.Time `json:"last_seen"`
}

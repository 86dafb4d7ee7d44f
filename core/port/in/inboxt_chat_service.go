package in

import (
	"context"

	"github.com/google/uuid"

	"inboxt_server/core/domain"
)

type ChatService interface {
	Send(ctx context.Context, userID uuid.UUID, req *ChatRequest) (*ChatResponse, error)
	ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]*domain.ChatMessage, error)
}

type ChatRequest struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	Message        string     `json:"message"`
}

type ChatResponse struct {
	Success        bool      `json:"success"`
	ConversationID uuid.UUID `json:"conversationId"`
	Message        string    `json:"message"`
}

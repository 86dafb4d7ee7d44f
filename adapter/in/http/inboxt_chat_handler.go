package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
)

type ChatHandler struct {
	service in.ChatService
}

func NewChatHandler(service in.ChatService) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) Register(router fiber.Router) {
	chat := router.Group("/chat")
	chat.Post("/", h.Send)
	chat.Get("/conversations", h.ListConversations)
	chat.Get("/conversations/:id/messages", h.ListMessages)
}

// Send posts a message and returns {success, conversationId, message}.
// @Router /api/v1/chat [post]
func (h *ChatHandler) Send(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	var req in.ChatRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	resp, err := h.service.Send(c.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// @Router /api/v1/chat/conversations [get]
func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	convs, err := h.service.ListConversations(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []*domain.Conversation{}
	}
	return Success(c, convs)
}

// @Router /api/v1/chat/conversations/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	convID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	msgs, err := h.service.ListMessages(c.UserContext(), userID, convID)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*domain.ChatMessage{}
	}
	return Success(c, msgs)
}

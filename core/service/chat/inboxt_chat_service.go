// Package chat answers questions about a user's mail using their recent digests.
package chat

import (
	"context"
	"errors"
	"fmt"
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

const (
	contextDigests    = 5
	contextSenders    = 5
	defaultConvLimit  = 20
	maxConvLimit      = 100
	systemPromptIntro = `You are InBoxt AI, an assistant that helps users stay on top of their email and tasks. ` +
		`You can see the user's recent email digests and use them to answer questions.

You can:
- answer questions about recent emails
- point out important emails and upcoming deadlines
- suggest how to prioritize tasks
- summarize what happened in the inbox

Keep answers short and suggest concrete next steps when the emails call for them.`
)

// Service implements in.ChatService.
type Service struct {
	chats   out.ChatRepository
	digests out.DigestRepository
	llm     out.ChatLLM
	graph   out.SenderGraph // optional
	now     func() time.Time
}

func NewService(chats out.ChatRepository, digests out.DigestRepository, llm out.ChatLLM, graph out.SenderGraph) *Service {
	return &Service{chats: chats, digests: digests, llm: llm, graph: graph, now: time.Now}
}

// Send appends the user's message to a conversation, creating one when
// req.ConversationID is nil, and returns the assistant's reply.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, req *in.ChatRequest) (*in.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, apperr.ValidationFailed("Message is required")
	}
	if utf8.RuneCountInString(message) > domain.MaxChatMessageLen {
		return nil, apperr.ValidationFailed("Message must be less than 5000 characters")
	}
	log := logger.WithContext(ctx).WithField("user_id", userID.String())

	conv, err := s.conversation(ctx, userID, req.ConversationID, message)
	if err != nil {
		return nil, err
	}

	history, err := s.chats.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, apperr.DatabaseError("list messages", err)
	}

	turns := make([]out.ChatTurn, 0, len(history)+2)
	turns = append(turns, out.ChatTurn{Role: domain.RoleSystem, Content: s.systemPrompt(ctx, userID)})
	for _, m := range history {
		turns = append(turns, out.ChatTurn{Role: m.Role, Content: m.Content})
	}
	turns = append(turns, out.ChatTurn{Role: domain.RoleUser, Content: message})

	if err := s.save(ctx, userID, conv.ID, domain.RoleUser, message); err != nil {
		return nil, err
	}

	reply, err := s.llm.Chat(ctx, turns)
	if err != nil {
		log.WithError(err).Warn("chat completion failed")
		return nil, llmError(err)
	}

	if err := s.save(ctx, userID, conv.ID, domain.RoleAssistant, reply); err != nil {
		return nil, err
	}

	log.Debug("chat reply for conversation %s", conv.ID)
	return &in.ChatResponse{Success: true, ConversationID: conv.ID, Message: reply}, nil
}

func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = defaultConvLimit
	}
	if limit > maxConvLimit {
		limit = maxConvLimit
	}
	convs, err := s.chats.ListConversations(ctx, userID, limit)
	if err != nil {
		return nil, apperr.DatabaseError("list conversations", err)
	}
	return convs, nil
}

func (s *Service) ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]*domain.ChatMessage, error) {
	if _, err := s.getConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.chats.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperr.DatabaseError("list messages", err)
	}
	return msgs, nil
}

func (s *Service) conversation(ctx context.Context, userID uuid.UUID, id *uuid.UUID, message string) (*domain.Conversation, error) {
	if id != nil {
		return s.getConversation(ctx, userID, *id)
	}
	conv, err := s.chats.CreateConversation(ctx, userID, domain.ConversationTitle(message))
	if err != nil {
		return nil, apperr.DatabaseError("create conversation", err)
	}
	return conv, nil
}

func (s *Service) getConversation(ctx context.Context, userID, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.chats.GetConversation(ctx, userID, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return nil, apperr.NotFound("conversation")
		}
		return nil, apperr.DatabaseError("get conversation", err)
	}
	return conv, nil
}

func (s *Service) save(ctx context.Context, userID, convID uuid.UUID, role domain.ChatRole, content string) error {
	err := s.chats.AddMessage(ctx, userID, &domain.ChatMessage{
		ID:             uuid.New(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return apperr.DatabaseError("save message", err)
	}
	return nil
}

// systemPrompt appends the user's recent digests and top senders to the
// assistant instructions. Lookup failures leave that part out.
func (s *Service) systemPrompt(ctx context.Context, userID uuid.UUID) string {
	var b strings.Builder
	b.WriteString(systemPromptIntro)

	digests, err := s.digests.ListRecent(ctx, userID, contextDigests)
	if err != nil {
		logger.WithError(err).Warn("chat: failed to load recent digests")
	}
	writeDigestContext(&b, digests)

	if s.graph != nil {
		senders, err := s.graph.TopSenders(ctx, userID, contextSenders)
		if err != nil {
			logger.WithError(err).Warn("chat: failed to load top senders")
		}
		writeSenderContext(&b, senders)
	}
	return b.String()
}

func writeDigestContext(b *strings.Builder, digests []*domain.Digest) {
	header := false
	for _, d := range digests {
		if len(d.Emails) == 0 {
			continue
		}
		if !header {
			b.WriteString("\n\nRecent Email Summary:\n")
			header = true
		}
		fmt.Fprintf(b, "\nDate: %s\n", d.Date)
		for i, e := range d.Emails {
			fmt.Fprintf(b, "%d. From: %s - %s\n   Gist: %s\n   Importance: %.2f\n", i+1, e.Sender, e.Subject, e.Gist, e.ImportanceScore)
			if e.Deadline != nil {
				fmt.Fprintf(b, "   Deadline: %s\n", *e.Deadline)
			}
		}
	}
}

func writeSenderContext(b *strings.Builder, senders []domain.SenderStat) {
	if len(senders) == 0 {
		return
	}
	b.WriteString("\nSenders who usually send important mail:\n")
	for _, st := range senders {
		fmt.Fprintf(b, "- %s (%d emails, avg importance %.2f)\n", st.Sender, st.Count, st.AvgImportance)
	}
}

func llmError(err error) error {
	switch {
	case errors.Is(err, out.ErrLLMRateLimited):
		return apperr.RateLimited("Rate limit exceeded. Please try again in a moment.").WithError(err)
	case errors.Is(err, out.ErrLLMQuotaExceeded):
		return apperr.QuotaExceeded("AI service quota exceeded. Please contact support.").WithError(err)
	}
	return apperr.ExternalError("llm", err)
}

var _ in.ChatService = (*Service)(nil)

package llm

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"inboxt_server/core/port/out"
	"inboxt_server/pkg/metrics"
)

const (
	chatTemperature = 0.7
	chatMaxTokens   = 1000
)

// Chat returns the assistant reply for a conversation. It is not retried: the
// caller surfaces rate limits to the user instead.
func (c *Client) Chat(ctx context.Context, turns []out.ChatTurn) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	content, err := c.create(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    msgs,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	metrics.LLMCalls.WithLabelValues("chat", metrics.Status(err)).Inc()
	if err != nil {
		return "", classify(err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrInvalidResponse
	}
	return content, nil
}

package out

import (
	"context"
	"errors"

	"inboxt_server/core/domain"
)

var (
	// ErrLLMRateLimited means the model gateway kept answering 429.
	ErrLLMRateLimited = errors.New("llm: rate limited")
	// ErrLLMQuotaExceeded means the gateway refused for billing reasons (402).
	ErrLLMQuotaExceeded = errors.New("llm: quota exceeded")
)

// DigestLLM is the set of completions used to summarize one email.
type DigestLLM interface {
	ExtractGist(ctx context.Context, text string) (string, error)
	// ScoreImportance returns a score clamped into [0,1].
	ScoreImportance(ctx context.Context, text, sender, subject string) (float64, error)
	// ExtractDeadline returns a YYYY-MM-DD date or nil.
	ExtractDeadline(ctx context.Context, text, subject string) (*string, error)
}

// ChatTurn is one message of a chat completion request.
type ChatTurn struct {
	Role    domain.ChatRole
	Content string
}

// ChatLLM produces free-text assistant replies.
type ChatLLM interface {
	Chat(ctx context.Context, turns []ChatTurn) (string, error)
}

// SearchRanker scores candidate items against a natural language query.
type SearchRanker interface {
	RankItems(ctx context.Context, query string, items []domain.SearchItem) ([]domain.SearchHit, error)
}

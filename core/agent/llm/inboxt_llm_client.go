package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"inboxt_server/core/port/out"
	"inboxt_server/pkg/logger"
	"inboxt_server/pkg/metrics"
	"inboxt_server/pkg/resilience"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
	DefaultTitle   = "InBoxt Email Digest"

	// DefaultMaxRetries is used when ClientConfig.MaxRetries is zero.
	DefaultMaxRetries = 1
)

var (
	// ErrRateLimited is returned when the gateway answered 429 on the last attempt.
	ErrRateLimited = out.ErrLLMRateLimited
	// ErrQuotaExceeded is returned on 402 from the gateway.
	ErrQuotaExceeded = out.ErrLLMQuotaExceeded
	// ErrInvalidResponse covers responses without a usable message.
	ErrInvalidResponse = errors.New("llm: invalid response format")
	// ErrInvalidJSON is returned when the completion is not the requested JSON object.
	ErrInvalidJSON = errors.New("llm: invalid JSON response")
)

// ClientConfig configures the completion client.
type ClientConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	ChatModel   string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	// Referer and Title are sent as HTTP-Referer and X-Title for gateway attribution.
	Referer string
	Title   string
	// MaxRetries bounds retries after the first attempt. Zero selects
	// DefaultMaxRetries, a negative value disables retries.
	MaxRetries  int
	BackoffBase time.Duration
}

// Client talks to an OpenAI compatible chat completion endpoint.
type Client struct {
	api         *openai.Client
	model       string
	chatModel   string
	maxTokens   int
	temperature float32
	maxRetries  int
	backoffBase time.Duration
	breaker     *resilience.Breaker
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = cfg.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &headerTransport{
			base: http.DefaultTransport,
			headers: map[string]string{
				"HTTP-Referer": cfg.Referer,
				"X-Title":      cfg.Title,
			},
		},
	}

	bc := resilience.DefaultBreakerConfig("llm-gateway")
	bc.Ignore = func(err error) bool {
		code := statusCode(err)
		return code >= 400 && code < 500 && code != http.StatusTooManyRequests
	}

	return &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		chatModel:   cfg.ChatModel,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		maxRetries:  cfg.MaxRetries,
		backoffBase: cfg.BackoffBase,
		breaker:     resilience.NewBreaker(bc),
	}
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// jsonRequest is one JSON mode completion.
type jsonRequest struct {
	purpose string
	system  string
	prompt  string
	input   any
}

// userMessage appends the input to the prompt; non-string input is JSON encoded.
func userMessage(prompt string, input any) (string, error) {
	switch v := input.(type) {
	case nil:
		return prompt, nil
	case string:
		if v == "" {
			return prompt, nil
		}
		return prompt + "\n\nInput: " + v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode input: %w", err)
		}
		return prompt + "\n\nInput: " + string(data), nil
	}
}

// completeJSON runs a JSON mode completion and decodes the content into dst.
// Rate limiting and transport failures are retried after an exponential backoff,
// malformed JSON immediately, both at most maxRetries times. Well formed JSON that
// does not fit dst is not retried.
func (c *Client) completeJSON(ctx context.Context, r jsonRequest, dst any) error {
	msg, err := userMessage(r.prompt, r.input)
	if err != nil {
		return err
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: r.system},
			{Role: openai.ChatMessageRoleUser, Content: msg},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	log := logger.WithField("purpose", r.purpose)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		content, err := c.create(ctx, req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries && retryable(ctx, err) {
				delay := resilience.Backoff(c.backoffBase, attempt)
				metrics.LLMRetries.WithLabelValues(retryReason(err)).Inc()
				log.WithError(err).Warn("completion failed, retrying in %s", delay)
				if serr := resilience.Sleep(ctx, delay); serr != nil {
					return serr
				}
				continue
			}
			metrics.LLMCalls.WithLabelValues(r.purpose, "error").Inc()
			return classify(err)
		}

		data := []byte(stripFences(content))
		if !json.Valid(data) {
			lastErr = ErrInvalidJSON
			if attempt < c.maxRetries {
				metrics.LLMRetries.WithLabelValues("invalid_json").Inc()
				log.Warn("completion was not valid JSON, retrying")
				continue
			}
			metrics.LLMCalls.WithLabelValues(r.purpose, "error").Inc()
			return lastErr
		}
		if err := json.Unmarshal(data, dst); err != nil {
			metrics.LLMCalls.WithLabelValues(r.purpose, "error").Inc()
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		metrics.LLMCalls.WithLabelValues(r.purpose, "success").Inc()
		return nil
	}
	metrics.LLMCalls.WithLabelValues(r.purpose, "error").Inc()
	return classify(lastErr)
}

// create sends one completion request through the breaker and returns the first message.
func (c *Client) create(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	resp, err := resilience.Do(c.breaker, func() (openai.ChatCompletionResponse, error) {
		return c.api.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrInvalidResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// statusCode extracts the HTTP status of a gateway error, 0 when there was none.
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	code := statusCode(err)
	return code == http.StatusTooManyRequests || code == 0
}

func retryReason(err error) string {
	if statusCode(err) == http.StatusTooManyRequests {
		return "rate_limited"
	}
	return "network"
}

// classify maps gateway statuses onto the package sentinels.
func classify(err error) error {
	switch statusCode(err) {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// stripFences removes a Markdown code fence some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

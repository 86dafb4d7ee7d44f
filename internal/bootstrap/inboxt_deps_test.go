package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/config"
	"inboxt_server/core/agent/llm"
)

// completionServer answers chat completions from a fixed script.
type completionServer struct {
	mu    sync.Mutex
	steps []func(w http.ResponseWriter)
	calls int
	title string
}

func (s *completionServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = r.Header.Get("X-Title")
	if s.calls >= len(s.steps) {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	step := s.steps[s.calls]
	s.calls++
	step(w)
}

func (s *completionServer) snapshot() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, s.title
}

func completion(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
		})
	}
}

func rateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":{"message":"Rate limit exceeded","type":"rate_limit_error"}}`))
}

func TestNewLLMClient_RetriesOnce(t *testing.T) {
	tests := []struct {
		name  string
		steps []func(w http.ResponseWriter)
	}{
		{"rate limited then ok", []func(w http.ResponseWriter){rateLimited, completion(`{"gist":"ok"}`)}},
		{"invalid json then ok", []func(w http.ResponseWriter){completion("not json"), completion(`{"gist":"ok"}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &completionServer{steps: tt.steps}
			ts := httptest.NewServer(srv)
			t.Cleanup(ts.Close)

			cfg := &config.Config{
				LLMAPIKey:     "test-key",
				LLMBaseURL:    ts.URL,
				LLMTimeoutSec: 5,
				AppURL:        "https://inboxt.test",
			}
			gist, err := newLLMClient(cfg).ExtractGist(context.Background(), "body")
			require.NoError(t, err)
			assert.Equal(t, "ok", gist)
			calls, title := srv.snapshot()
			assert.Equal(t, 2, calls)
			assert.Equal(t, llm.DefaultTitle, title)
		})
	}
}

package bootstrap

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxt_server/config"
)

func TestNewAPI_Routes(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:       "jwt-secret",
		ServiceKey:      "svc-key",
		RateLimitPerMin: 100,
		MetricsEnabled:  true,
		Environment:     "test",
	}
	app := NewAPI(&Dependencies{Config: cfg})

	tests := []struct {
		name   string
		method string
		path   string
		header map[string]string
		want   int
	}{
		{"health is public", "GET", "/health", nil, 200},
		{"metrics exposed", "GET", "/metrics", nil, 200},
		{"api needs a token", "GET", "/api/v1/digests/today", nil, 401},
		{"internal needs the service key", "POST", "/internal/digests/run", nil, 401},
		{"wrong service key", "POST", "/internal/digests/run", map[string]string{"X-Service-Key": "nope"}, 401},
		{"unknown route", "GET", "/nope", nil, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCORSConfig(t *testing.T) {
	c := corsConfig([]string{"https://a.example", "https://b.example"}, "https://inboxt.app", true)
	assert.Equal(t, "https://a.example,https://b.example", c.AllowOrigins)
	assert.True(t, c.AllowCredentials)

	c = corsConfig(nil, "https://inboxt.app", true)
	assert.Equal(t, "https://inboxt.app", c.AllowOrigins)

	c = corsConfig([]string{"*"}, "https://inboxt.app", false)
	assert.Equal(t, "http://localhost:3000,http://localhost:5173", c.AllowOrigins)
}

package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	// Required dependencies fail readiness; optional ones are only reported.
	required map[string]Pinger
	optional map[string]Pinger
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{required: map[string]Pinger{}, optional: map[string]Pinger{}}
}

// Require adds a dependency that must be healthy for /ready to pass.
func (h *HealthHandler) Require(name string, p Pinger) *HealthHandler {
	h.required[name] = p
	return h
}

// Report adds a dependency whose state is shown but does not fail /ready.
func (h *HealthHandler) Report(name string, p Pinger) *HealthHandler {
	h.optional[name] = p
	return h
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.required)+len(h.optional))
	ready := true
	for name, p := range h.required {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			ready = false
			continue
		}
		checks[name] = "healthy"
	}
	for name, p := range h.optional {
		if err := p.Ping(ctx); err != nil {
			checks[name] = "degraded: " + err.Error()
			continue
		}
		checks[name] = "healthy"
	}

	status, code := "ready", fiber.StatusOK
	if !ready {
		status, code = "not ready", fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Package http exposes the InBoxt services over a fiber API.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"inboxt_server/pkg/apperr"
)

// APIResponse is the success envelope shared by all JSON endpoints.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// UserID returns the authenticated user set by the JWT middleware.
func UserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals("user_id").(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, apperr.Unauthorized("")
	}
	return id, nil
}

// Success writes data inside the standard envelope.
func Success(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Created is Success with status 201.
func Created(c *fiber.Ctx, data any) error {
	c.Status(fiber.StatusCreated)
	return Success(c, data)
}

func parseBody(c *fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 {
		return apperr.BadRequest("Request body is required")
	}
	if err := c.BodyParser(dst); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	return nil
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidInput(name, "must be a UUID")
	}
	return id, nil
}

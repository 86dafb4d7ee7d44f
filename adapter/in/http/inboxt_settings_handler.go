package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxt_server/core/port/in"
)

type SettingsHandler struct {
	service in.SettingsService
}

func NewSettingsHandler(service in.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

func (h *SettingsHandler) Register(router fiber.Router) {
	router.Get("/settings", h.Get)
	router.Put("/settings", h.Update)
}

// @Router /api/v1/settings [get]
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	prefs, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return Success(c, prefs)
}

// @Router /api/v1/settings [put]
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	var req in.UpdateSettingsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	prefs, err := h.service.Update(c.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return Success(c, prefs)
}

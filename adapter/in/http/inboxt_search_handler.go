package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxt_server/core/port/in"
)

type SearchHandler struct {
	service in.SearchService
}

func NewSearchHandler(service in.SearchService) *SearchHandler {
	return &SearchHandler{service: service}
}

func (h *SearchHandler) Register(router fiber.Router) {
	router.Get("/search", h.Search)
}

// @Router /api/v1/search [get]
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	hits, err := h.service.Search(c.UserContext(), userID, c.Query("q"))
	if err != nil {
		return err
	}
	return Success(c, fiber.Map{"query": c.Query("q"), "results": hits})
}

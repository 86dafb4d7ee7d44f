package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
	"inboxt_server/pkg/apperr"
)

type DigestHandler struct {
	service in.DigestService
	runner  in.DigestRunner
}

func NewDigestHandler(service in.DigestService, runner in.DigestRunner) *DigestHandler {
	return &DigestHandler{service: service, runner: runner}
}

// Register mounts the user facing digest routes.
func (h *DigestHandler) Register(router fiber.Router) {
	digests := router.Group("/digests")
	digests.Post("/initial-fetch", h.InitialFetch)
	digests.Get("/", h.List)
	digests.Get("/today", h.Today)
	digests.Get("/runs", h.ListRuns)
	digests.Get("/:date", h.GetByDate)
}

// RegisterInternal mounts the service-key protected run endpoints.
func (h *DigestHandler) RegisterInternal(router fiber.Router) {
	router.Post("/digests/run", h.RunDaily)
	router.Post("/digests/run/:userId", h.RunUser)
}

// InitialFetch builds today's digest right after Gmail is connected.
// @Router /api/v1/digests/initial-fetch [post]
func (h *DigestHandler) InitialFetch(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	resp, err := h.service.InitialFetch(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(resp)
}

// @Router /api/v1/digests/today [get]
func (h *DigestHandler) Today(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	d, err := h.service.Today(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return Success(c, d)
}

// @Router /api/v1/digests [get]
func (h *DigestHandler) List(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	digests, err := h.service.ListRecent(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if digests == nil {
		digests = []*domain.Digest{}
	}
	return Success(c, digests)
}

// @Router /api/v1/digests/runs [get]
func (h *DigestHandler) ListRuns(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	reports, err := h.service.ListRuns(c.UserContext(), userID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	if reports == nil {
		reports = []*domain.RunReport{}
	}
	return Success(c, reports)
}

// @Router /api/v1/digests/{date} [get]
func (h *DigestHandler) GetByDate(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	d, err := h.service.GetByDate(c.UserContext(), userID, c.Params("date"))
	if err != nil {
		return err
	}
	return Success(c, d)
}

// RunDaily builds digests for every user due now.
// @Router /internal/digests/run [post]
func (h *DigestHandler) RunDaily(c *fiber.Ctx) error {
	summary, err := h.runner.RunDaily(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// RunUser rebuilds one user's digest.
// @Router /internal/digests/run/{userId} [post]
func (h *DigestHandler) RunUser(c *fiber.Ctx) error {
	userID, err := paramUUID(c, "userId")
	if err != nil {
		return err
	}
	res := h.runner.RunUser(c.UserContext(), userID, domain.TriggerManual)
	if res.Status == domain.RunError {
		return apperr.New(apperr.CodeInternalError, res.Error, fiber.StatusInternalServerError).
			WithDetail("user_id", userID.String())
	}
	return Success(c, res)
}

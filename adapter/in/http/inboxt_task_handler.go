package http

import (
	"github.com/gofiber/fiber/v2"

	"inboxt_server/core/domain"
	"inboxt_server/core/port/in"
)

type TaskHandler struct {
	service in.TaskService
}

func NewTaskHandler(service in.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

func (h *TaskHandler) Register(router fiber.Router) {
	tasks := router.Group("/tasks")
	tasks.Get("/", h.List)
	tasks.Post("/", h.Create)
	tasks.Post("/from-digest", h.CreateFromDigest)
	tasks.Patch("/:id", h.Update)
	tasks.Delete("/:id", h.Delete)
}

// List returns the user's tasks, filtered by ?status=pending|completed|all.
// @Router /api/v1/tasks [get]
func (h *TaskHandler) List(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	tasks, err := h.service.List(c.UserContext(), userID, &in.ListTasksRequest{
		Status: c.Query("status"),
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	})
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return Success(c, tasks)
}

// @Router /api/v1/tasks [post]
func (h *TaskHandler) Create(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	var req in.CreateTaskRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	task, err := h.service.Create(c.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return Created(c, task)
}

// @Router /api/v1/tasks/from-digest [post]
func (h *TaskHandler) CreateFromDigest(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	var req in.CreateTaskFromDigestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	task, err := h.service.CreateFromDigest(c.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return Created(c, task)
}

// @Router /api/v1/tasks/{id} [patch]
func (h *TaskHandler) Update(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	taskID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req in.UpdateTaskRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	task, err := h.service.Update(c.UserContext(), userID, taskID, &req)
	if err != nil {
		return err
	}
	return Success(c, task)
}

// @Router /api/v1/tasks/{id} [delete]
func (h *TaskHandler) Delete(c *fiber.Ctx) error {
	userID, err := UserID(c)
	if err != nil {
		return err
	}
	taskID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), userID, taskID); err != nil {
		return err
	}
	return Success(c, nil)
}

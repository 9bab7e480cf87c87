package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/service"
	"github.com/pubgate/gateway/common/bootstrap"
	"github.com/pubgate/gateway/common/repository"
)

// TaskHandler handles task status requests. Task state is the only
// channel through which callers learn the outcome of asynchronous work.
type TaskHandler struct {
	components *bootstrap.Components
	deploys    *service.DeployService
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(c *container.Container) *TaskHandler {
	return &TaskHandler{
		components: c.Components,
		deploys:    c.DeployService,
	}
}

// GetTask retrieves a task by id
// GET /api/v1/tasks/:task_id
func (h *TaskHandler) GetTask(c echo.Context) error {
	ctx := c.Request().Context()

	id, ok := parseID(c, "task_id")
	if !ok {
		return nil
	}

	task, err := h.deploys.GetTask(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "task not found",
		})
	}
	if err != nil {
		h.components.Logger.Error("failed to fetch task", "task_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch task",
		})
	}

	return c.JSON(http.StatusOK, task)
}

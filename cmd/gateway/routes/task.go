package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/handlers"
)

// RegisterTaskRoutes registers task status routes
func RegisterTaskRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewTaskHandler(c)

	tasks := e.Group("/api/v1/tasks")
	{
		tasks.GET("/:task_id", h.GetTask) // GET /api/v1/tasks/{task_id}
	}
}

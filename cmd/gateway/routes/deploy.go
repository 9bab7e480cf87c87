package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/handlers"
)

// RegisterDeployRoutes registers config-deployment and cache-flush routes
func RegisterDeployRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewDeployHandler(c)

	env := e.Group("/api/v1/:env")
	{
		env.POST("/deploy-config", h.DeployConfig) // POST /api/v1/{env}/deploy-config
		env.POST("/cdn-flush", h.FlushCache)       // POST /api/v1/{env}/cdn-flush
	}
}

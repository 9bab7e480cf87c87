package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/handlers"
)

// RegisterPublishRoutes registers all publish-lifecycle routes
func RegisterPublishRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewPublishHandler(c)

	publishes := e.Group("/api/v1/:env/publish")
	{
		publishes.POST("", h.CreatePublish)                    // POST /api/v1/{env}/publish
		publishes.GET("/:publish_id", h.GetPublish)            // GET /api/v1/{env}/publish/{publish_id}
		publishes.PUT("/:publish_id", h.UpdatePublish)         // PUT /api/v1/{env}/publish/{publish_id}
		publishes.POST("/:publish_id/commit", h.CommitPublish) // POST /api/v1/{env}/publish/{publish_id}/commit
	}
}

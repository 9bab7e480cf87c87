package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/service"
	"github.com/pubgate/gateway/common/bootstrap"
	"github.com/pubgate/gateway/common/models"
)

// DeployHandler handles config deployment and ad-hoc cache flushes
type DeployHandler struct {
	components *bootstrap.Components
	deploys    *service.DeployService
}

// NewDeployHandler creates a new deploy handler
func NewDeployHandler(c *container.Container) *DeployHandler {
	return &DeployHandler{
		components: c.Components,
		deploys:    c.DeployService,
	}
}

// DeployConfig accepts a full CDN config document and enqueues its
// deployment
// POST /api/v1/:env/deploy-config
func (h *DeployHandler) DeployConfig(c echo.Context) error {
	ctx := c.Request().Context()

	env, ok := requireEnv(h.components, c)
	if !ok {
		return nil
	}

	var cfg models.CDNConfig
	if err := c.Bind(&cfg); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid config document",
		})
	}

	task, err := h.deploys.DeployConfig(ctx, env.Name, &cfg, time.Now().UTC())
	if err != nil {
		h.components.Logger.Error("failed to enqueue config deployment", "env", env.Name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to enqueue config deployment",
		})
	}

	return c.JSON(http.StatusOK, task)
}

// FlushCache enqueues an ad-hoc cache flush for specific paths
// POST /api/v1/:env/cdn-flush
func (h *DeployHandler) FlushCache(c echo.Context) error {
	ctx := c.Request().Context()

	env, ok := requireEnv(h.components, c)
	if !ok {
		return nil
	}

	var req []struct {
		WebURI string `json:"web_uri"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if len(req) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "at least one web_uri is required",
		})
	}

	paths := make([]string, 0, len(req))
	for _, item := range req {
		if item.WebURI == "" {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": "web_uri cannot be empty",
			})
		}
		paths = append(paths, item.WebURI)
	}

	task, err := h.deploys.FlushCache(ctx, env.Name, paths)
	if err != nil {
		h.components.Logger.Error("failed to enqueue cache flush", "env", env.Name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to enqueue cache flush",
		})
	}

	return c.JSON(http.StatusOK, task)
}

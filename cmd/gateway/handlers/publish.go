package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pubgate/gateway/cmd/gateway/container"
	"github.com/pubgate/gateway/cmd/gateway/service"
	"github.com/pubgate/gateway/common/bootstrap"
	"github.com/pubgate/gateway/common/config"
	"github.com/pubgate/gateway/common/models"
	"github.com/pubgate/gateway/common/repository"
	"github.com/pubgate/gateway/common/validation"
)

// PublishHandler handles publish lifecycle requests
type PublishHandler struct {
	components *bootstrap.Components
	publishes  *service.PublishService
}

// NewPublishHandler creates a new publish handler
func NewPublishHandler(c *container.Container) *PublishHandler {
	return &PublishHandler{
		components: c.Components,
		publishes:  c.PublishService,
	}
}

// CreatePublish creates a new pending publish
// POST /api/v1/:env/publish
func (h *PublishHandler) CreatePublish(c echo.Context) error {
	ctx := c.Request().Context()

	env, ok := requireEnv(h.components, c)
	if !ok {
		return nil
	}

	publish, err := h.publishes.Create(ctx, env.Name)
	if err != nil {
		h.components.Logger.Error("failed to create publish", "env", env.Name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to create publish",
		})
	}

	return c.JSON(http.StatusCreated, publish)
}

// GetPublish retrieves a publish with its items
// GET /api/v1/:env/publish/:publish_id
func (h *PublishHandler) GetPublish(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := requireEnv(h.components, c); !ok {
		return nil
	}
	id, ok := parseID(c, "publish_id")
	if !ok {
		return nil
	}

	publish, err := h.publishes.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "publish not found",
		})
	}
	if err != nil {
		h.components.Logger.Error("failed to fetch publish", "publish_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to fetch publish",
		})
	}

	return c.JSON(http.StatusOK, publish)
}

// UpdatePublish adds items to a pending publish
// PUT /api/v1/:env/publish/:publish_id
//
// Policy validation is skipped when the X-Ignore-Policy header is set;
// whether a caller is trusted with that header is the proxy's decision,
// not ours.
func (h *PublishHandler) UpdatePublish(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := requireEnv(h.components, c); !ok {
		return nil
	}
	id, ok := parseID(c, "publish_id")
	if !ok {
		return nil
	}

	var items []models.Item
	if err := c.Bind(&items); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if len(items) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "items array is required and cannot be empty",
		})
	}

	enforcePolicy := c.Request().Header.Get("X-Ignore-Policy") == ""

	err := h.publishes.AddItems(ctx, id, items, enforcePolicy)
	if err != nil {
		var itemErr *validation.ItemError
		var policyErr *validation.PolicyError
		switch {
		case errors.As(err, &itemErr), errors.As(err, &policyErr):
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error": err.Error(),
			})
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "publish not found",
			})
		case errors.Is(err, service.ErrStateConflict):
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"error": err.Error(),
			})
		}
		h.components.Logger.Error("failed to add items", "publish_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to add items",
		})
	}

	h.components.Logger.Info("added publish items",
		"publish_id", id,
		"item_count", len(items))

	return c.NoContent(http.StatusOK)
}

// CommitPublish commits a pending publish, making its items live
// POST /api/v1/:env/publish/:publish_id/commit
func (h *PublishHandler) CommitPublish(c echo.Context) error {
	ctx := c.Request().Context()

	if _, ok := requireEnv(h.components, c); !ok {
		return nil
	}
	id, ok := parseID(c, "publish_id")
	if !ok {
		return nil
	}

	publish, err := h.publishes.Commit(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "publish not found",
		})
	}
	if errors.Is(err, service.ErrStateConflict) {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		h.components.Logger.Error("publish commit failed", "publish_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "commit failed",
		})
	}

	return c.JSON(http.StatusOK, publish)
}

// requireEnv resolves the :env path param to a configured CDN
// environment. On unknown environments a 404 is written and ok is false.
func requireEnv(components *bootstrap.Components, c echo.Context) (*config.Environment, bool) {
	name := c.Param("env")
	env := components.Config.GetEnvironment(name)
	if env == nil {
		_ = c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "no such environment: " + name,
		})
		return nil, false
	}
	return env, true
}

// parseID parses a UUID path param. On malformed input a 400 is
// written and ok is false.
func parseID(c echo.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		_ = c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": param + " must be a valid UUID",
		})
		return uuid.Nil, false
	}
	return id, true
}

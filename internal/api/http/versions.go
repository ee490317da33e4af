package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListVersions returns an app's current, pending and archived builds.
func (h *Handlers) ListVersions(c *gin.Context) {
	ctx := c.Request.Context()
	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	versions, err := h.apps.ListVersions(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

// PromoteVersion makes an archived build current again.
func (h *Handlers) PromoteVersion(c *gin.Context) {
	var err error
	defer h.track.TrackRegistryOperation("promote", &err)()
	ctx := c.Request.Context()

	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	buildID := c.Param("buildId")
	app, err = h.apps.Promote(ctx, app.ID, buildID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Version promoted", zap.String("app_id", app.ID), zap.String("build_id", buildID))
	c.JSON(http.StatusOK, app)
}

// ApprovePending publishes the build waiting for review.
func (h *Handlers) ApprovePending(c *gin.Context) {
	var err error
	defer h.track.TrackRegistryOperation("approve", &err)()
	ctx := c.Request.Context()

	app, err := h.owned(ctx, c, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	app, err = h.apps.ApprovePending(ctx, app.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("Pending build approved", zap.String("app_id", app.ID), zap.String("build_id", app.BuildID))
	c.JSON(http.StatusOK, app)
}

package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/domain/registry"
	"github.com/thesara-space/forge/internal/shared/types"
)

// ListApps lists every app record.
func (h *Handlers) ListApps(c *gin.Context) {
	apps, err := h.apps.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	if apps == nil {
		apps = []*types.AppRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps})
}

// ConfigureApp creates or updates an app's owner, capabilities and policy.
func (h *Handlers) ConfigureApp(c *gin.Context) {
	var err error
	defer h.track.TrackRegistryOperation("configure", &err)()

	var cfg registry.AppConfig
	if err = c.ShouldBindJSON(&cfg); err != nil {
		h.badRequest(c, "invalid app config")
		return
	}
	app, err := h.apps.Configure(c.Request.Context(), c.Param("id"), cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.logger.Info("App configured",
		zap.String("app_id", app.ID),
		zap.String("by", middleware.IdentityFrom(c).UserID))
	c.JSON(http.StatusOK, app)
}

// DeleteApp removes an app record. Its builds become orphans.
func (h *Handlers) DeleteApp(c *gin.Context) {
	if err := h.apps.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ScanBuilds reports build directories and what is reclaimable.
func (h *Handlers) ScanBuilds(c *gin.Context) {
	var err error
	defer h.track.TrackMaintenanceOperation("scan", &err)()

	report, err := h.sweeper.Scan(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PruneBuilds deletes reclaimable build directories when confirm=true and
// otherwise reports what would be deleted.
func (h *Handlers) PruneBuilds(c *gin.Context) {
	var err error
	defer h.track.TrackMaintenanceOperation("prune", &err)()

	confirm, _ := strconv.ParseBool(c.Query("confirm"))
	report, err := h.sweeper.Prune(c.Request.Context(), confirm)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if confirm {
		h.logger.Info("Build prune confirmed",
			zap.String("by", middleware.IdentityFrom(c).UserID),
			zap.Int("pruned", len(report.Pruned)))
	}
	c.JSON(http.StatusOK, report)
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/domain/artifact"
	"github.com/thesara-space/forge/internal/domain/build"
	"github.com/thesara-space/forge/internal/domain/bundler"
	"github.com/thesara-space/forge/internal/domain/gateway"
	"github.com/thesara-space/forge/internal/domain/kv"
	"github.com/thesara-space/forge/internal/domain/maintenance"
	"github.com/thesara-space/forge/internal/domain/registry"
	"github.com/thesara-space/forge/internal/domain/session"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
)

// Version is reported by the root endpoint.
const Version = "0.4.0"

// Pinger checks that the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the components the handlers serve.
type Deps struct {
	Builds   *build.Manager
	Apps     *registry.Manager
	Store    *artifact.Store
	Gateway  *gateway.Gateway
	KV       *kv.Store
	Sessions *session.Manager
	Sweeper  *maintenance.Sweeper
	DB       Pinger
	Metrics  *monitoring.Metrics
	Logger   *zap.Logger

	// SourceLimits bound build submissions.
	SourceLimits bundler.Limits
	// PatchLimiter throttles storage patches per (caller, namespace).
	PatchLimiter *middleware.KeyedLimiter
	// PinLimiter throttles PIN and room PIN attempts per (client, app).
	PinLimiter *middleware.KeyedLimiter
}

// Handlers contains all HTTP handlers
type Handlers struct {
	builds   *build.Manager
	apps     *registry.Manager
	store    *artifact.Store
	gateway  *gateway.Gateway
	kv       *kv.Store
	sessions *session.Manager
	sweeper  *maintenance.Sweeper
	db       Pinger
	track    *HandlerMetrics
	logger   *zap.Logger

	limits  bundler.Limits
	patches *middleware.KeyedLimiter
	pins    *middleware.KeyedLimiter
	started time.Time
}

// NewHandlers creates a new handler set
func NewHandlers(d Deps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SourceLimits.MaxBytes <= 0 {
		d.SourceLimits = bundler.DefaultLimits(0)
	}
	if d.PatchLimiter == nil {
		d.PatchLimiter = middleware.NewWindowLimiter(6, 10*time.Second)
	}
	if d.PinLimiter == nil {
		d.PinLimiter = middleware.NewWindowLimiter(10, time.Minute)
	}
	return &Handlers{
		builds:   d.Builds,
		apps:     d.Apps,
		store:    d.Store,
		gateway:  d.Gateway,
		kv:       d.KV,
		sessions: d.Sessions,
		sweeper:  d.Sweeper,
		db:       d.DB,
		track:    NewHandlerMetrics(d.Metrics),
		logger:   d.Logger,
		limits:   d.SourceLimits,
		patches:  d.PatchLimiter,
		pins:     d.PinLimiter,
		started:  time.Now(),
	}
}

// Register mounts every route on r. The build events websocket is mounted
// by the server.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	builds := r.Group("/builds")
	{
		builds.POST("", middleware.RequireUser(), h.SubmitBuild)
		builds.GET("/:id", h.GetBuild)
		builds.GET("/:id/index", h.GetBuildIndex)
		builds.GET("/:id/bundle/*file", h.ServeArtifact)
	}

	r.GET("/api/proxy", h.Proxy)

	r.GET("/storage", h.GetStorage)
	r.PATCH("/storage", h.PatchStorage)

	apps := r.Group("/apps/:id")
	{
		apps.POST("/pin/verify", h.VerifyPin)
		apps.POST("/pin/touch", h.TouchSession)
		apps.GET("/pin/sessions", h.ListSessions)
		apps.POST("/pin/sessions/:sid/revoke", h.RevokeSession)
		apps.POST("/pin/revoke-all", h.RevokeAllSessions)
		apps.POST("/pin/rotate", h.RotatePin)
		apps.PUT("/pin", h.SetPin)

		apps.GET("/rooms", h.ListRooms)
		apps.GET("/builds", h.ListBuilds)
		apps.GET("/versions", h.ListVersions)
		apps.POST("/versions/:buildId/promote", h.PromoteVersion)
		apps.POST("/approve", h.ApprovePending)
	}

	rooms := r.Group("/rooms")
	{
		rooms.POST("/create", h.CreateRoom)
		rooms.POST("/join", h.JoinRoom)
		rooms.POST("/demo", h.DemoRoom)
	}

	admin := r.Group("/admin", middleware.RequireAdmin())
	{
		admin.GET("/apps", h.ListApps)
		admin.PUT("/apps/:id", h.ConfigureApp)
		admin.DELETE("/apps/:id", h.DeleteApp)
		admin.GET("/maintenance/builds", h.ScanBuilds)
		admin.POST("/maintenance/prune", h.PruneBuilds)
	}
}

// Root handles health check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "forge",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	database := gin.H{"connected": true}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			database = gin.H{"connected": false, "error": err.Error()}
		}
	}
	c.JSON(code, gin.H{
		"status":         status,
		"database":       database,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpHandlers "github.com/thesara-space/forge/internal/api/http"
	"github.com/thesara-space/forge/internal/api/middleware"
	"github.com/thesara-space/forge/internal/api/ws"
	"github.com/thesara-space/forge/internal/domain/bundler"
	"github.com/thesara-space/forge/internal/infrastructure/config"
	"github.com/thesara-space/forge/internal/infrastructure/logging"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and its dependencies
type Server struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	components *Components
	tracer     *tracing.Tracer
	logger     *logging.Logger
	metrics    *monitoring.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// Options overrides process-wide defaults, mainly for tests.
type Options struct {
	Logger     *logging.Logger
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewServer creates a server registered with the default Prometheus
// registry.
func NewServer(cfg *config.Config) (*Server, error) {
	return New(cfg, Options{})
}

// New creates a server, wiring every component and route.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewFromLevel(cfg.Logging.Level, cfg.Logging.Development)
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger
	metrics := monitoring.NewMetrics(opts.Registerer)

	ctx, cancel := context.WithCancel(context.Background())
	components, err := Open(ctx, cfg, metrics, logger.Logger)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		components: components,
		tracer:     tracing.New("forge", logger.Logger),
		logger:     logger,
		metrics:    metrics,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.router = s.setupRouter(opts.Gatherer)
	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(s.done)
		components.Sessions.Run(ctx, cfg.Access.SweepInterval)
	}()

	logger.Info("Server initialized",
		zap.String("addr", s.httpServer.Addr),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("cdn", cfg.Build.CDNBase),
	)
	return s, nil
}

func (s *Server) setupRouter(gatherer prometheus.Gatherer) *gin.Engine {
	if !s.cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		tracing.HTTPMiddleware(s.tracer),
		monitoring.Middleware(s.metrics),
		middleware.CORS(middleware.DefaultCORSConfig(s.cfg.Server.AllowedOrigins)),
	)
	if s.cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
			Burst:             max(s.cfg.RateLimit.RequestsPerSecond, s.cfg.RateLimit.Burst),
		}))
	}
	router.Use(middleware.Attach())

	c := s.components
	handlers := httpHandlers.NewHandlers(httpHandlers.Deps{
		Builds:       c.Builds,
		Apps:         c.Apps,
		Store:        c.Store,
		Gateway:      c.Gateway,
		KV:           c.KV,
		Sessions:     c.Sessions,
		Sweeper:      c.Sweeper,
		DB:           c.DB,
		Metrics:      s.metrics,
		Logger:       s.logger.Logger,
		SourceLimits: bundler.DefaultLimits(s.cfg.Build.MaxSourceMB),
		PatchLimiter: middleware.NewWindowLimiter(s.cfg.KV.PatchPerWindow, s.cfg.KV.PatchWindow),
	})
	handlers.Register(router)

	events := ws.NewHandler(c.Builds, s.cfg.Server.AllowedOrigins, s.logger.Logger).WithMetrics(s.metrics)
	router.GET("/builds/:id/events", events.HandleBuildEvents)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Components returns the wired domain services.
func (s *Server) Components() *Components {
	return s.components
}

// Run serves until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests and
// builds, then releases every resource.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop http server: %w", err))
	}
	s.cancel()
	<-s.done
	if err := s.components.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	s.tracer.Close()
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/domain/artifact"
	"github.com/thesara-space/forge/internal/domain/build"
	"github.com/thesara-space/forge/internal/domain/bundler"
	"github.com/thesara-space/forge/internal/domain/gateway"
	"github.com/thesara-space/forge/internal/domain/kv"
	"github.com/thesara-space/forge/internal/domain/maintenance"
	"github.com/thesara-space/forge/internal/domain/registry"
	"github.com/thesara-space/forge/internal/domain/resolver"
	"github.com/thesara-space/forge/internal/domain/session"
	"github.com/thesara-space/forge/internal/domain/styles"
	"github.com/thesara-space/forge/internal/infrastructure/config"
	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/infrastructure/httpclient"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/infrastructure/objectstore"
)

// Components are the wired domain services shared by the server and the
// maintenance CLI.
type Components struct {
	DB       *database.DB
	Apps     *registry.Manager
	Store    *artifact.Store
	Builds   *build.Manager
	Repo     *build.Repository
	Gateway  *gateway.Gateway
	KV       *kv.Store
	Sessions *session.Manager
	Sweeper  *maintenance.Sweeper
	Metrics  *monitoring.Metrics

	logger *zap.Logger
}

// Open opens the database and wires every domain service. Builds a previous
// process left running are failed before Open returns.
func Open(ctx context.Context, cfg *config.Config, metrics *monitoring.Metrics, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(ctx, cfg.Storage.Database(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c := &Components{DB: db, Metrics: metrics, logger: logger}
	if err := c.wire(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) wire(ctx context.Context, cfg *config.Config) error {
	logger := c.logger

	c.Apps = registry.NewManager(c.DB, cfg.Versions.ArchiveTTL, logger)
	if cfg.Storage.AppsDir != "" {
		if _, _, err := registry.NewSeeder(c.Apps, cfg.Storage.AppsDir, logger).Seed(ctx); err != nil {
			return fmt.Errorf("failed to seed apps: %w", err)
		}
	}

	catalog := resolver.DefaultCatalog()
	if cfg.Build.CatalogPath != "" {
		loaded, err := resolver.LoadCatalog(cfg.Build.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
		catalog = loaded
	}
	cache, err := resolver.NewCache(cfg.Build.CacheDir)
	if err != nil {
		return fmt.Errorf("failed to open module cache: %w", err)
	}
	res, err := resolver.New(resolver.Config{
		CDNBase: cfg.Build.CDNBase,
		Catalog: catalog,
		Cache:   cache,
		Fetcher: &resolver.HTTPFetcher{Client: httpclient.NewFetchClient(httpclient.FetchConfig{
			Timeout:  cfg.Build.FetchTimeout,
			RetryMax: 2,
			Logger:   logger,
		})},
		Timeout: cfg.Build.FetchTimeout,
		Logger:  logger,
		Metrics: c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create resolver: %w", err)
	}

	c.Store, err = artifact.NewStore(cfg.Build.Root, logger)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	c.Repo = build.NewRepository(c.DB)
	c.Builds = build.NewManager(c.Repo, c.Store, build.Stages{
		Bundler: bundler.New(res, logger),
		Styles:  styles.New(cfg.Build.Safelist),
	}, c.Apps, build.Config{
		Timeout:       cfg.Build.BuildTimeout,
		MaxConcurrent: cfg.Build.MaxConcurrent,
	}, logger).WithMetrics(c.Metrics)

	if cfg.Mirror.Enabled() {
		mirror, err := objectstore.NewS3Mirror(ctx, objectstore.Options{
			Bucket:   cfg.Mirror.Bucket,
			Region:   cfg.Mirror.Region,
			Prefix:   cfg.Mirror.Prefix,
			Endpoint: cfg.Mirror.Endpoint,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create artifact mirror: %w", err)
		}
		c.Builds.WithMirror(mirror)
		logger.Info("Mirroring published artifacts", zap.String("bucket", cfg.Mirror.Bucket))
	}
	if err := c.Builds.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover builds: %w", err)
	}

	egress := httpclient.NewEgressClient(httpclient.EgressConfig{Timeout: cfg.Proxy.Timeout})
	c.Gateway = gateway.New(c.Apps, egress, cfg.Proxy.DefaultMaxBodyMB, logger).WithMetrics(c.Metrics)
	c.KV = kv.NewStore(c.DB, logger).WithMetrics(c.Metrics)

	c.Sessions = session.NewManager(c.DB, c.Apps, session.Config{
		SessionTTL:     cfg.Access.SessionTTL,
		MaxAge:         cfg.Access.SessionMaxAge,
		IdentitySalt:   cfg.Access.IdentitySalt,
		LegacyPath:     cfg.Access.LegacySessionPath,
		TokenSecret:    cfg.Access.RoomTokenSecret,
		TokenTTL:       cfg.Access.RoomTokenTTL,
		MaxRoomsPerApp: cfg.Access.MaxRoomsPerApp,
		DemoPin:        cfg.Access.DemoRoomPin,
	}, logger).WithMetrics(c.Metrics)
	if cfg.Access.RoomTokenSecret == "" {
		logger.Warn("ROOM_TOKEN_SECRET not set, room tokens will not survive a restart")
	}
	if n, err := c.Sessions.ImportLegacy(ctx); err != nil {
		logger.Warn("Legacy session import failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("Imported legacy sessions", zap.Int("count", n))
	}

	c.Sweeper = maintenance.NewSweeper(c.Apps, c.Repo, c.Store, cfg.Maintenance.OrphanRetention, logger)
	return nil
}

// Close waits for running builds and closes the database.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Builds != nil {
		if err := c.Builds.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop builds: %w", err))
		}
	}
	if err := c.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	return errors.Join(errs...)
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/domain/artifact"
	"github.com/thesara-space/forge/internal/domain/build"
	"github.com/thesara-space/forge/internal/domain/maintenance"
	"github.com/thesara-space/forge/internal/domain/registry"
	"github.com/thesara-space/forge/internal/domain/session"
	"github.com/thesara-space/forge/internal/infrastructure/config"
	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/infrastructure/logging"
)

// env is the subset of services the CLI works on. Unlike the server it never
// touches running builds.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *database.DB
	apps     *registry.Manager
	builds   *build.Repository
	store    *artifact.Store
	sessions *session.Manager
	sweeper  *maintenance.Sweeper
	json     bool
}

func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dir := v.GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
		cfg.Build.Root = dir
		cfg.Build.CacheDir = filepath.Join(dir, "cdn-cache")
	}
	if p := v.GetString("db-path"); p != "" {
		cfg.Storage.DBPath = p
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func openEnv(ctx context.Context, v *viper.Viper) (*env, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, err
	}
	logger := logging.NewFromLevel(cfg.Logging.Level, true).Logger

	db, err := database.Open(ctx, cfg.Storage.Database(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	store, err := artifact.NewStore(cfg.Build.Root, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}

	apps := registry.NewManager(db, cfg.Versions.ArchiveTTL, logger)
	builds := build.NewRepository(db)
	return &env{
		cfg:    cfg,
		logger: logger,
		db:     db,
		apps:   apps,
		builds: builds,
		store:  store,
		sessions: session.NewManager(db, apps, session.Config{
			SessionTTL:   cfg.Access.SessionTTL,
			MaxAge:       cfg.Access.SessionMaxAge,
			IdentitySalt: cfg.Access.IdentitySalt,
			LegacyPath:   cfg.Access.LegacySessionPath,
		}, logger),
		sweeper: maintenance.NewSweeper(apps, builds, store, cfg.Maintenance.OrphanRetention, logger),
		json:    v.GetBool("json"),
	}, nil
}

func (e *env) Close() {
	_ = e.logger.Sync()
	_ = e.db.Close()
}

// print writes v as indented JSON when --json is set, else calls text.
func (e *env) print(w io.Writer, v interface{}, text func(w io.Writer)) error {
	if e.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// SeedFile is one app definition on disk. JSON files parse the same way.
//
//	id: weather
//	owner_id: alice
//	title: Weather
//	capabilities: {storage: true}
//	security:
//	  network:
//	    mode: proxy
//	    allowlist: [api.open-meteo.com]
//	    rate_limit: {rps: 2, burst: 2}
type SeedFile struct {
	ID        string `yaml:"id"`
	AppConfig `yaml:",inline"`
}

// Seeder loads app definitions from a directory on startup.
type Seeder struct {
	manager *Manager
	dir     string
	logger  *zap.Logger
}

// NewSeeder creates a seeder for dir.
func NewSeeder(manager *Manager, dir string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{manager: manager, dir: dir, logger: logger}
}

// Seed configures every app found under the directory. Existing records
// keep their build and version fields. A missing directory is not an
// error; a malformed file is logged and skipped.
func (s *Seeder) Seed(ctx context.Context) (loaded, failed int, err error) {
	if s.dir == "" {
		return 0, 0, nil
	}
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("App seed directory not found", zap.String("dir", s.dir))
		return 0, 0, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.dir), "**/*.{yaml,yml,json}")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan seed directory: %w", err)
	}

	for _, rel := range matches {
		if err := s.seedFile(ctx, filepath.Join(s.dir, filepath.FromSlash(rel))); err != nil {
			s.logger.Warn("Failed to seed app", zap.String("file", rel), zap.Error(err))
			failed++
			continue
		}
		loaded++
	}
	s.logger.Info("Seeding complete", zap.Int("loaded", loaded), zap.Int("failed", failed))
	return loaded, failed, nil
}

func (s *Seeder) seedFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	_, err = s.manager.Configure(ctx, f.ID, f.AppConfig)
	return err
}

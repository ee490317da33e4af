package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Storage     StorageConfig
	Build       BuildConfig
	Proxy       ProxyConfig
	KV          KVConfig
	Access      AccessConfig
	Versions    VersionConfig
	Maintenance MaintenanceConfig
	Mirror      MirrorConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	AllowedOrigins  []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// StorageConfig locates on-disk state.
type StorageConfig struct {
	DataDir string `envconfig:"DATA_DIR" default:"./data"`
	DBPath  string `envconfig:"DB_PATH" default:""`
	// AppsDir holds app definition files seeded into the registry at start.
	AppsDir string `envconfig:"APPS_DIR" default:""`
}

// Database returns the SQLite path, defaulting inside DataDir.
func (s StorageConfig) Database() string {
	if s.DBPath != "" {
		return s.DBPath
	}
	return filepath.Join(s.DataDir, "forge.db")
}

// BuildConfig configures the build pipeline.
type BuildConfig struct {
	Root          string        `envconfig:"BUILD_ROOT" default:""`
	CacheDir      string        `envconfig:"CDN_CACHE_DIR" default:""`
	CDNBase       string        `envconfig:"CDN_BASE" default:"https://esm.sh"`
	CatalogPath   string        `envconfig:"CATALOG_PATH" default:""`
	FetchTimeout  time.Duration `envconfig:"FETCH_TIMEOUT" default:"20s"`
	BuildTimeout  time.Duration `envconfig:"BUILD_TIMEOUT" default:"2m"`
	MaxConcurrent int           `envconfig:"BUILD_MAX_CONCURRENT" default:"4"`
	MaxSourceMB   int           `envconfig:"BUILD_MAX_SOURCE_MB" default:"10"`
	Safelist      []string      `envconfig:"STYLE_SAFELIST" default:""`
}

// ProxyConfig configures the egress gateway.
type ProxyConfig struct {
	Timeout          time.Duration `envconfig:"PROXY_TIMEOUT" default:"15s"`
	DefaultMaxBodyMB int           `envconfig:"PROXY_MAX_BODY_MB" default:"5"`
}

// KVConfig configures namespaced storage.
type KVConfig struct {
	PatchPerWindow int           `envconfig:"KV_PATCH_LIMIT" default:"6"`
	PatchWindow    time.Duration `envconfig:"KV_PATCH_WINDOW" default:"10s"`
}

// AccessConfig configures PIN sessions and room tokens.
type AccessConfig struct {
	SessionTTL        time.Duration `envconfig:"PIN_SESSION_TTL" default:"720h"`
	SessionMaxAge     time.Duration `envconfig:"PIN_SESSION_MAX_AGE" default:"0"`
	SweepInterval     time.Duration `envconfig:"PIN_SESSION_SWEEP_INTERVAL" default:"10m"`
	IdentitySalt      string        `envconfig:"PIN_IDENTITY_SALT" default:"forge"`
	LegacySessionPath string        `envconfig:"PIN_SESSION_LEGACY_PATH" default:""`
	RoomTokenSecret   string        `envconfig:"ROOM_TOKEN_SECRET" default:""`
	RoomTokenTTL      time.Duration `envconfig:"ROOM_TOKEN_TTL" default:"12h"`
	MaxRoomsPerApp    int           `envconfig:"ROOMS_MAX_PER_APP" default:"10"`
	DemoRoomPin       string        `envconfig:"ROOMS_DEMO_PIN" default:"1111"`
}

// VersionConfig configures version retention.
type VersionConfig struct {
	ArchiveTTL time.Duration `envconfig:"ARCHIVE_TTL" default:"720h"`
}

// MaintenanceConfig configures orphan reclamation.
type MaintenanceConfig struct {
	OrphanRetention time.Duration `envconfig:"ORPHAN_RETENTION" default:"168h"`
}

// MirrorConfig configures the optional S3 artifact mirror.
type MirrorConfig struct {
	Bucket   string `envconfig:"MIRROR_S3_BUCKET" default:""`
	Region   string `envconfig:"MIRROR_S3_REGION" default:"us-east-1"`
	Prefix   string `envconfig:"MIRROR_S3_PREFIX" default:"builds"`
	Endpoint string `envconfig:"MIRROR_S3_ENDPOINT" default:""`
}

// Enabled reports whether a bucket is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Bucket != ""
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			AllowedOrigins:  []string{"http://localhost:3000"},
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Build: BuildConfig{
			CDNBase:       "https://esm.sh",
			FetchTimeout:  20 * time.Second,
			BuildTimeout:  2 * time.Minute,
			MaxConcurrent: 4,
			MaxSourceMB:   10,
		},
		Proxy: ProxyConfig{
			Timeout:          15 * time.Second,
			DefaultMaxBodyMB: 5,
		},
		KV: KVConfig{
			PatchPerWindow: 6,
			PatchWindow:    10 * time.Second,
		},
		Access: AccessConfig{
			SessionTTL:     30 * 24 * time.Hour,
			SweepInterval:  10 * time.Minute,
			IdentitySalt:   "forge",
			RoomTokenTTL:   12 * time.Hour,
			MaxRoomsPerApp: 10,
			DemoRoomPin:    "1111",
		},
		Versions: VersionConfig{
			ArchiveTTL: 30 * 24 * time.Hour,
		},
		Maintenance: MaintenanceConfig{
			OrphanRetention: 7 * 24 * time.Hour,
		},
		Mirror: MirrorConfig{
			Region: "us-east-1",
			Prefix: "builds",
		},
	}
	cfg.applyDerived()
	return cfg
}

// applyDerived fills paths that default relative to DataDir.
func (c *Config) applyDerived() {
	if c.Build.Root == "" {
		c.Build.Root = c.Storage.DataDir
	}
	if c.Build.CacheDir == "" {
		c.Build.CacheDir = filepath.Join(c.Storage.DataDir, "cdn-cache")
	}
	c.Build.CDNBase = strings.TrimRight(c.Build.CDNBase, "/")
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Build.MaxConcurrent < 1 {
		errs = append(errs, errors.New("BUILD_MAX_CONCURRENT must be at least 1"))
	}
	if !strings.HasPrefix(c.Build.CDNBase, "http://") && !strings.HasPrefix(c.Build.CDNBase, "https://") {
		errs = append(errs, fmt.Errorf("CDN_BASE must be an http(s) URL, got %q", c.Build.CDNBase))
	}
	if c.KV.PatchPerWindow < 1 || c.KV.PatchWindow <= 0 {
		errs = append(errs, errors.New("KV_PATCH_LIMIT and KV_PATCH_WINDOW must be positive"))
	}
	if c.Versions.ArchiveTTL <= 0 {
		errs = append(errs, errors.New("ARCHIVE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

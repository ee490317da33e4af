package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

const (
	// MaxCacheSize is the most app records kept in memory.
	MaxCacheSize = 1000
	// CacheEvictionThreshold triggers eviction (90% of max).
	CacheEvictionThreshold = 900
)

// Manager handles app record persistence.
type Manager struct {
	db         *database.DB
	archiveTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time

	apps      sync.Map
	cacheSize int64
	evicting  int32
}

// NewManager creates a registry. Archived versions older than archiveTTL
// are dropped on the next version bump.
func NewManager(db *database.DB, archiveTTL time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{db: db, archiveTTL: archiveTTL, logger: logger, now: time.Now}
}

// AppConfig is the externally owned part of an app record.
type AppConfig struct {
	OwnerID      string               `json:"owner_id" yaml:"owner_id"`
	Title        string               `json:"title" yaml:"title"`
	Capabilities types.Capabilities   `json:"capabilities" yaml:"capabilities"`
	Security     types.SecurityPolicy `json:"security" yaml:"security"`
}

// Validate checks and normalizes the config.
func (c *AppConfig) Validate() error {
	if err := utils.ValidateID(c.OwnerID, "owner_id", true); err != nil {
		return apperr.Wrap(err, apperr.InputInvalid, "invalid owner")
	}
	if err := utils.ValidateString(c.Title, "title", 0, 200, false); err != nil {
		return apperr.Wrap(err, apperr.InputInvalid, "invalid title")
	}

	net := &c.Security.Network
	switch net.Mode {
	case "":
		net.Mode = types.NetworkStrict
	case types.NetworkStrict, types.NetworkProxy, types.NetworkDirectProxy:
	default:
		return apperr.E(apperr.InputInvalid, "unknown network mode %q", net.Mode)
	}
	hosts := make([]string, 0, len(net.Allowlist))
	for _, h := range net.Allowlist {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if strings.ContainsAny(h, "/:@ ") {
			return apperr.E(apperr.InputInvalid, "allowlist entry %q must be a bare hostname", h)
		}
		hosts = append(hosts, h)
	}
	net.Allowlist = hosts
	if net.RateLimit.RPS < 0 || net.RateLimit.Burst < 0 || net.RateLimit.MaxBodyMB < 0 {
		return apperr.E(apperr.InputInvalid, "rate limit values must not be negative")
	}
	return nil
}

// Configure creates or updates an app's externally owned fields. Build
// and version fields are left untouched.
func (m *Manager) Configure(ctx context.Context, appID string, cfg AppConfig) (*types.AppRecord, error) {
	if err := utils.ValidateID(appID, "app_id", true); err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid app id")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return m.update(ctx, appID, true, func(rec *types.AppRecord) error {
		rec.OwnerID = cfg.OwnerID
		rec.Title = cfg.Title
		rec.Capabilities = cfg.Capabilities
		rec.Security = cfg.Security
		return nil
	})
}

// Get loads an app record.
func (m *Manager) Get(ctx context.Context, appID string) (*types.AppRecord, error) {
	if cached, ok := m.apps.Load(appID); ok {
		return clone(cached.(*types.AppRecord)), nil
	}

	rec, err := m.load(ctx, m.db.DB, appID)
	if err != nil {
		return nil, err
	}
	m.cache(rec)
	return clone(rec), nil
}

// List returns every app record.
func (m *Manager) List(ctx context.Context) ([]*types.AppRecord, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT data FROM apps ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	var out []*types.AppRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		var rec types.AppRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode app: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Delete removes an app record.
func (m *Manager) Delete(ctx context.Context, appID string) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, appID)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
	}
	m.uncache(appID)
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.NotFound, "app %s not found", appID)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (m *Manager) load(ctx context.Context, q queryer, appID string) (*types.AppRecord, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM apps WHERE id = ?`, appID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "app %s not found", appID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load app %s: %w", appID, err)
	}
	var rec types.AppRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode app %s: %w", appID, err)
	}
	if rec.ArchivedVersions == nil {
		rec.ArchivedVersions = []types.ArchivedVersion{}
	}
	return &rec, nil
}

// update applies fn to the stored record inside a transaction. With create
// set, a missing record starts empty instead of failing.
func (m *Manager) update(ctx context.Context, appID string, create bool, fn func(rec *types.AppRecord) error) (*types.AppRecord, error) {
	return m.updateWith(ctx, appID, create, fn, nil)
}

// updateWith is update with commit run in the same transaction after the
// record is saved. A commit error rolls the record back.
func (m *Manager) updateWith(ctx context.Context, appID string, create bool, fn func(rec *types.AppRecord) error, commit func(tx *sql.Tx) error) (*types.AppRecord, error) {
	var out *types.AppRecord
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		rec, err := m.load(ctx, tx, appID)
		if apperr.IsKind(err, apperr.NotFound) && create {
			rec = &types.AppRecord{ID: appID, ArchivedVersions: []types.ArchivedVersion{}}
		} else if err != nil {
			return err
		}

		if err := fn(rec); err != nil {
			return err
		}
		rec.UpdatedAt = m.now().UTC()

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode app: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO apps (id, owner_id, data, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, data = excluded.data, updated_at = excluded.updated_at`,
			rec.ID, rec.OwnerID, string(data), database.Millis(rec.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to save app: %w", err)
		}
		if commit != nil {
			if err := commit(tx); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		m.uncache(appID)
		return nil, err
	}
	m.cache(out)
	return clone(out), nil
}

func (m *Manager) cache(rec *types.AppRecord) {
	_, existed := m.apps.Swap(rec.ID, clone(rec))
	if !existed {
		if n := atomic.AddInt64(&m.cacheSize, 1); n > CacheEvictionThreshold {
			m.evictCacheEntries()
		}
	}
}

func (m *Manager) uncache(appID string) {
	if _, existed := m.apps.LoadAndDelete(appID); existed {
		atomic.AddInt64(&m.cacheSize, -1)
	}
}

// evictCacheEntries drops entries once the cache passes the threshold.
// Only one goroutine evicts at a time.
func (m *Manager) evictCacheEntries() {
	if !atomic.CompareAndSwapInt32(&m.evicting, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&m.evicting, 0)

	size := atomic.LoadInt64(&m.cacheSize)
	if size <= CacheEvictionThreshold {
		return
	}
	target := size - CacheEvictionThreshold + 100

	var evicted int64
	m.apps.Range(func(key, _ interface{}) bool {
		if evicted >= target {
			return false
		}
		if _, ok := m.apps.LoadAndDelete(key); ok {
			evicted++
		}
		return true
	})
	atomic.AddInt64(&m.cacheSize, -evicted)
}

func clone(rec *types.AppRecord) *types.AppRecord {
	c := *rec
	c.ArchivedVersions = append([]types.ArchivedVersion{}, rec.ArchivedVersions...)
	c.Security.Network.Allowlist = append([]string(nil), rec.Security.Network.Allowlist...)
	return &c
}

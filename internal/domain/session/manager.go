package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// MaxUserAgentLength bounds the stored user agent.
const MaxUserAgentLength = 256

// ErrAccessDenied is returned for every failed PIN or session check.
var ErrAccessDenied = apperr.E(apperr.Forbidden, "access denied")

// Apps looks up app records.
type Apps interface {
	Get(ctx context.Context, appID string) (*types.AppRecord, error)
}

// Config configures PIN sessions and rooms.
type Config struct {
	SessionTTL     time.Duration
	MaxAge         time.Duration
	IdentitySalt   string
	LegacyPath     string
	BcryptCost     int
	TokenSecret    string
	TokenTTL       time.Duration
	MaxRoomsPerApp int
	DemoPin        string
}

// Manager handles PINs, visitor sessions and rooms.
type Manager struct {
	db      *database.DB
	apps    Apps
	cfg     Config
	secret  []byte
	logger  *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash []byte

	legacyMu   sync.Mutex
	legacyDone bool
}

// NewManager creates a session manager. An empty token secret is replaced
// with a random one, so room tokens do not survive a restart.
func NewManager(db *database.DB, apps Apps, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.TokenTTL < MinTokenTTL {
		cfg.TokenTTL = MinTokenTTL
	}
	if cfg.MaxRoomsPerApp <= 0 {
		cfg.MaxRoomsPerApp = 10
	}
	if cfg.DemoPin == "" {
		cfg.DemoPin = "1111"
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("failed to generate room token secret: %v", err))
		}
		logger.Warn("ROOM_TOKEN_SECRET not set, using an ephemeral secret")
	}

	return &Manager{
		db:     db,
		apps:   apps,
		cfg:    cfg,
		secret: secret,
		logger: logger,
		now:    time.Now,
	}
}

// WithMetrics attaches metrics collection.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// VerifyAndCreateSession checks pin against the app's PIN and, on a match,
// issues a new session. Every failure is the same opaque ErrAccessDenied.
func (m *Manager) VerifyAndCreateSession(ctx context.Context, appID, pin string, client types.ClientInfo) (*types.PinSession, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}

	hash, err := m.pinHash(ctx, appID)
	if err != nil && !apperr.IsKind(err, apperr.NotFound) {
		m.metrics.RecordPinVerification("error")
		return nil, err
	}
	if hash == nil {
		// Keep the unknown-app path as slow as a real comparison.
		_ = bcrypt.CompareHashAndPassword(m.dummy(), []byte(pin))
		m.metrics.RecordPinVerification("denied")
		return nil, ErrAccessDenied
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pin)) != nil {
		m.metrics.RecordPinVerification("denied")
		return nil, ErrAccessDenied
	}

	now := m.now()
	sess := &types.PinSession{
		ID:           id.NewSessionID().String(),
		AppID:        appID,
		CreatedAt:    now,
		LastSeenAt:   now,
		IdentityHash: m.identityHash(client.IP),
		UserAgent:    truncate(client.UserAgent, MaxUserAgentLength),
		AnonID:       truncate(client.AnonID, utils.MaxIDLength),
	}
	if m.cfg.MaxAge > 0 {
		exp := now.Add(m.cfg.MaxAge)
		sess.ExpiresAt = &exp
	}

	if err := m.insert(ctx, m.db, sess, false); err != nil {
		m.metrics.RecordPinVerification("error")
		return nil, apperr.Wrap(err, apperr.Internal, "create session")
	}
	m.metrics.RecordPinVerification("granted")
	m.logger.Info("PIN session created", zap.String("app_id", appID), zap.String("session_id", sess.ID))
	return sess, nil
}

// Touch refreshes a session's last_seen_at. Unknown, revoked and expired
// sessions are rejected with ErrAccessDenied.
func (m *Manager) Touch(ctx context.Context, appID, sessionID string) (*types.PinSession, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	if !id.ValidSessionID(sessionID) {
		return nil, ErrAccessDenied
	}

	sess, err := m.get(ctx, appID, sessionID)
	if err != nil {
		if apperr.IsKind(err, apperr.NotFound) {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	now := m.now()
	if sess.Revoked || sess.Expired(now, m.cfg.SessionTTL) {
		return nil, ErrAccessDenied
	}

	res, err := m.db.ExecContext(ctx,
		`UPDATE pin_sessions SET last_seen_at = ? WHERE id = ? AND app_id = ? AND revoked = 0`,
		database.Millis(now), sessionID, appID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "touch session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrAccessDenied
	}
	sess.LastSeenAt = now
	return sess, nil
}

// List returns the app's active sessions, newest first.
func (m *Manager) List(ctx context.Context, appID string) ([]*types.PinSession, error) {
	if err := m.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM pin_sessions WHERE app_id = ? AND revoked = 0 ORDER BY created_at DESC`,
		appID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "list sessions")
	}
	defer rows.Close()

	now := m.now()
	sessions := make([]*types.PinSession, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.Internal, "scan session")
		}
		if !sess.Expired(now, m.cfg.SessionTTL) {
			sessions = append(sessions, sess)
		}
	}
	return sessions, rows.Err()
}

// Revoke revokes a single session.
func (m *Manager) Revoke(ctx context.Context, appID, sessionID string) error {
	if err := m.ready(ctx); err != nil {
		return err
	}
	res, err := m.db.ExecContext(ctx,
		`UPDATE pin_sessions SET revoked = 1 WHERE id = ? AND app_id = ?`, sessionID, appID)
	if err != nil {
		return apperr.Wrap(err, apperr.Internal, "revoke session")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.E(apperr.NotFound, "session not found")
	}
	m.logger.Info("PIN session revoked", zap.String("app_id", appID), zap.String("session_id", sessionID))
	return nil
}

// RevokeAll revokes every session of the app and returns how many were
// active.
func (m *Manager) RevokeAll(ctx context.Context, appID string) (int, error) {
	if err := m.ready(ctx); err != nil {
		return 0, err
	}
	var n int
	err := m.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = revokeAll(ctx, tx, appID)
		return err
	})
	if err != nil {
		return 0, apperr.Wrap(err, apperr.Internal, "revoke sessions")
	}
	m.logger.Info("PIN sessions revoked", zap.String("app_id", appID), zap.Int("count", n))
	return n, nil
}

// Sweep deletes revoked sessions, sessions past their absolute expiry and
// sessions idle for longer than the TTL.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	if err := m.ready(ctx); err != nil {
		return 0, err
	}
	now := m.now()
	idleCutoff := int64(-1)
	if m.cfg.SessionTTL > 0 {
		idleCutoff = database.Millis(now.Add(-m.cfg.SessionTTL))
	}

	res, err := m.db.ExecContext(ctx, `
		DELETE FROM pin_sessions
		WHERE revoked = 1
		   OR (expires_at IS NOT NULL AND expires_at <= ?)
		   OR last_seen_at < ?`,
		database.Millis(now), idleCutoff)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.Internal, "sweep sessions")
	}
	n, _ := res.RowsAffected()
	m.metrics.AddSessionsSwept(int(n))
	if n > 0 {
		m.logger.Info("Swept PIN sessions", zap.Int64("count", n))
	}
	return int(n), nil
}

// Run sweeps on every tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.Warn("Session sweep failed", zap.Error(err))
			}
		}
	}
}

const sessionColumns = `id, app_id, created_at, last_seen_at, expires_at, identity_hash, user_agent, anon_id, revoked`

type scanner interface {
	Scan(dest ...interface{}) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func scanSession(s scanner) (*types.PinSession, error) {
	var (
		sess              types.PinSession
		created, lastSeen int64
		expires           sql.NullInt64
		revoked           int
	)
	if err := s.Scan(&sess.ID, &sess.AppID, &created, &lastSeen, &expires,
		&sess.IdentityHash, &sess.UserAgent, &sess.AnonID, &revoked); err != nil {
		return nil, err
	}
	sess.CreatedAt = database.FromMillis(created)
	sess.LastSeenAt = database.FromMillis(lastSeen)
	sess.ExpiresAt = database.FromNullMillis(expires)
	sess.Revoked = revoked != 0
	return &sess, nil
}

func (m *Manager) get(ctx context.Context, appID, sessionID string) (*types.PinSession, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM pin_sessions WHERE id = ? AND app_id = ?`, sessionID, appID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "load session")
	}
	return sess, nil
}

// insert writes a session. With ignore set an existing id is left alone.
func (m *Manager) insert(ctx context.Context, db execer, s *types.PinSession, ignore bool) error {
	verb := "INSERT"
	if ignore {
		verb = "INSERT OR IGNORE"
	}
	revoked := 0
	if s.Revoked {
		revoked = 1
	}
	_, err := db.ExecContext(ctx, verb+` INTO pin_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AppID, database.Millis(s.CreatedAt), database.Millis(s.LastSeenAt),
		database.NullMillis(s.ExpiresAt), s.IdentityHash, s.UserAgent, s.AnonID, revoked)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func revokeAll(ctx context.Context, tx *sql.Tx, appID string) (int, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE pin_sessions SET revoked = 1 WHERE app_id = ? AND revoked = 0`, appID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (m *Manager) identityHash(ip string) string {
	return utils.SHA256Hex([]byte(m.cfg.IdentitySalt + ":" + ip))
}

func (m *Manager) dummy() []byte {
	m.dummyOnce.Do(func() {
		m.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("00000000"), m.cfg.BcryptCost)
	})
	return m.dummyHash
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

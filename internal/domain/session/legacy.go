package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// legacySession is one entry of the JSON session file, keyed by app id and
// then session id. Timestamps are unix milliseconds.
type legacySession struct {
	CreatedAt  int64  `json:"createdAt"`
	LastSeenAt int64  `json:"lastSeenAt"`
	ExpiresAt  *int64 `json:"expiresAt,omitempty"`
	IPHash     string `json:"ipHash"`
	UserAgent  string `json:"userAgent,omitempty"`
	AnonID     string `json:"anonId,omitempty"`
	Revoked    bool   `json:"revoked,omitempty"`
}

type legacyFile map[string]map[string]legacySession

// ImportLegacy copies sessions from the legacy JSON file into the database
// and renames the file to <path>.bak. It runs at most once per process and
// is safe to repeat across restarts: existing ids are left untouched.
func (m *Manager) ImportLegacy(ctx context.Context) (int, error) {
	m.legacyMu.Lock()
	defer m.legacyMu.Unlock()

	if m.legacyDone {
		return 0, nil
	}
	n, err := m.importLegacy(ctx)
	if err != nil {
		return 0, err
	}
	m.legacyDone = true
	return n, nil
}

// ready runs the legacy import before first use.
func (m *Manager) ready(ctx context.Context) error {
	if _, err := m.ImportLegacy(ctx); err != nil {
		return apperr.Wrap(err, apperr.Internal, "import legacy sessions")
	}
	return nil
}

func (m *Manager) importLegacy(ctx context.Context) (int, error) {
	path := m.cfg.LegacyPath
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy sessions: %w", err)
	}

	var file legacyFile
	if len(data) > 0 {
		if err := json.Unmarshal(data, &file); err != nil {
			return 0, fmt.Errorf("failed to parse legacy sessions %s: %w", path, err)
		}
	}

	imported := 0
	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		for appID, sessions := range file {
			for sessionID, ls := range sessions {
				if ls.IPHash == "" {
					continue
				}
				if err := m.insert(ctx, tx, fromLegacy(appID, sessionID, ls), true); err != nil {
					return err
				}
				imported++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := os.Rename(path, path+".bak"); err != nil {
		return 0, fmt.Errorf("failed to retire legacy sessions: %w", err)
	}
	m.logger.Info("Imported legacy PIN sessions",
		zap.String("path", path),
		zap.Int("count", imported))
	return imported, nil
}

func fromLegacy(appID, sessionID string, ls legacySession) *types.PinSession {
	sess := &types.PinSession{
		ID:           sessionID,
		AppID:        appID,
		CreatedAt:    time.UnixMilli(ls.CreatedAt),
		LastSeenAt:   time.UnixMilli(ls.LastSeenAt),
		IdentityHash: ls.IPHash,
		UserAgent:    truncate(ls.UserAgent, MaxUserAgentLength),
		AnonID:       ls.AnonID,
		Revoked:      ls.Revoked,
	}
	if ls.LastSeenAt == 0 {
		sess.LastSeenAt = sess.CreatedAt
	}
	if ls.ExpiresAt != nil {
		exp := time.UnixMilli(*ls.ExpiresAt)
		sess.ExpiresAt = &exp
	}
	return sess
}

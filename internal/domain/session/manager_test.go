package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

type fakeApps struct {
	mu   sync.Mutex
	apps map[string]*types.AppRecord
}

func (f *fakeApps) Get(ctx context.Context, appID string) (*types.AppRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.apps[appID]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "app not found")
	}
	return rec, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db    *database.DB
	apps  *fakeApps
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{
		db: db,
		apps: &fakeApps{apps: map[string]*types.AppRecord{
			"quiz":   {ID: "quiz", Capabilities: types.Capabilities{Rooms: true}},
			"closed": {ID: "closed"},
		}},
		clock: &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) manager(cfg Config) *Manager {
	cfg.BcryptCost = bcrypt.MinCost
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = "test-secret"
	}
	m := NewManager(f.db, f.apps, cfg, nil)
	m.now = f.clock.now
	return m
}

var client = types.ClientInfo{IP: "203.0.113.7", UserAgent: "Mozilla/5.0", AnonID: "anon-1"}

func TestVerifyAndCreateSession(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{SessionTTL: time.Hour, IdentitySalt: "salt"})
	ctx := context.Background()

	require.NoError(t, m.SetPin(ctx, "quiz", "4321"))

	sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
	require.NoError(t, err)
	_, err = uuid.Parse(sess.ID)
	assert.NoError(t, err)
	assert.Equal(t, "quiz", sess.AppID)
	assert.Len(t, sess.IdentityHash, 64)
	assert.NotContains(t, sess.IdentityHash, client.IP)
	assert.Equal(t, "Mozilla/5.0", sess.UserAgent)
	assert.Nil(t, sess.ExpiresAt)

	other, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, other.ID)
	assert.Equal(t, sess.IdentityHash, other.IdentityHash)

	touched, err := m.Touch(ctx, "quiz", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, touched.ID)
}

func TestVerifyFailuresAreOpaque(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	ctx := context.Background()
	require.NoError(t, m.SetPin(ctx, "quiz", "4321"))

	tests := []struct {
		name  string
		appID string
		pin   string
	}{
		{"wrong pin", "quiz", "0000"},
		{"unknown app", "missing", "4321"},
		{"app without pin", "closed", "4321"},
		{"malformed pin", "quiz", "abc"},
		{"empty pin", "quiz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.VerifyAndCreateSession(ctx, tt.appID, tt.pin, client)
			require.Error(t, err)
			assert.Equal(t, ErrAccessDenied, err)
			assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
		})
	}
}

func TestUserAgentTruncated(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	ctx := context.Background()
	require.NoError(t, m.SetPin(ctx, "quiz", "4321"))

	long := types.ClientInfo{IP: "198.51.100.1", UserAgent: strings.Repeat("ü", 300)}
	sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", long)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sess.UserAgent), MaxUserAgentLength)
	assert.True(t, strings.HasPrefix(long.UserAgent, sess.UserAgent))
}

func TestRotatePinRevokesSessions(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	ctx := context.Background()
	require.NoError(t, m.SetPin(ctx, "quiz", "4321"))

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	pin, err := m.RotatePin(ctx, "quiz")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, pin)

	for _, id := range ids {
		_, err := m.Touch(ctx, "quiz", id)
		assert.ErrorIs(t, err, ErrAccessDenied, id)
	}

	if pin != "4321" {
		_, err = m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
		assert.ErrorIs(t, err, ErrAccessDenied)
	}
	_, err = m.VerifyAndCreateSession(ctx, "quiz", pin, client)
	assert.NoError(t, err)

	active, err := m.List(ctx, "quiz")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSetPinValidation(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	ctx := context.Background()

	assert.True(t, apperr.IsKind(m.SetPin(ctx, "quiz", "12"), apperr.InputInvalid))
	assert.True(t, apperr.IsKind(m.SetPin(ctx, "quiz", "123456789"), apperr.InputInvalid))
	assert.True(t, apperr.IsKind(m.SetPin(ctx, "missing", "1234"), apperr.NotFound))

	has, err := m.HasPin(ctx, "quiz")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.SetPin(ctx, "quiz", "1234"))
	has, err = m.HasPin(ctx, "quiz")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestTouchRejectsExpiredSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("absolute expiry", func(t *testing.T) {
		m := f.manager(Config{MaxAge: time.Hour})
		require.NoError(t, m.SetPin(ctx, "quiz", "4321"))
		sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
		require.NoError(t, err)
		require.NotNil(t, sess.ExpiresAt)

		f.clock.advance(30 * time.Minute)
		_, err = m.Touch(ctx, "quiz", sess.ID)
		require.NoError(t, err)

		f.clock.advance(31 * time.Minute)
		_, err = m.Touch(ctx, "quiz", sess.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("idle ttl", func(t *testing.T) {
		m := f.manager(Config{SessionTTL: 10 * time.Minute})
		require.NoError(t, m.SetPin(ctx, "quiz", "4321"))
		sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			f.clock.advance(8 * time.Minute)
			_, err = m.Touch(ctx, "quiz", sess.ID)
			require.NoError(t, err)
		}

		f.clock.advance(11 * time.Minute)
		_, err = m.Touch(ctx, "quiz", sess.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)
	})

	t.Run("wrong app or bad id", func(t *testing.T) {
		m := f.manager(Config{})
		require.NoError(t, m.SetPin(ctx, "quiz", "4321"))
		sess, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
		require.NoError(t, err)

		_, err = m.Touch(ctx, "closed", sess.ID)
		assert.ErrorIs(t, err, ErrAccessDenied)
		_, err = m.Touch(ctx, "quiz", "not-a-uuid")
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestListAndRevoke(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})
	ctx := context.Background()
	require.NoError(t, m.SetPin(ctx, "quiz", "4321"))

	first, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
	require.NoError(t, err)
	f.clock.advance(time.Second)
	second, err := m.VerifyAndCreateSession(ctx, "quiz", "4321", client)
	require.NoError(t, err)

	list, err := m.List(ctx, "quiz")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	require.NoError(t, m.Revoke(ctx, "quiz", first.ID))
	list, err = m.List(ctx, "quiz")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	assert.True(t, apperr.IsKind(m.Revoke(ctx, "quiz", uuid.NewString()), apperr.NotFound))
	assert.True(t, apperr.IsKind(m.Revoke(ctx, "closed", second.ID), apperr.NotFound))

	n, err := m.RevokeAll(ctx, "quiz")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err = m.List(ctx, "quiz")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{SessionTTL: time.Hour})
	ctx := context.Background()
	start := f.clock.now()

	exp := start.Add(10 * time.Minute)
	seed := []*types.PinSession{
		{ID: uuid.NewString(), AppID: "quiz", CreatedAt: start, LastSeenAt: start.Add(2 * time.Hour), IdentityHash: "a"},
		{ID: uuid.NewString(), AppID: "quiz", CreatedAt: start, LastSeenAt: start.Add(2 * time.Hour), IdentityHash: "b", Revoked: true},
		{ID: uuid.NewString(), AppID: "quiz", CreatedAt: start, LastSeenAt: start.Add(2 * time.Hour), IdentityHash: "c", ExpiresAt: &exp},
		{ID: uuid.NewString(), AppID: "quiz", CreatedAt: start, LastSeenAt: start, IdentityHash: "d"},
	}
	for _, s := range seed {
		require.NoError(t, m.insert(ctx, f.db, s, false))
	}

	f.clock.advance(90 * time.Minute)
	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var remaining string
	require.NoError(t, f.db.QueryRow(`SELECT id FROM pin_sessions`).Scan(&remaining))
	assert.Equal(t, seed[0].ID, remaining)

	n, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestLegacyImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.now()

	active := uuid.NewString()
	revoked := uuid.NewString()
	other := uuid.NewString()
	file := map[string]map[string]map[string]interface{}{
		"quiz": {
			active:  {"createdAt": now.Add(-time.Hour).UnixMilli(), "lastSeenAt": now.UnixMilli(), "ipHash": "h1", "userAgent": "ua"},
			revoked: {"createdAt": now.UnixMilli(), "lastSeenAt": now.UnixMilli(), "ipHash": "h2", "revoked": true},
		},
		"closed": {
			other: {"createdAt": now.UnixMilli(), "lastSeenAt": now.UnixMilli(), "ipHash": "h3", "played": true},
		},
	}
	data, err := json.Marshal(file)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pin-sessions.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	m := f.manager(Config{LegacyPath: path})
	list, err := m.List(ctx, "quiz")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active, list[0].ID)
	assert.Equal(t, "h1", list[0].IdentityHash)
	assert.Equal(t, now.Add(-time.Hour).UnixMilli(), list[0].CreatedAt.UnixMilli())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)

	n, err := m.ImportLegacy(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A second process seeing the same file again must not duplicate or
	// resurrect anything.
	require.NoError(t, m.Revoke(ctx, "quiz", active))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	again := f.manager(Config{LegacyPath: path})
	n, err = again.ImportLegacy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var count int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM pin_sessions`).Scan(&count))
	assert.Equal(t, 3, count)
	list, err = again.List(ctx, "quiz")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLegacyImportMissingFile(t *testing.T) {
	f := newFixture(t)
	m := f.manager(Config{LegacyPath: filepath.Join(t.TempDir(), "absent.json")})
	n, err := m.ImportLegacy(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLegacyImportBrokenFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	m := f.manager(Config{LegacyPath: path})
	_, err := m.List(context.Background(), "quiz")
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))

	_, err = os.Stat(path)
	assert.NoError(t, err, "broken file must stay in place")
}

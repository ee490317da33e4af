package registry

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesara-space/forge/internal/infrastructure/database"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "forge.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewManager(db, 30*24*time.Hour, nil)
}

func seedApp(t *testing.T, m *Manager, appID string) {
	t.Helper()
	_, err := m.Configure(context.Background(), appID, AppConfig{OwnerID: "owner-1", Title: "Demo"})
	require.NoError(t, err)
}

func newBuildID() string {
	return id.NewBuildID().String()
}

func TestConfigureDefaultsAndNormalizes(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	rec, err := m.Configure(ctx, "app-1", AppConfig{
		OwnerID: "owner-1",
		Security: types.SecurityPolicy{Network: types.NetworkPolicy{
			Mode:      types.NetworkProxy,
			Allowlist: []string{" Example.COM ", ""},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, rec.Security.Network.Allowlist)

	rec, err = m.Configure(ctx, "app-2", AppConfig{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Equal(t, types.NetworkStrict, rec.Security.Network.Mode)
	assert.Empty(t, rec.ArchivedVersions)
}

func TestConfigureRejectsInvalid(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		appID string
		cfg   AppConfig
	}{
		{"missing owner", "app-1", AppConfig{}},
		{"bad app id", "app/1", AppConfig{OwnerID: "o"}},
		{"unknown mode", "app-1", AppConfig{OwnerID: "o", Security: types.SecurityPolicy{Network: types.NetworkPolicy{Mode: "open"}}}},
		{"url in allowlist", "app-1", AppConfig{OwnerID: "o", Security: types.SecurityPolicy{Network: types.NetworkPolicy{Mode: types.NetworkProxy, Allowlist: []string{"https://x.com"}}}}},
		{"negative rps", "app-1", AppConfig{OwnerID: "o", Security: types.SecurityPolicy{Network: types.NetworkPolicy{RateLimit: types.RateLimit{RPS: -1}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Configure(ctx, tt.appID, tt.cfg)
			assert.True(t, apperr.IsKind(err, apperr.InputInvalid), "got %v", err)
		})
	}
}

func TestConfigureKeepsVersions(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	b1 := newBuildID()
	_, err := m.Publish(ctx, "app-1", b1)
	require.NoError(t, err)

	rec, err := m.Configure(ctx, "app-1", AppConfig{OwnerID: "owner-2", Title: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, b1, rec.BuildID)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, "owner-2", rec.OwnerID)
}

func TestGetMissing(t *testing.T) {
	m := newManager(t)
	_, err := m.Get(context.Background(), "nope")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestGetReturnsCopies(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	rec, err := m.Get(ctx, "app-1")
	require.NoError(t, err)
	rec.Title = "mutated"
	rec.ArchivedVersions = append(rec.ArchivedVersions, types.ArchivedVersion{BuildID: "x"})

	again, err := m.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, "Demo", again.Title)
	assert.Empty(t, again.ArchivedVersions)
}

func TestPublishArchivesPrevious(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	b1, b2 := newBuildID(), newBuildID()
	rec, err := m.Publish(ctx, "app-1", b1)
	require.NoError(t, err)
	assert.Equal(t, b1, rec.BuildID)
	assert.Equal(t, 1, rec.Version)
	assert.Empty(t, rec.ArchivedVersions)

	rec, err = m.Publish(ctx, "app-1", b2)
	require.NoError(t, err)
	assert.Equal(t, b2, rec.BuildID)
	assert.Equal(t, 2, rec.Version)
	require.Len(t, rec.ArchivedVersions, 1)
	assert.Equal(t, b1, rec.ArchivedVersions[0].BuildID)
	assert.Equal(t, 1, rec.ArchivedVersions[0].Version)

	// Republishing the current build is a no-op.
	rec, err = m.Publish(ctx, "app-1", b2)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Version)
	assert.Len(t, rec.ArchivedVersions, 1)
}

func TestPublishWithRollsBackOnCommitError(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	b1 := newBuildID()
	_, err := m.Publish(ctx, "app-1", b1)
	require.NoError(t, err)

	boom := errors.New("status update lost")
	fails := func(tx *sql.Tx) error { return boom }

	_, err = m.PublishWith(ctx, "app-1", newBuildID(), fails)
	assert.ErrorIs(t, err, boom)
	_, err = m.SetPendingWith(ctx, "app-1", newBuildID(), fails)
	assert.ErrorIs(t, err, boom)

	rec, err := m.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, b1, rec.BuildID)
	assert.Equal(t, 1, rec.Version)
	assert.Empty(t, rec.PendingBuildID)
	assert.Empty(t, rec.ArchivedVersions)
}

func TestPublishDropsExpiredArchives(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	b1, b2, b3 := newBuildID(), newBuildID(), newBuildID()
	_, err := m.Publish(ctx, "app-1", b1)
	require.NoError(t, err)
	_, err = m.Publish(ctx, "app-1", b2)
	require.NoError(t, err)

	clock = clock.Add(31 * 24 * time.Hour)
	rec, err := m.Publish(ctx, "app-1", b3)
	require.NoError(t, err)

	require.Len(t, rec.ArchivedVersions, 1)
	assert.Equal(t, b2, rec.ArchivedVersions[0].BuildID)
	assert.Equal(t, 3, rec.Version)
}

func TestPublishUnknownApp(t *testing.T) {
	m := newManager(t)
	_, err := m.Publish(context.Background(), "ghost", newBuildID())
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	_, err = m.Publish(context.Background(), "ghost", "not-a-build")
	assert.True(t, apperr.IsKind(err, apperr.InputInvalid))
}

func TestConcurrentPublishesSerialize(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Publish(ctx, "app-1", newBuildID())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := m.Get(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, n, rec.Version)
	assert.Len(t, rec.ArchivedVersions, n-1)
}

func TestPendingAndApprove(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	_, err := m.ApprovePending(ctx, "app-1")
	assert.True(t, apperr.IsKind(err, apperr.Conflict))

	b1 := newBuildID()
	rec, err := m.SetPending(ctx, "app-1", b1)
	require.NoError(t, err)
	assert.Equal(t, b1, rec.PendingBuildID)
	assert.Empty(t, rec.BuildID)

	rec, err = m.ApprovePending(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, b1, rec.BuildID)
	assert.Empty(t, rec.PendingBuildID)
	assert.Equal(t, 1, rec.Version)
}

func TestPromote(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-1")

	b1, b2 := newBuildID(), newBuildID()
	_, err := m.Publish(ctx, "app-1", b1)
	require.NoError(t, err)
	_, err = m.Publish(ctx, "app-1", b2)
	require.NoError(t, err)

	_, err = m.Promote(ctx, "app-1", newBuildID())
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	rec, err := m.Promote(ctx, "app-1", b1)
	require.NoError(t, err)
	assert.Equal(t, b1, rec.BuildID)
	assert.Equal(t, 3, rec.Version)
	require.Len(t, rec.ArchivedVersions, 1)
	assert.Equal(t, b2, rec.ArchivedVersions[0].BuildID)

	versions, err := m.ListVersions(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, versions.Current)
	assert.Equal(t, b1, versions.Current.BuildID)
	require.Len(t, versions.Archived, 1)
	assert.Equal(t, 2, versions.Archived[0].Version)
}

func TestListAndDelete(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	seedApp(t, m, "app-b")
	seedApp(t, m, "app-a")

	apps, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, "app-a", apps[0].ID)

	require.NoError(t, m.Delete(ctx, "app-a"))
	_, err = m.Get(ctx, "app-a")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	assert.True(t, apperr.IsKind(m.Delete(ctx, "app-a"), apperr.NotFound))
}

func TestSeeder(t *testing.T) {
	m := newManager(t)
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.yaml"), []byte(`
id: weather
owner_id: alice
title: Weather
capabilities:
  storage: true
security:
  network:
    mode: proxy
    allowlist: [api.open-meteo.com]
    rate_limit: {rps: 2, burst: 2}
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "notes.json"),
		[]byte(`{"id": "notes", "owner_id": "bob"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	loaded, failed, err := NewSeeder(m, dir, nil).Seed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 1, failed)

	rec, err := m.Get(context.Background(), "weather")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.OwnerID)
	assert.True(t, rec.Capabilities.Storage)
	assert.Equal(t, types.NetworkProxy, rec.Security.Network.Mode)
	assert.Equal(t, []string{"api.open-meteo.com"}, rec.Security.Network.Allowlist)
	assert.Equal(t, 2, rec.Security.Network.RateLimit.RPS)

	_, err = m.Get(context.Background(), "notes")
	assert.NoError(t, err)
}

func TestSeederMissingDir(t *testing.T) {
	m := newManager(t)
	loaded, failed, err := NewSeeder(m, filepath.Join(t.TempDir(), "absent"), nil).Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded+failed)
}

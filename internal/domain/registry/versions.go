package registry

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
)

// VersionEntry is one build in an app's history.
type VersionEntry struct {
	BuildID    string     `json:"build_id"`
	Version    int        `json:"version"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// Versions is an app's current, pending and archived builds.
type Versions struct {
	AppID    string         `json:"app_id"`
	Current  *VersionEntry  `json:"current,omitempty"`
	Pending  string         `json:"pending_build_id,omitempty"`
	Archived []VersionEntry `json:"archived"`
}

// Publish makes buildID the app's current build. A previous current build
// is archived with its version, the version increments, and archived
// entries older than the archive TTL are dropped. Publishing the current
// build again changes nothing.
func (m *Manager) Publish(ctx context.Context, appID, buildID string) (*types.AppRecord, error) {
	return m.PublishWith(ctx, appID, buildID, nil)
}

// PublishWith is Publish with commit run in the same transaction. When
// commit fails the app record is left as it was.
func (m *Manager) PublishWith(ctx context.Context, appID, buildID string, commit func(tx *sql.Tx) error) (*types.AppRecord, error) {
	if !id.ValidBuildID(buildID) {
		return nil, apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	rec, err := m.updateWith(ctx, appID, false, func(rec *types.AppRecord) error {
		m.makeCurrent(rec, buildID)
		return nil
	}, commit)
	if err != nil {
		return nil, err
	}
	m.logger.Info("Published build",
		zap.String("app_id", appID),
		zap.String("build_id", buildID),
		zap.Int("version", rec.Version))
	return rec, nil
}

// SetPending parks buildID for review, replacing any earlier pending build.
func (m *Manager) SetPending(ctx context.Context, appID, buildID string) (*types.AppRecord, error) {
	return m.SetPendingWith(ctx, appID, buildID, nil)
}

// SetPendingWith is SetPending with commit run in the same transaction.
func (m *Manager) SetPendingWith(ctx context.Context, appID, buildID string, commit func(tx *sql.Tx) error) (*types.AppRecord, error) {
	if !id.ValidBuildID(buildID) {
		return nil, apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	return m.updateWith(ctx, appID, false, func(rec *types.AppRecord) error {
		rec.PendingBuildID = buildID
		return nil
	}, commit)
}

// ApprovePending publishes the pending build.
func (m *Manager) ApprovePending(ctx context.Context, appID string) (*types.AppRecord, error) {
	return m.update(ctx, appID, false, func(rec *types.AppRecord) error {
		if rec.PendingBuildID == "" {
			return apperr.E(apperr.Conflict, "app %s has no pending build", appID)
		}
		m.makeCurrent(rec, rec.PendingBuildID)
		return nil
	})
}

// Promote restores an archived build as current. The build being replaced
// is archived like on any publish.
func (m *Manager) Promote(ctx context.Context, appID, buildID string) (*types.AppRecord, error) {
	return m.update(ctx, appID, false, func(rec *types.AppRecord) error {
		for _, v := range rec.ArchivedVersions {
			if v.BuildID == buildID {
				m.makeCurrent(rec, buildID)
				return nil
			}
		}
		return apperr.E(apperr.NotFound, "build %s is not an archived version of %s", buildID, appID)
	})
}

// ListVersions returns the app's version history, newest archive first.
func (m *Manager) ListVersions(ctx context.Context, appID string) (*Versions, error) {
	rec, err := m.Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	out := &Versions{AppID: appID, Pending: rec.PendingBuildID, Archived: []VersionEntry{}}
	if rec.BuildID != "" {
		out.Current = &VersionEntry{BuildID: rec.BuildID, Version: rec.Version}
	}
	for _, v := range rec.ArchivedVersions {
		at := v.ArchivedAt
		out.Archived = append(out.Archived, VersionEntry{BuildID: v.BuildID, Version: v.Version, ArchivedAt: &at})
	}
	sort.SliceStable(out.Archived, func(i, j int) bool {
		return out.Archived[i].Version > out.Archived[j].Version
	})
	return out, nil
}

func (m *Manager) makeCurrent(rec *types.AppRecord, buildID string) {
	if rec.PendingBuildID == buildID {
		rec.PendingBuildID = ""
	}
	if rec.BuildID == buildID {
		return
	}

	now := m.now().UTC()
	archived := make([]types.ArchivedVersion, 0, len(rec.ArchivedVersions)+1)
	for _, v := range rec.ArchivedVersions {
		if v.BuildID == buildID {
			continue
		}
		if m.archiveTTL > 0 && now.Sub(v.ArchivedAt) > m.archiveTTL {
			continue
		}
		archived = append(archived, v)
	}
	if rec.BuildID != "" {
		archived = append(archived, types.ArchivedVersion{
			BuildID:    rec.BuildID,
			Version:    rec.Version,
			ArchivedAt: now,
		})
	}

	rec.ArchivedVersions = archived
	rec.BuildID = buildID
	rec.Version++
}

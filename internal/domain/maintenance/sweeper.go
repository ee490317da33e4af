// Package maintenance reclaims build directories no app references.
//
// A scan walks <root>/builds, sizes each build directory and classifies it
// against every app's current, pending and archived build ids and against
// builds still in flight. Unreferenced directories older than the retention
// period are reclaimable; Prune deletes them only when confirmed.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
)

// Status classifies a build directory.
type Status string

const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusArchived Status = "archived"
	StatusBuilding Status = "building"
	StatusOrphaned Status = "orphaned"
)

// Orphan reasons.
const (
	ReasonExpired   = "orphaned and past retention"
	ReasonRetention = "orphaned, within retention period"
	ReasonForeign   = "not a build directory"
)

// Apps lists app records.
type Apps interface {
	List(ctx context.Context) ([]*types.AppRecord, error)
}

// Builds lists builds that have not reached a terminal state.
type Builds interface {
	ListActive(ctx context.Context) ([]*types.BuildRecord, error)
}

// Store locates and removes build directories.
type Store interface {
	BuildsRoot() string
	Remove(buildID string) error
}

// BuildDetail describes one build directory.
type BuildDetail struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Status  Status    `json:"status"`
	AppID   string    `json:"app_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Report summarizes a scan or prune.
type Report struct {
	TotalBuilds      int           `json:"total_builds"`
	ReferencedBuilds int           `json:"referenced_builds"`
	OrphanedBuilds   int           `json:"orphaned_builds"`
	ReclaimableBytes int64         `json:"reclaimable_bytes"`
	Reclaimable      []string      `json:"reclaimable"`
	Details          []BuildDetail `json:"details"`
	DryRun           bool          `json:"dry_run"`
	Pruned           []string      `json:"pruned,omitempty"`
	PrunedBytes      int64         `json:"pruned_bytes,omitempty"`
}

type reference struct {
	status Status
	appID  string
}

// Sweeper scans and prunes build directories.
type Sweeper struct {
	apps      Apps
	builds    Builds
	store     Store
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewSweeper creates a sweeper. Orphans modified within retention are
// reported but never reclaimed.
func NewSweeper(apps Apps, builds Builds, store Store, retention time.Duration, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		apps:      apps,
		builds:    builds,
		store:     store,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Scan classifies every build directory without changing anything.
func (s *Sweeper) Scan(ctx context.Context) (*Report, error) {
	refs, err := s.references(ctx)
	if err != nil {
		return nil, err
	}

	root := s.store.BuildsRoot()
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return &Report{Reclaimable: []string{}, Details: []BuildDetail{}, DryRun: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read builds directory: %w", err)
	}

	now := s.now()
	report := &Report{Reclaimable: []string{}, Details: []BuildDetail{}, DryRun: true}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		detail := BuildDetail{ID: entry.Name(), Path: filepath.Join(root, entry.Name())}
		if info, err := entry.Info(); err == nil {
			detail.ModTime = info.ModTime()
		}
		detail.Size, err = dirSize(ctx, detail.Path)
		if err != nil {
			s.logger.Warn("Failed to size build directory", zap.String("path", detail.Path), zap.Error(err))
		}
		report.TotalBuilds++

		if ref, ok := refs[detail.ID]; ok {
			detail.Status = ref.status
			detail.AppID = ref.appID
			report.ReferencedBuilds++
			report.Details = append(report.Details, detail)
			continue
		}

		detail.Status = StatusOrphaned
		report.OrphanedBuilds++
		switch {
		case !id.ValidBuildID(detail.ID):
			detail.Reason = ReasonForeign
		case now.Sub(detail.ModTime) > s.retention:
			detail.Reason = ReasonExpired
			report.Reclaimable = append(report.Reclaimable, detail.ID)
			report.ReclaimableBytes += detail.Size
		default:
			detail.Reason = ReasonRetention
		}
		report.Details = append(report.Details, detail)
	}

	sort.SliceStable(report.Details, func(i, j int) bool {
		a, b := report.Details[i], report.Details[j]
		if (a.Status == StatusActive) != (b.Status == StatusActive) {
			return a.Status == StatusActive
		}
		return a.ModTime.After(b.ModTime)
	})
	sort.Strings(report.Reclaimable)
	return report, nil
}

// Prune scans and, when confirm is set, deletes every reclaimable
// directory. Without confirmation it is the same as Scan.
func (s *Sweeper) Prune(ctx context.Context, confirm bool) (*Report, error) {
	report, err := s.Scan(ctx)
	if err != nil || !confirm {
		return report, err
	}

	sizes := make(map[string]int64, len(report.Details))
	for _, d := range report.Details {
		sizes[d.ID] = d.Size
	}

	var pruned []string
	var bytes int64
	for _, buildID := range report.Reclaimable {
		if err := s.store.Remove(buildID); err != nil {
			s.logger.Error("Failed to prune build", zap.String("build_id", buildID), zap.Error(err))
			continue
		}
		pruned = append(pruned, buildID)
		bytes += sizes[buildID]
	}
	s.logger.Info("Pruned orphaned builds",
		zap.Int("count", len(pruned)),
		zap.Int64("bytes", bytes))

	after, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	after.DryRun = false
	after.Pruned = pruned
	after.PrunedBytes = bytes
	return after, nil
}

// references maps every build id some app or in-flight build still needs.
func (s *Sweeper) references(ctx context.Context) (map[string]reference, error) {
	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	active, err := s.builds.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active builds: %w", err)
	}

	refs := make(map[string]reference)
	add := func(buildID string, ref reference) {
		if _, ok := refs[buildID]; !ok && buildID != "" {
			refs[buildID] = ref
		}
	}
	for _, app := range apps {
		add(app.BuildID, reference{StatusActive, app.ID})
	}
	for _, app := range apps {
		add(app.PendingBuildID, reference{StatusPending, app.ID})
		for _, v := range app.ArchivedVersions {
			add(v.BuildID, reference{StatusArchived, app.ID})
		}
	}
	for _, b := range active {
		add(b.ID, reference{StatusBuilding, b.AppID})
	}
	return refs, nil
}

func dirSize(ctx context.Context, dir string) (int64, error) {
	var size atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil && info.Mode().IsRegular() {
			size.Add(info.Size())
		}
		return nil
	})
	return size.Load(), err
}

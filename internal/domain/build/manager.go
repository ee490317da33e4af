// Package build runs submitted source through the pipeline
// queued → bundling → verifying → published | failed.
//
// Every build runs in its own goroutine, bounded by a semaphore and a
// per-build timeout. The stored BuildRecord is authoritative; lifecycle
// events are a best-effort side channel.
package build

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/domain/artifact"
	"github.com/thesara-space/forge/internal/domain/bundler"
	"github.com/thesara-space/forge/internal/infrastructure/monitoring"
	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// ErrShuttingDown is returned by Submit after Shutdown has begun.
var ErrShuttingDown = apperr.E(apperr.Internal, "build manager is shutting down")

// Bundler compiles persisted source.
type Bundler interface {
	Bundle(ctx context.Context, src *bundler.Source) (*bundler.Result, error)
}

// Styler produces the stylesheet for a bundle.
type Styler interface {
	Generate(extra []byte, content ...[]byte) ([]byte, error)
}

// Apps is the app registry as seen by the pipeline. The commit callbacks
// run in the transaction that saves the app record, so the build status and
// the app's reference to it change together.
type Apps interface {
	Get(ctx context.Context, appID string) (*types.AppRecord, error)
	PublishWith(ctx context.Context, appID, buildID string, commit func(tx *sql.Tx) error) (*types.AppRecord, error)
	SetPendingWith(ctx context.Context, appID, buildID string, commit func(tx *sql.Tx) error) (*types.AppRecord, error)
}

// Mirror receives copies of published artifacts.
type Mirror interface {
	Put(ctx context.Context, buildID, name string, body []byte, contentType string) error
}

// Stages are the pluggable steps of a build.
type Stages struct {
	Bundler Bundler
	Styles  Styler
}

// Config bounds build execution.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
}

// Manager orchestrates builds.
type Manager struct {
	repo    *Repository
	store   *artifact.Store
	stages  Stages
	apps    Apps
	events  *Events
	cfg     Config
	logger  *zap.Logger
	metrics *monitoring.Metrics
	mirror  Mirror

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[string]chan struct{}
}

// NewManager creates a build manager.
func NewManager(repo *Repository, store *artifact.Store, stages Stages, apps Apps, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:    repo,
		store:   store,
		stages:  stages,
		apps:    apps,
		events:  NewEvents(),
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithMirror uploads published artifacts to mirror.
func (m *Manager) WithMirror(mirror Mirror) *Manager {
	m.mirror = mirror
	return m
}

// Events returns the lifecycle event hub.
func (m *Manager) Events() *Events {
	return m.events
}

// Subscribe registers for a build's lifecycle events.
func (m *Manager) Subscribe(buildID string) (<-chan types.BuildEvent, func()) {
	return m.events.Subscribe(buildID)
}

// Recover fails builds a previous process left mid-flight.
func (m *Manager) Recover(ctx context.Context) error {
	n, err := m.repo.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Warn("Failed builds interrupted by restart", zap.Int("count", n))
	}
	return nil
}

type job struct {
	buildID string
	appID   string
	mode    types.BuildMode
	caps    types.Capabilities
	src     *bundler.Source
}

// Submit persists src, records a queued build and starts it. The returned
// record is the queued snapshot; use Get or Wait for progress.
func (m *Manager) Submit(ctx context.Context, appID string, mode types.BuildMode, src *bundler.Source) (*types.BuildRecord, error) {
	if err := utils.ValidateID(appID, "app_id", true); err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid app id")
	}
	if mode == "" {
		mode = types.ModePublish
	}
	if !mode.Valid() {
		return nil, apperr.E(apperr.InputInvalid, "unknown build mode %q", mode)
	}
	if src == nil {
		return nil, apperr.E(apperr.InputInvalid, "no source submitted")
	}

	app, err := m.apps.Get(ctx, appID)
	if err != nil {
		return nil, err
	}

	buildID := id.NewBuildID().String()
	if err := src.Persist(m.store.SourceDir(buildID)); err != nil {
		return nil, apperr.Wrap(err, apperr.Internal, "persist source")
	}

	now := time.Now().UTC()
	rec := &types.BuildRecord{
		ID:        buildID,
		AppID:     appID,
		Status:    types.BuildQueued,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	done := make(chan struct{})
	m.running[buildID] = done
	m.wg.Add(1)
	m.mu.Unlock()

	if err := m.repo.Create(ctx, rec); err != nil {
		m.finish(buildID, done)
		return nil, apperr.Wrap(err, apperr.Internal, "record build")
	}

	m.logger.Info("Build queued",
		zap.String("build_id", buildID),
		zap.String("app_id", appID),
		zap.String("mode", string(mode)),
		zap.Int("files", len(src.Files)))
	m.emit(types.BuildEvent{BuildID: buildID, Status: types.BuildQueued})

	go m.run(job{buildID: buildID, appID: appID, mode: mode, caps: app.Capabilities, src: src}, done)
	return rec, nil
}

// Get returns a build record.
func (m *Manager) Get(ctx context.Context, buildID string) (*types.BuildRecord, error) {
	if !id.ValidBuildID(buildID) {
		return nil, apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	return m.repo.Get(ctx, buildID)
}

// List returns an app's builds, newest first.
func (m *Manager) List(ctx context.Context, appID string) ([]*types.BuildRecord, error) {
	if err := utils.ValidateID(appID, "app_id", true); err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid app id")
	}
	return m.repo.ListByApp(ctx, appID)
}

// Index returns the artifact index of a build.
func (m *Manager) Index(buildID string) (*types.ArtifactIndex, error) {
	return m.store.ReadIndex(buildID)
}

// Wait blocks until the build is terminal or ctx ends.
func (m *Manager) Wait(ctx context.Context, buildID string) (*types.BuildRecord, error) {
	m.mu.Lock()
	done, ok := m.running[buildID]
	m.mu.Unlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.Get(ctx, buildID)
}

// Shutdown stops accepting builds and waits for running ones. When ctx
// expires first, running builds are cancelled and fail.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-finished
		return ctx.Err()
	}
}

func (m *Manager) finish(buildID string, done chan struct{}) {
	m.mu.Lock()
	delete(m.running, buildID)
	m.mu.Unlock()
	close(done)
	m.wg.Done()
}

func (m *Manager) run(j job, done chan struct{}) {
	defer m.finish(j.buildID, done)

	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		m.fail(j, types.BuildQueued, types.StageSource, "build manager shut down before start")
		return
	}
	defer func() { <-m.sem }()

	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Timeout)
	defer cancel()

	m.metrics.BuildStarted()
	defer m.metrics.BuildFinished()

	start := time.Now()
	status, stage := m.execute(ctx, j)
	m.metrics.RecordBuild(string(status), stage, time.Since(start))
}

// execute runs the pipeline and returns the terminal status and, on
// failure, the stage that failed.
func (m *Manager) execute(ctx context.Context, j job) (types.BuildStatus, string) {
	if err := m.advance(ctx, j.buildID, types.BuildQueued, types.BuildBundling); err != nil {
		return m.fail(j, types.BuildQueued, types.StageSource, err.Error())
	}

	res, err := m.stages.Bundler.Bundle(ctx, j.src)
	if err != nil {
		return m.fail(j, types.BuildBundling, bundler.StageOf(err, types.StageTransform), detail(ctx, err))
	}

	content := make([][]byte, 0, len(j.src.Files)+1)
	for _, p := range j.src.Paths() {
		content = append(content, j.src.Files[p])
	}
	content = append(content, res.Code)
	css, err := m.stages.Styles.Generate(res.CSS, content...)
	if err != nil {
		return m.fail(j, types.BuildBundling, types.StageStyle, detail(ctx, err))
	}
	if ctx.Err() != nil {
		return m.fail(j, types.BuildBundling, types.StageStyle, detail(ctx, ctx.Err()))
	}

	if err := m.write(j, res, css); err != nil {
		return m.fail(j, types.BuildBundling, types.StageWrite, detail(ctx, err))
	}

	if err := m.advance(ctx, j.buildID, types.BuildBundling, types.BuildVerifying); err != nil {
		return m.fail(j, types.BuildBundling, types.StageVerify, err.Error())
	}
	if _, err := m.store.Verify(j.buildID); err != nil {
		return m.fail(j, types.BuildVerifying, types.StageVerify, apperr.Message(err))
	}

	if err := m.publish(ctx, j); err != nil {
		return m.fail(j, types.BuildVerifying, types.StagePublish, detail(ctx, err))
	}

	m.logger.Info("Build published",
		zap.String("build_id", j.buildID),
		zap.String("app_id", j.appID),
		zap.String("mode", string(j.mode)),
		zap.Duration("bundle_time", res.Took))
	m.emit(types.BuildEvent{BuildID: j.buildID, Status: types.BuildPublished, Final: true})

	m.mirrorArtifacts(j.buildID)
	return types.BuildPublished, ""
}

func (m *Manager) write(j job, res *bundler.Result, css []byte) error {
	if _, err := m.store.WriteArtifact(j.buildID, types.EntryFile, res.Code); err != nil {
		return err
	}
	if _, err := m.store.WriteArtifact(j.buildID, types.StylesFile, css); err != nil {
		return err
	}
	pkg, err := artifact.PackageJSON(j.buildID, res.Dependencies)
	if err != nil {
		return err
	}
	if _, err := m.store.WriteArtifact(j.buildID, types.PackageFile, pkg); err != nil {
		return err
	}
	_, err = m.store.WriteManifest(artifact.NewManifest(j.buildID, res.Code, j.caps, res.Dependencies))
	return err
}

// publish finalizes artifacts, then points the app record at the build and
// marks it published in one transaction.
func (m *Manager) publish(ctx context.Context, j job) error {
	if _, err := m.store.WriteBundleZip(j.buildID); err != nil {
		return fmt.Errorf("writing bundle.zip: %w", err)
	}
	if _, err := m.store.Finalize(j.buildID); err != nil {
		return fmt.Errorf("finalizing index: %w", err)
	}

	commit := func(tx *sql.Tx) error {
		return m.repo.TransitionTx(ctx, tx, j.buildID, types.BuildVerifying, types.BuildPublished, "", "")
	}
	var err error
	switch j.mode {
	case types.ModeReview:
		_, err = m.apps.SetPendingWith(ctx, j.appID, j.buildID, commit)
	default:
		_, err = m.apps.PublishWith(ctx, j.appID, j.buildID, commit)
	}
	return err
}

func (m *Manager) advance(ctx context.Context, buildID string, from, to types.BuildStatus) error {
	if _, err := m.repo.Transition(ctx, buildID, from, to, "", ""); err != nil {
		return err
	}
	m.emit(types.BuildEvent{BuildID: buildID, Status: to})
	return nil
}

// fail records the terminal failure. It uses a detached context so a
// timed-out build can still be recorded.
func (m *Manager) fail(j job, from types.BuildStatus, stage, reason string) (types.BuildStatus, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.repo.Transition(ctx, j.buildID, from, types.BuildFailed, stage, reason); err != nil {
		m.logger.Error("Failed to record build failure",
			zap.String("build_id", j.buildID), zap.Error(err))
	}

	m.logger.Warn("Build failed",
		zap.String("build_id", j.buildID),
		zap.String("app_id", j.appID),
		zap.String("stage", stage),
		zap.String("reason", reason))
	m.emit(types.BuildEvent{BuildID: j.buildID, Status: types.BuildFailed, Final: true, Stage: stage, Reason: reason})
	return types.BuildFailed, stage
}

func (m *Manager) emit(ev types.BuildEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	m.events.Publish(ev)
}

func (m *Manager) mirrorArtifacts(buildID string) {
	if m.mirror == nil {
		return
	}
	idx, err := m.store.ReadIndex(buildID)
	if err != nil {
		m.logger.Warn("Mirror skipped", zap.String("build_id", buildID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, time.Minute)
	defer cancel()
	for _, name := range artifact.Names(idx) {
		data, _, err := m.store.ReadArtifact(buildID, name)
		if err == nil {
			err = m.mirror.Put(ctx, buildID, name, data, artifact.ContentType(name, data))
		}
		if err != nil {
			m.logger.Warn("Mirror upload failed",
				zap.String("build_id", buildID), zap.String("artifact", name), zap.Error(err))
			return
		}
	}
}

// detail renders a failure for the build record.
func detail(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "build timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "build cancelled"
	}
	var be *bundler.Error
	if errors.As(err, &be) {
		return be.Detail
	}
	return err.Error()
}

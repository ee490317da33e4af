// Package artifact owns the on-disk layout of builds and the artifact
// index that records every file a build produced.
//
// Layout:
//
//	<root>/builds/<buildId>/source/...
//	<root>/builds/<buildId>/build/app.js
//	<root>/builds/<buildId>/build/styles.css
//	<root>/builds/<buildId>/build/manifest_v1.json
//	<root>/builds/<buildId>/build/package.json
//	<root>/builds/<buildId>/build/artifact_index.json
//	<root>/builds/<buildId>/build/bundle.zip
//
// Index updates are read-merge-write under a per-build lock, so concurrent
// writers of different files never lose each other's entries.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

const (
	buildsDir = "builds"
	sourceDir = "source"
	outputDir = "build"
)

// Store reads and writes build directories.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time

	locks sync.Map
}

// NewStore creates a store rooted at root.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(root, buildsDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating build root: %w", err)
	}
	return &Store{root: root, logger: logger, now: time.Now}, nil
}

// BuildsRoot returns the directory holding one subdirectory per build.
func (s *Store) BuildsRoot() string {
	return filepath.Join(s.root, buildsDir)
}

// Dir returns the directory of a build.
func (s *Store) Dir(buildID string) string {
	return filepath.Join(s.root, buildsDir, buildID)
}

// SourceDir returns where submitted source is persisted.
func (s *Store) SourceDir(buildID string) string {
	return filepath.Join(s.Dir(buildID), sourceDir)
}

// OutputDir returns where build outputs are written.
func (s *Store) OutputDir(buildID string) string {
	return filepath.Join(s.Dir(buildID), outputDir)
}

// Exists reports whether a build directory exists.
func (s *Store) Exists(buildID string) bool {
	if !id.ValidBuildID(buildID) {
		return false
	}
	info, err := os.Stat(s.Dir(buildID))
	return err == nil && info.IsDir()
}

// Remove deletes a build directory.
func (s *Store) Remove(buildID string) error {
	if !id.ValidBuildID(buildID) {
		return apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	s.locks.Delete(buildID)
	return os.RemoveAll(s.Dir(buildID))
}

func (s *Store) lock(buildID string) func() {
	v, _ := s.locks.LoadOrStore(buildID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func validName(name string) error {
	if name == "" || name == types.IndexFile || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return apperr.E(apperr.InputInvalid, "invalid artifact name %q", name)
	}
	return nil
}

// WriteArtifact writes data as name and records it in the index. Writing
// the same name again replaces the file and its index entry only.
func (s *Store) WriteArtifact(buildID, name string, data []byte) (types.ArtifactMeta, error) {
	if !id.ValidBuildID(buildID) {
		return types.ArtifactMeta{}, apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	if err := validName(name); err != nil {
		return types.ArtifactMeta{}, err
	}

	rel := outputDir + "/" + name
	if err := writeFileAtomic(filepath.Join(s.OutputDir(buildID), name), data); err != nil {
		return types.ArtifactMeta{}, fmt.Errorf("writing %s: %w", name, err)
	}

	meta := types.ArtifactMeta{
		Path:      rel,
		Size:      int64(len(data)),
		SHA256:    utils.SHA256Hex(data),
		CreatedAt: s.now().UTC(),
	}

	unlock := s.lock(buildID)
	defer unlock()

	idx, err := s.readIndex(buildID)
	if err != nil {
		return types.ArtifactMeta{}, err
	}
	idx.Files[name] = meta
	if err := s.writeIndex(idx); err != nil {
		return types.ArtifactMeta{}, err
	}
	return meta, nil
}

// ReadIndex returns the artifact index of a build.
func (s *Store) ReadIndex(buildID string) (*types.ArtifactIndex, error) {
	if !id.ValidBuildID(buildID) {
		return nil, apperr.E(apperr.InputInvalid, "invalid build id %q", buildID)
	}
	data, err := os.ReadFile(filepath.Join(s.OutputDir(buildID), types.IndexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.E(apperr.NotFound, "no artifact index for build %s", buildID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading artifact index: %w", err)
	}
	var idx types.ArtifactIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("decoding artifact index: %w", err)
	}
	if idx.Files == nil {
		idx.Files = make(map[string]types.ArtifactMeta)
	}
	return &idx, nil
}

// readIndex returns the index or a fresh one. Callers hold the build lock.
func (s *Store) readIndex(buildID string) (*types.ArtifactIndex, error) {
	idx, err := s.ReadIndex(buildID)
	if apperr.IsKind(err, apperr.NotFound) {
		return &types.ArtifactIndex{
			BuildID:   buildID,
			CreatedAt: s.now().UTC(),
			Files:     make(map[string]types.ArtifactMeta),
		}, nil
	}
	return idx, err
}

func (s *Store) writeIndex(idx *types.ArtifactIndex) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding artifact index: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.OutputDir(idx.BuildID), types.IndexFile), data)
}

// Finalize stamps the index as complete. Finalizing twice keeps the first
// timestamp.
func (s *Store) Finalize(buildID string) (*types.ArtifactIndex, error) {
	unlock := s.lock(buildID)
	defer unlock()

	idx, err := s.ReadIndex(buildID)
	if err != nil {
		return nil, err
	}
	if idx.FinalizedAt == nil {
		now := s.now().UTC()
		idx.FinalizedAt = &now
		if err := s.writeIndex(idx); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// ReadArtifact returns the contents of a recorded artifact.
func (s *Store) ReadArtifact(buildID, name string) ([]byte, types.ArtifactMeta, error) {
	path, meta, err := s.ArtifactPath(buildID, name)
	if err != nil {
		return nil, types.ArtifactMeta{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.ArtifactMeta{}, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, meta, nil
}

// ArtifactPath resolves a recorded artifact to its file path. Only names
// present in the index resolve.
func (s *Store) ArtifactPath(buildID, name string) (string, types.ArtifactMeta, error) {
	if err := validName(name); err != nil {
		return "", types.ArtifactMeta{}, err
	}
	idx, err := s.ReadIndex(buildID)
	if err != nil {
		return "", types.ArtifactMeta{}, err
	}
	meta, ok := idx.Files[name]
	if !ok {
		return "", types.ArtifactMeta{}, apperr.E(apperr.NotFound, "artifact %s not found in build %s", name, buildID)
	}
	return filepath.Join(s.Dir(buildID), filepath.FromSlash(meta.Path)), meta, nil
}

// Names returns the indexed artifact names, sorted.
func Names(idx *types.ArtifactIndex) []string {
	names := make([]string, 0, len(idx.Files))
	for n := range idx.Files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// writeFileAtomic writes through a temp file and rename so readers never
// observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	success = true
	return nil
}

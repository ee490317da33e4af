package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

// ManifestVersion is the schema version written to manifest_v1.json.
const ManifestVersion = 1

// zipEpoch is the modification time of every bundle.zip entry so that
// archives of identical builds are byte-identical.
var zipEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManifest describes a bundle whose entry file holds entry.
func NewManifest(buildID string, entry []byte, caps types.Capabilities, deps map[string]string) *types.Manifest {
	if deps == nil {
		deps = map[string]string{}
	}
	return &types.Manifest{
		Version:      ManifestVersion,
		BuildID:      buildID,
		Entry:        types.EntryFile,
		Integrity:    utils.Integrity(entry),
		Styles:       types.StylesFile,
		Capabilities: caps,
		Dependencies: deps,
	}
}

type packageJSON struct {
	Name         string            `json:"name"`
	Private      bool              `json:"private"`
	Version      string            `json:"version"`
	Type         string            `json:"type"`
	Dependencies map[string]string `json:"dependencies"`
}

// PackageJSON renders the dependency snapshot of a build.
func PackageJSON(buildID string, deps map[string]string) ([]byte, error) {
	if deps == nil {
		deps = map[string]string{}
	}
	return json.MarshalIndent(packageJSON{
		Name:         "build-" + buildID,
		Private:      true,
		Version:      "1.0.0",
		Type:         "module",
		Dependencies: deps,
	}, "", "  ")
}

// WriteManifest writes manifest_v1.json and indexes it.
func (s *Store) WriteManifest(m *types.Manifest) (types.ArtifactMeta, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return types.ArtifactMeta{}, fmt.Errorf("encoding manifest: %w", err)
	}
	return s.WriteArtifact(m.BuildID, types.ManifestFile, data)
}

// ReadManifest reads a build's manifest.
func (s *Store) ReadManifest(buildID string) (*types.Manifest, error) {
	data, _, err := s.ReadArtifact(buildID, types.ManifestFile)
	if err != nil {
		return nil, err
	}
	var m types.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	return &m, nil
}

// Verify checks that the entry, stylesheet and manifest exist and are
// non-empty, that every file the manifest references is indexed, and that
// the recorded integrity matches a fresh digest of the entry on disk.
func (s *Store) Verify(buildID string) (*types.Manifest, error) {
	idx, err := s.ReadIndex(buildID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BuildFailed, "artifact index missing")
	}
	m, err := s.ReadManifest(buildID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BuildFailed, "manifest unreadable")
	}

	required := append([]string{types.ManifestFile}, m.Referenced()...)
	for _, name := range required {
		meta, ok := idx.Files[name]
		if !ok {
			return nil, apperr.E(apperr.BuildFailed, "%s is not in the artifact index", name)
		}
		info, err := os.Stat(filepath.Join(s.Dir(buildID), filepath.FromSlash(meta.Path)))
		if err != nil {
			return nil, apperr.E(apperr.BuildFailed, "%s is missing", name)
		}
		if info.Size() == 0 {
			return nil, apperr.E(apperr.BuildFailed, "%s is empty", name)
		}
	}

	f, err := os.Open(filepath.Join(s.OutputDir(buildID), m.Entry))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BuildFailed, "entry unreadable")
	}
	defer f.Close()
	actual, err := utils.IntegrityReader(f)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.BuildFailed, "hashing entry")
	}
	if actual != m.Integrity {
		return nil, apperr.E(apperr.BuildFailed, "entry integrity mismatch: manifest %s, actual %s", m.Integrity, actual)
	}
	return m, nil
}

// WriteBundleZip packs every indexed artifact into bundle.zip. Entries are
// sorted and carry a fixed timestamp.
func (s *Store) WriteBundleZip(buildID string) (types.ArtifactMeta, error) {
	idx, err := s.ReadIndex(buildID)
	if err != nil {
		return types.ArtifactMeta{}, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range Names(idx) {
		if name == types.BundleZip {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.OutputDir(buildID), name))
		if err != nil {
			return types.ArtifactMeta{}, fmt.Errorf("reading %s: %w", name, err)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return types.ArtifactMeta{}, err
		}
		if _, err := w.Write(data); err != nil {
			return types.ArtifactMeta{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return types.ArtifactMeta{}, fmt.Errorf("closing bundle zip: %w", err)
	}
	return s.WriteArtifact(buildID, types.BundleZip, buf.Bytes())
}

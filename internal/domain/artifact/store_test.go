package artifact

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/id"
	"github.com/thesara-space/forge/internal/shared/types"
	"github.com/thesara-space/forge/internal/shared/utils"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func writeBuild(t *testing.T, s *Store, buildID string, entry []byte) *types.Manifest {
	t.Helper()
	_, err := s.WriteArtifact(buildID, types.EntryFile, entry)
	require.NoError(t, err)
	_, err = s.WriteArtifact(buildID, types.StylesFile, []byte("body{margin:0}"))
	require.NoError(t, err)
	deps := map[string]string{"react": "18.2.0"}
	pkg, err := PackageJSON(buildID, deps)
	require.NoError(t, err)
	_, err = s.WriteArtifact(buildID, types.PackageFile, pkg)
	require.NoError(t, err)

	m := NewManifest(buildID, entry, types.Capabilities{Storage: true}, deps)
	_, err = s.WriteManifest(m)
	require.NoError(t, err)
	return m
}

func TestWriteArtifactRecordsMeta(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()

	meta, err := s.WriteArtifact(buildID, types.EntryFile, []byte("export default 1"))
	require.NoError(t, err)

	assert.Equal(t, "build/app.js", meta.Path)
	assert.Equal(t, int64(16), meta.Size)
	assert.Equal(t, utils.SHA256Hex([]byte("export default 1")), meta.SHA256)

	idx, err := s.ReadIndex(buildID)
	require.NoError(t, err)
	assert.Equal(t, buildID, idx.BuildID)
	assert.Equal(t, meta, idx.Files[types.EntryFile])
}

func TestWriteArtifactUpsertsPerName(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()

	_, err := s.WriteArtifact(buildID, types.EntryFile, []byte("a"))
	require.NoError(t, err)
	_, err = s.WriteArtifact(buildID, types.StylesFile, []byte("b"))
	require.NoError(t, err)
	_, err = s.WriteArtifact(buildID, types.EntryFile, []byte("abc"))
	require.NoError(t, err)

	idx, err := s.ReadIndex(buildID)
	require.NoError(t, err)
	assert.Len(t, idx.Files, 2)
	assert.Equal(t, int64(3), idx.Files[types.EntryFile].Size)
	assert.Equal(t, int64(1), idx.Files[types.StylesFile].Size)
}

func TestConcurrentWritesKeepEveryEntry(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()

	names := []string{"a.js", "b.js", "c.js", "d.js", "e.js", "f.js", "g.js", "h.js"}
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := s.WriteArtifact(buildID, name, []byte(name))
			assert.NoError(t, err)
		}(n)
	}
	wg.Wait()

	idx, err := s.ReadIndex(buildID)
	require.NoError(t, err)
	assert.Equal(t, names, Names(idx))
}

func TestWriteArtifactRejectsBadNames(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()

	for _, name := range []string{"", "../app.js", "sub/app.js", `a\b`, types.IndexFile, ".."} {
		_, err := s.WriteArtifact(buildID, name, []byte("x"))
		assert.True(t, apperr.IsKind(err, apperr.InputInvalid), name)
	}

	_, err := s.WriteArtifact("../escape", types.EntryFile, []byte("x"))
	assert.True(t, apperr.IsKind(err, apperr.InputInvalid))
}

func TestReadIndexMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.ReadIndex(id.NewBuildID().String())
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestArtifactPathOnlyResolvesIndexedNames(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()
	writeBuild(t, s, buildID, []byte("export default function App(){}"))

	// Present on disk but never indexed.
	require.NoError(t, os.WriteFile(filepath.Join(s.OutputDir(buildID), "stray.js"), []byte("x"), 0o644))

	_, _, err := s.ArtifactPath(buildID, "stray.js")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))

	data, meta, err := s.ReadArtifact(buildID, types.StylesFile)
	require.NoError(t, err)
	assert.Equal(t, "body{margin:0}", string(data))
	assert.Equal(t, "build/styles.css", meta.Path)
}

func TestVerify(t *testing.T) {
	entry := []byte("export default function App(){}")

	t.Run("passes", func(t *testing.T) {
		s := newStore(t)
		buildID := id.NewBuildID().String()
		want := writeBuild(t, s, buildID, entry)

		m, err := s.Verify(buildID)
		require.NoError(t, err)
		assert.Equal(t, want, m)
	})

	t.Run("integrity mismatch", func(t *testing.T) {
		s := newStore(t)
		buildID := id.NewBuildID().String()
		writeBuild(t, s, buildID, entry)
		require.NoError(t, os.WriteFile(filepath.Join(s.OutputDir(buildID), types.EntryFile), []byte("tampered"), 0o644))

		_, err := s.Verify(buildID)
		assert.True(t, apperr.IsKind(err, apperr.BuildFailed))
		assert.Contains(t, err.Error(), "integrity")
	})

	t.Run("empty stylesheet", func(t *testing.T) {
		s := newStore(t)
		buildID := id.NewBuildID().String()
		writeBuild(t, s, buildID, entry)
		_, err := s.WriteArtifact(buildID, types.StylesFile, nil)
		require.NoError(t, err)

		_, err = s.Verify(buildID)
		assert.True(t, apperr.IsKind(err, apperr.BuildFailed))
		assert.Contains(t, err.Error(), "styles.css is empty")
	})

	t.Run("missing manifest", func(t *testing.T) {
		s := newStore(t)
		buildID := id.NewBuildID().String()
		_, err := s.WriteArtifact(buildID, types.EntryFile, entry)
		require.NoError(t, err)

		_, err = s.Verify(buildID)
		assert.True(t, apperr.IsKind(err, apperr.BuildFailed))
	})
}

func TestManifestIntegrityIsDeterministic(t *testing.T) {
	entry := []byte("export default 42")
	caps := types.Capabilities{Rooms: true}
	a := NewManifest("bld_a", entry, caps, nil)
	b := NewManifest("bld_a", entry, caps, nil)
	assert.Equal(t, a.Integrity, b.Integrity)
	assert.Equal(t, utils.Integrity(entry), a.Integrity)
	assert.NotNil(t, a.Dependencies)
}

func TestFinalizeKeepsFirstTimestamp(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()
	writeBuild(t, s, buildID, []byte("x"))

	first, err := s.Finalize(buildID)
	require.NoError(t, err)
	require.NotNil(t, first.FinalizedAt)

	second, err := s.Finalize(buildID)
	require.NoError(t, err)
	assert.Equal(t, first.FinalizedAt, second.FinalizedAt)
}

func TestWriteBundleZip(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()
	writeBuild(t, s, buildID, []byte("export default 1"))

	meta, err := s.WriteBundleZip(buildID)
	require.NoError(t, err)
	assert.Equal(t, "build/bundle.zip", meta.Path)

	data, _, err := s.ReadArtifact(buildID, types.BundleZip)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{types.EntryFile, types.ManifestFile, types.PackageFile, types.StylesFile}, names)

	again, err := s.WriteBundleZip(buildID)
	require.NoError(t, err)
	assert.Equal(t, meta.SHA256, again.SHA256)
}

func TestRemove(t *testing.T) {
	s := newStore(t)
	buildID := id.NewBuildID().String()
	writeBuild(t, s, buildID, []byte("x"))
	require.True(t, s.Exists(buildID))

	require.NoError(t, s.Remove(buildID))
	assert.False(t, s.Exists(buildID))
}

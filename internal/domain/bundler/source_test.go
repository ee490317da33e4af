package bundler

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

func makeZip(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return bytes.NewReader(buf.Bytes())
}

func TestFromZip(t *testing.T) {
	r := makeZip(t, map[string]string{
		"my-app/src/App.tsx":             "export default 1",
		"my-app/src/util.ts":             "export const x = 1",
		"my-app/node_modules/react/a.js": "junk",
		"my-app/.env":                    "SECRET=1",
		"my-app/README.md":               "docs",
		"my-app/public/logo.png":         "png",
	})

	src, err := FromZip(r, r.Size(), "", DefaultLimits(1))
	require.NoError(t, err)

	assert.Equal(t, "src/App.tsx", src.Entry)
	assert.Equal(t, []string{"public/logo.png", "src/App.tsx", "src/util.ts"}, src.Paths())
}

func TestFromZipRejectsTraversal(t *testing.T) {
	r := makeZip(t, map[string]string{
		"App.tsx":       "export default 1",
		"../../evil.js": "boom",
	})

	_, err := FromZip(r, r.Size(), "", DefaultLimits(1))
	require.Error(t, err)
	assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
}

func TestFromZipEnforcesSize(t *testing.T) {
	r := makeZip(t, map[string]string{
		"App.tsx": string(bytes.Repeat([]byte("a"), 2<<20)),
	})

	_, err := FromZip(r, r.Size(), "", DefaultLimits(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size limit")
}

func TestFromFilesValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		files []types.SourceFile
	}{
		{"empty", "", nil},
		{"absolute", "", []types.SourceFile{{Path: "/etc/passwd", Contents: []byte("x")}}},
		{"dotdot", "", []types.SourceFile{{Path: "a/../../b.js", Contents: []byte("x")}}},
		{"drive", "", []types.SourceFile{{Path: `C:\app.js`, Contents: []byte("x")}}},
		{"missing entry", "main.tsx", []types.SourceFile{{Path: "App.tsx", Contents: []byte("x")}}},
		{"duplicate", "", []types.SourceFile{
			{Path: "App.tsx", Contents: []byte("x")},
			{Path: "./App.tsx", Contents: []byte("y")},
		}},
		{"no entry", "", []types.SourceFile{
			{Path: "lib/a.ts", Contents: []byte("x")},
			{Path: "lib/b.ts", Contents: []byte("y")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromFiles(tt.entry, tt.files, DefaultLimits(1))
			require.Error(t, err)
			assert.Equal(t, apperr.InputInvalid, apperr.KindOf(err))
		})
	}
}

func TestFromSingleAndPersist(t *testing.T) {
	src, err := FromSingle("", "export default function App(){}", DefaultLimits(1))
	require.NoError(t, err)
	assert.Equal(t, DefaultEntry, src.Entry)

	dir := t.TempDir()
	require.NoError(t, src.Persist(dir))
	assert.Equal(t, dir, src.Root())
	assert.Equal(t, dir, src.aliasRoot())

	data, err := os.ReadFile(filepath.Join(dir, DefaultEntry))
	require.NoError(t, err)
	assert.Equal(t, "export default function App(){}", string(data))

	_, err = FromSingle("", "   ", DefaultLimits(1))
	assert.Error(t, err)
}

package bundler

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/zip"

	"github.com/thesara-space/forge/internal/shared/apperr"
	"github.com/thesara-space/forge/internal/shared/types"
)

// DefaultEntry is the entry file name for single-source submissions.
const DefaultEntry = "App.tsx"

var (
	// DefaultInclude selects source files kept from an archive.
	DefaultInclude = []string{"**/*.{js,jsx,ts,tsx,mjs,cjs,css,json,svg,png,jpg,jpeg,gif,webp}"}
	// DefaultExclude drops dependency trees, VCS data and dotfiles.
	DefaultExclude = []string{"**/node_modules/**", "**/.*", "**/.*/**", "__MACOSX/**"}

	entryCandidates = []string{
		"src/main.tsx", "src/main.jsx", "src/index.tsx", "src/index.jsx",
		"src/App.tsx", "src/App.jsx", "main.tsx", "main.jsx",
		"index.tsx", "index.jsx", "App.tsx", "App.jsx", "app.tsx", "app.jsx",
		"src/main.ts", "src/main.js", "index.ts", "index.js", "app.js",
	}
)

// Limits bound what a submission may contain.
type Limits struct {
	MaxBytes int64
	MaxFiles int
	Include  []string
	Exclude  []string
}

// DefaultLimits returns limits for a maxMB total source size.
func DefaultLimits(maxMB int) Limits {
	if maxMB <= 0 {
		maxMB = 10
	}
	return Limits{
		MaxBytes: int64(maxMB) << 20,
		MaxFiles: 500,
		Include:  DefaultInclude,
		Exclude:  DefaultExclude,
	}
}

// Source is a validated submission: relative slash paths to contents.
type Source struct {
	Entry string
	Files map[string][]byte

	root string
}

// FromSingle wraps one source text as a submission.
func FromSingle(entry, code string, lim Limits) (*Source, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperr.E(apperr.InputInvalid, "source is empty")
	}
	if entry == "" {
		entry = DefaultEntry
	}
	return FromFiles(entry, []types.SourceFile{{Path: entry, Contents: []byte(code)}}, lim)
}

// FromFiles validates a map of submitted files.
func FromFiles(entry string, files []types.SourceFile, lim Limits) (*Source, error) {
	if len(files) == 0 {
		return nil, apperr.E(apperr.InputInvalid, "no source files")
	}
	if lim.MaxFiles > 0 && len(files) > lim.MaxFiles {
		return nil, apperr.E(apperr.InputInvalid, "too many files: %d (max %d)", len(files), lim.MaxFiles)
	}

	src := &Source{Files: make(map[string][]byte, len(files))}
	var total int64
	for _, f := range files {
		p, err := cleanPath(f.Path)
		if err != nil {
			return nil, err
		}
		if _, dup := src.Files[p]; dup {
			return nil, apperr.E(apperr.InputInvalid, "duplicate file %q", p)
		}
		total += int64(len(f.Contents))
		if lim.MaxBytes > 0 && total > lim.MaxBytes {
			return nil, apperr.E(apperr.InputInvalid, "source exceeds %d bytes", lim.MaxBytes)
		}
		src.Files[p] = f.Contents
	}
	if err := src.pickEntry(entry); err != nil {
		return nil, err
	}
	return src, nil
}

// FromZip extracts a ZIP archive. Entries outside the include globs are
// skipped; entries escaping the archive root are rejected.
func FromZip(r io.ReaderAt, size int64, entry string, lim Limits) (*Source, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "invalid zip archive")
	}

	var files []types.SourceFile
	var total int64
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p, err := cleanPath(f.Name)
		if err != nil {
			return nil, err
		}
		if !selected(p, lim) {
			continue
		}
		if lim.MaxFiles > 0 && len(files) >= lim.MaxFiles {
			return nil, apperr.E(apperr.InputInvalid, "too many files (max %d)", lim.MaxFiles)
		}

		remaining := lim.MaxBytes - total
		if lim.MaxBytes <= 0 {
			remaining = 1 << 40
		}
		data, err := readZipFile(f, remaining)
		if err != nil {
			return nil, err
		}
		total += int64(len(data))
		files = append(files, types.SourceFile{Path: p, Contents: data})
	}
	if len(files) == 0 {
		return nil, apperr.E(apperr.InputInvalid, "archive contains no source files")
	}

	stripCommonDir(files)
	return FromFiles(entry, files, lim)
}

func readZipFile(f *zip.File, remaining int64) ([]byte, error) {
	if int64(f.UncompressedSize64) > remaining {
		return nil, apperr.E(apperr.InputInvalid, "archive exceeds size limit at %q", f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "unreadable archive entry")
	}
	defer rc.Close()

	// Declared sizes are not trusted.
	data, err := io.ReadAll(io.LimitReader(rc, remaining+1))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.InputInvalid, "unreadable archive entry")
	}
	if int64(len(data)) > remaining {
		return nil, apperr.E(apperr.InputInvalid, "archive exceeds size limit at %q", f.Name)
	}
	return data, nil
}

func selected(p string, lim Limits) bool {
	for _, pattern := range lim.Exclude {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return false
		}
	}
	if len(lim.Include) == 0 {
		return true
	}
	for _, pattern := range lim.Include {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}

// stripCommonDir removes a single top-level directory shared by all files.
func stripCommonDir(files []types.SourceFile) {
	first, _, ok := strings.Cut(files[0].Path, "/")
	if !ok {
		return
	}
	prefix := first + "/"
	for _, f := range files {
		if !strings.HasPrefix(f.Path, prefix) {
			return
		}
	}
	for i := range files {
		files[i].Path = strings.TrimPrefix(files[i].Path, prefix)
	}
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", apperr.E(apperr.InputInvalid, "invalid file path %q", p)
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if path.IsAbs(p) || strings.Contains(p, ":") {
		return "", apperr.E(apperr.InputInvalid, "absolute file path %q", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", apperr.E(apperr.InputInvalid, "file path %q escapes the source root", p)
	}
	return clean, nil
}

func (s *Source) pickEntry(entry string) error {
	if entry != "" {
		p, err := cleanPath(entry)
		if err != nil {
			return err
		}
		if _, ok := s.Files[p]; !ok {
			return apperr.E(apperr.InputInvalid, "entry %q not found in source", p)
		}
		s.Entry = p
		return nil
	}
	for _, c := range entryCandidates {
		if _, ok := s.Files[c]; ok {
			s.Entry = c
			return nil
		}
	}
	if len(s.Files) == 1 {
		for p := range s.Files {
			s.Entry = p
		}
		return nil
	}
	return apperr.E(apperr.InputInvalid, "no entry file found; tried %s", strings.Join(entryCandidates[:4], ", "))
}

// Paths returns the file paths in sorted order.
func (s *Source) Paths() []string {
	out := make([]string, 0, len(s.Files))
	for p := range s.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Persist writes the files under dir. Later calls to Root return dir.
func (s *Source) Persist(dir string) error {
	for _, p := range s.Paths() {
		full := filepath.Join(dir, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("failed to create source dir: %w", err)
		}
		if err := os.WriteFile(full, s.Files[p], 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}
	s.root = dir
	return nil
}

// Root returns the directory the source was persisted to.
func (s *Source) Root() string {
	return s.root
}

// aliasRoot is where "@/" points: src/ when present, else the root.
func (s *Source) aliasRoot() string {
	for p := range s.Files {
		if strings.HasPrefix(p, "src/") {
			return filepath.Join(s.root, "src")
		}
	}
	return s.root
}

var errNotPersisted = errors.New("source has not been persisted")

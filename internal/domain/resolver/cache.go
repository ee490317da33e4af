package resolver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMemEntries bounds the modules a Cache keeps in memory. Evicted
// entries are read back from disk.
const DefaultMemEntries = 256

// Cache is an on-disk, content-immutable module cache. An entry is written
// once; later writers of the same key leave the first entry in place.
type Cache struct {
	dir string
	mem *lru.Cache
}

type entryHeader struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// NewCache creates a cache rooted at dir holding DefaultMemEntries modules
// in memory.
func NewCache(dir string) (*Cache, error) {
	return NewCacheSize(dir, DefaultMemEntries)
}

// NewCacheSize creates a cache rooted at dir holding at most entries
// modules in memory.
func NewCacheSize(dir string, entries int) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	mem, err := lru.New(max(entries, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to create module lru: %w", err)
	}
	return &Cache{dir: dir, mem: mem}, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key[:2], key)
}

// Get returns the cached module for key, if any.
func (c *Cache) Get(key string) (*Module, bool, error) {
	if v, ok := c.mem.Get(key); ok {
		return v.(*Module), true, nil
	}

	f, err := os.Open(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	var hdr entryHeader
	if err := json.Unmarshal(line, &hdr); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, false, err
	}

	m := &Module{URL: hdr.URL, ContentType: hdr.ContentType, Contents: body}
	c.remember(key, m)
	return m, true, nil
}

// Put stores m under key unless an entry already exists.
func (c *Cache) Put(key string, m *Module) error {
	final := c.path(key)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return err
	}

	hdr, err := json.Marshal(entryHeader{URL: m.URL, ContentType: m.ContentType})
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(final), key+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	var buf bytes.Buffer
	buf.Grow(len(hdr) + 1 + len(m.Contents))
	buf.Write(hdr)
	buf.WriteByte('\n')
	buf.Write(m.Contents)
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Link never replaces an existing entry.
	if err := os.Link(tmpName, final); err != nil && !errors.Is(err, os.ErrExist) {
		if _, statErr := os.Stat(final); statErr != nil {
			if err := os.Rename(tmpName, final); err != nil {
				return err
			}
		}
	}

	c.remember(key, m)
	return nil
}

func (c *Cache) remember(key string, m *Module) {
	c.mem.ContainsOrAdd(key, m)
}

// MemLen returns the number of modules held in memory.
func (c *Cache) MemLen() int {
	return c.mem.Len()
}

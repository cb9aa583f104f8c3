// Package disk provides a persistent, byte-bounded LRU cache of files. It
// backs both the result cache and the download cache.
package disk

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	digest "github.com/opencontainers/go-digest"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

const (
	tmpSuffix = ".tmp"
	filePerm  = 0o644
	dirPerm   = 0o755
)

type entry struct {
	name string
	size int64
}

// Cache stores each logical key in a file named by the sha256 digest of the
// key. The index is rebuilt from the directory on Open, ordered by mtime.
type Cache struct {
	dir      string
	maxBytes int64
	logger   core.Logger
	locks    *utils.KeyLock

	mu        sync.Mutex
	items     map[string]*list.Element // file name -> entry
	order     *list.List               // front = most recent
	usedBytes int64
	editing   map[string]struct{}
}

// Open creates dir if needed and indexes the files already in it. Stale
// temporary files from interrupted edits are removed.
func Open(dir string, maxBytes int64, logger core.Logger) (*Cache, error) {
	if dir == "" {
		return nil, apperrors.New(apperrors.CategoryConfig, "disk.open", fmt.Errorf("cache dir must not be empty"))
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "disk.open.mkdir", err)
	}
	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
		locks:    utils.NewKeyLock(),
		items:    make(map[string]*list.Element),
		order:    list.New(),
		editing:  make(map[string]struct{}),
	}
	if err := c.rebuildIndex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) rebuildIndex() error {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "disk.open.readdir", err)
	}
	type found struct {
		name  string
		size  int64
		mtime time.Time
	}
	var files []found
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if strings.HasSuffix(name, tmpSuffix) {
			_ = os.Remove(filepath.Join(c.dir, name))
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, found{name: name, size: info.Size(), mtime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range files {
		c.items[f.name] = c.order.PushFront(&entry{name: f.name, size: f.size})
		c.usedBytes += f.size
	}
	c.trimLocked()
	return nil
}

// fileName maps a logical key to its on-disk name.
func fileName(key string) string { return digest.FromString(key).Encoded() }

func (c *Cache) path(name string) string { return filepath.Join(c.dir, name) }

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Get returns a snapshot of the committed entry for key.
func (c *Cache) Get(key string) (core.DiskSnapshot, bool) {
	name := fileName(key)
	c.mu.Lock()
	elem, ok := c.items[name]
	if ok {
		c.order.MoveToFront(elem)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}

	// File I/O stays outside c.mu; callers serialise per key with Lock.
	p := c.path(name)
	now := time.Now()
	if err := os.Chtimes(p, now, now); err != nil {
		c.mu.Lock()
		if cur, still := c.items[name]; still && cur == elem {
			c.removeElementLocked(elem)
		}
		c.mu.Unlock()
		return nil, false
	}
	return &snapshot{cache: c, key: key, path: p}, true
}

// Edit opens an editor for key. It returns a nil editor when another edit of
// the same key is in progress.
func (c *Cache) Edit(key string) (core.DiskEditor, error) {
	name := fileName(key)
	c.mu.Lock()
	if _, busy := c.editing[name]; busy {
		c.mu.Unlock()
		return nil, nil
	}
	c.editing[name] = struct{}{}
	c.mu.Unlock()

	f, err := os.CreateTemp(c.dir, name+".*"+tmpSuffix)
	if err != nil {
		c.endEdit(name)
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "disk.edit.create", err)
	}
	return &editor{cache: c, key: key, name: name, f: f}, nil
}

// Remove deletes key and reports whether it was present.
func (c *Cache) Remove(key string) bool {
	removed, _ := c.remove(key)
	return removed
}

func (c *Cache) remove(key string) (bool, error) {
	name := fileName(key)
	c.mu.Lock()
	elem, ok := c.items[name]
	if ok {
		c.removeElementLocked(elem)
	}
	c.mu.Unlock()
	if err := os.Remove(c.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return ok, apperrors.Wrap(apperrors.CategoryStorage, "disk.remove", err)
	}
	return ok, nil
}

// Lock serialises work on key.
func (c *Cache) Lock(ctx context.Context, key string) (func(), error) {
	return c.locks.Lock(ctx, key)
}

func (c *Cache) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

func (c *Cache) MaxSize() int64 { return c.maxBytes }

// Len returns the number of committed entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear deletes every committed entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	names := make([]string, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.usedBytes = 0
	c.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := os.Remove(c.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) && firstErr == nil {
			firstErr = apperrors.Wrap(apperrors.CategoryStorage, "disk.clear", err)
		}
	}
	return firstErr
}

func (c *Cache) commit(e *editor) error {
	if err := e.f.Close(); err != nil {
		_ = os.Remove(e.f.Name())
		c.endEdit(e.name)
		return apperrors.Wrap(apperrors.CategoryStorage, "disk.commit.close", err)
	}
	if err := os.Rename(e.f.Name(), c.path(e.name)); err != nil {
		_ = os.Remove(e.f.Name())
		c.endEdit(e.name)
		return apperrors.Wrap(apperrors.CategoryStorage, "disk.commit.rename", err)
	}

	c.mu.Lock()
	if old, ok := c.items[e.name]; ok {
		c.removeElementLocked(old)
	}
	c.items[e.name] = c.order.PushFront(&entry{name: e.name, size: e.written})
	c.usedBytes += e.written
	delete(c.editing, e.name)
	evicted := c.trimLocked()
	c.mu.Unlock()

	if c.logger != nil && evicted > 0 {
		c.logger.Debug("disk_cache.trim", "dir", c.dir, "evicted", evicted)
	}
	return nil
}

func (c *Cache) endEdit(name string) {
	c.mu.Lock()
	delete(c.editing, name)
	c.mu.Unlock()
}

// trimLocked deletes least recently used files until the cache fits maxBytes.
// maxBytes <= 0 means unbounded.
func (c *Cache) trimLocked() int {
	if c.maxBytes <= 0 {
		return 0
	}
	evicted := 0
	for c.usedBytes > c.maxBytes {
		elem := c.order.Back()
		if elem == nil {
			break
		}
		// Keep the newest entry even when it alone exceeds the budget.
		if elem == c.order.Front() {
			break
		}
		e := c.removeElementLocked(elem)
		_ = os.Remove(c.path(e.name))
		evicted++
	}
	return evicted
}

func (c *Cache) removeElementLocked(elem *list.Element) *entry {
	e := c.order.Remove(elem).(*entry)
	delete(c.items, e.name)
	c.usedBytes -= e.size
	return e
}

// ── Snapshot ──────────────────────────────────────────────────────────────────

type snapshot struct {
	cache *Cache
	key   string
	path  string
}

func (s *snapshot) Key() string  { return s.key }
func (s *snapshot) Path() string { return s.path }

func (s *snapshot) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "disk.snapshot.open", err)
	}
	return f, nil
}

func (s *snapshot) Remove() error {
	_, err := s.cache.remove(s.key)
	return err
}

// ── Editor ────────────────────────────────────────────────────────────────────

type editor struct {
	cache   *Cache
	key     string
	name    string
	f       *os.File
	written int64
	done    bool
}

func (e *editor) Write(p []byte) (int, error) {
	if e.done {
		return 0, os.ErrClosed
	}
	n, err := e.f.Write(p)
	e.written += int64(n)
	return n, err
}

// Commit publishes the written data under the editor's key.
func (e *editor) Commit() error {
	if e.done {
		return os.ErrClosed
	}
	e.done = true
	return e.cache.commit(e)
}

// Abort discards the written data. It is a no-op after Commit.
func (e *editor) Abort() error {
	if e.done {
		return nil
	}
	e.done = true
	_ = e.f.Close()
	err := os.Remove(e.f.Name())
	e.cache.endEdit(e.name)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "disk.abort", err)
	}
	return nil
}

var (
	_ core.DiskCache    = (*Cache)(nil)
	_ core.DiskSnapshot = (*snapshot)(nil)
	_ core.DiskEditor   = (*editor)(nil)
)

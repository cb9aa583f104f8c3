// Package memory provides the byte-bounded LRU memory cache for decoded
// bitmaps.
package memory

import (
	"container/list"
	"context"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/utils"
)

const defaultMaxBytes = 64 * 1024 * 1024

// DefaultMaxSize returns a quarter of the process memory limit (GOMEMLIMIT),
// or 64 MiB when no limit is set.
func DefaultMaxSize() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return defaultMaxBytes
	}
	return limit / 4
}

// Stats reports hit/miss counts for observability.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Entries   int
	SizeBytes int64
}

type cacheEntry struct {
	key   string
	value *core.MemoryCacheEntry
	size  int64
}

// Cache is a thread-safe LRU cache of decoded bitmaps. Entries whose bitmap
// is currently displayed are never evicted; they are revisited on later
// inserts once released.
type Cache struct {
	mu        sync.Mutex
	items     map[string]*list.Element
	order     *list.List // front = most recent, back = least recent
	maxBytes  int64
	usedBytes int64
	locks     *utils.KeyLock
	logger    core.Logger

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache bounded to maxBytes. maxBytes <= 0 selects DefaultMaxSize.
func New(maxBytes int64, logger core.Logger) *Cache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxSize()
	}
	return &Cache{
		items:    make(map[string]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		locks:    utils.NewKeyLock(),
		logger:   logger,
	}
}

// Get returns the entry for key and promotes it. Entries whose bitmap was
// already recycled are dropped and reported as a miss.
func (c *Cache) Get(key string) (*core.MemoryCacheEntry, bool) {
	c.mu.Lock()
	elem, ok := c.items[key]
	if ok {
		e := elem.Value.(*cacheEntry)
		if e.value.CountBitmap.IsRecycled() {
			c.removeElementLocked(elem)
			ok = false
		} else {
			c.order.MoveToFront(elem)
			c.mu.Unlock()
			c.hits.Add(1)
			return e.value, true
		}
	}
	c.mu.Unlock()
	c.misses.Add(1)
	return nil, false
}

// Put stores entry under key, replacing any previous entry, and returns the
// keys evicted to make room. An entry larger than the whole cache is refused.
func (c *Cache) Put(key string, entry *core.MemoryCacheEntry) ([]string, bool) {
	size := entry.ByteCount()
	if size > c.maxBytes {
		if c.logger != nil {
			c.logger.Warn("memory_cache.put.too_large", "key", key, "size", size, "max", c.maxBytes)
		}
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	entry.CountBitmap.SetCached(true)
	if elem, ok := c.items[key]; ok {
		c.removeElementLocked(elem)
	}
	evicted := c.evictLocked(c.maxBytes - size)
	elem := c.order.PushFront(&cacheEntry{key: key, value: entry, size: size})
	c.items[key] = elem
	c.usedBytes += size
	return evicted, true
}

// Remove deletes key and returns its entry, or nil.
func (c *Cache) Remove(key string) *core.MemoryCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.items[key]
	if !ok {
		return nil
	}
	return c.removeElementLocked(elem)
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

// Trim evicts non-displayed entries until the cache holds at most targetSize.
func (c *Cache) Trim(targetSize int64) {
	c.mu.Lock()
	evicted := c.evictLocked(targetSize)
	c.mu.Unlock()
	if c.logger != nil && len(evicted) > 0 {
		c.logger.Debug("memory_cache.trim", "evicted", len(evicted), "target", targetSize)
	}
}

// Clear evicts every entry that is not displayed.
func (c *Cache) Clear() { c.Trim(0) }

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.order.Len(),
		SizeBytes: c.usedBytes,
	}
}

// evictLocked walks from the least recently used end and drops entries until
// usedBytes <= target, skipping displayed bitmaps.
func (c *Cache) evictLocked(target int64) []string {
	var evicted []string
	for elem := c.order.Back(); elem != nil && c.usedBytes > target; {
		prev := elem.Prev()
		e := elem.Value.(*cacheEntry)
		if e.value.CountBitmap.DisplayedCount() == 0 {
			c.removeElementLocked(elem)
			c.evictions.Add(1)
			evicted = append(evicted, e.key)
		}
		elem = prev
	}
	return evicted
}

func (c *Cache) removeElementLocked(elem *list.Element) *core.MemoryCacheEntry {
	e := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.items, e.key)
	c.usedBytes -= e.size
	// May free the bitmap to the pool.
	e.value.CountBitmap.SetCached(false)
	return e.value
}

var _ core.MemoryCache = (*Cache)(nil)

package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-loader/cache/memory"
	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/pool"
)

// entry returns a 10x10 RGBA entry (400 bytes).
func entry(key string, p core.BitmapPool) *core.MemoryCacheEntry {
	cb := core.NewCountBitmap(core.NewBitmap(10, 10, core.ConfigRGBA), key, p, nil, false)
	return &core.MemoryCacheEntry{CountBitmap: cb}
}

func TestCache_PutGet(t *testing.T) {
	c := memory.New(1<<20, nil)
	e := entry("a", nil)
	_, ok := c.Put("a", e)
	require.True(t, ok)
	assert.Equal(t, 1, e.CountBitmap.CachedCount())

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, e, got)
	_, ok = c.Get("b")
	assert.False(t, ok)

	s := c.Stats()
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 1, s.Misses)
	assert.EqualValues(t, 400, s.SizeBytes)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	p := pool.New(1<<20, nil)
	c := memory.New(1000, nil)
	a, b := entry("a", p), entry("b", p)
	c.Put("a", a)
	c.Put("b", b)
	c.Get("a")

	evicted, ok := c.Put("c", entry("c", p))
	require.True(t, ok)
	assert.Equal(t, []string{"b"}, evicted)
	assert.True(t, b.CountBitmap.IsRecycled())
	assert.False(t, a.CountBitmap.IsRecycled())
	assert.EqualValues(t, 800, c.Size())
	assert.EqualValues(t, 400, p.Size(), "evicted bitmap returned to the pool")
}

func TestCache_SkipsDisplayedOnEviction(t *testing.T) {
	c := memory.New(1000, nil)
	a, b := entry("a", nil), entry("b", nil)
	c.Put("a", a)
	c.Put("b", b)
	a.CountBitmap.SetDisplayed(true)

	evicted, _ := c.Put("c", entry("c", nil))
	assert.Equal(t, []string{"b"}, evicted)
	_, ok := c.Get("a")
	assert.True(t, ok)

	c.Clear()
	assert.Equal(t, 1, c.Stats().Entries)
	a.CountBitmap.SetDisplayed(false)
	c.Clear()
	assert.Zero(t, c.Size())
	assert.True(t, a.CountBitmap.IsRecycled())
}

func TestCache_RefusesOversized(t *testing.T) {
	c := memory.New(100, nil)
	_, ok := c.Put("a", entry("a", nil))
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestCache_ReplaceAndRemove(t *testing.T) {
	c := memory.New(1<<20, nil)
	old := entry("a", nil)
	c.Put("a", old)
	c.Put("a", entry("a", nil))
	assert.True(t, old.CountBitmap.IsRecycled())
	assert.EqualValues(t, 400, c.Size())

	removed := c.Remove("a")
	require.NotNil(t, removed)
	assert.True(t, removed.CountBitmap.IsRecycled())
	assert.Nil(t, c.Remove("a"))
	assert.Zero(t, c.Size())
}

func TestCache_GetDropsRecycled(t *testing.T) {
	c := memory.New(1<<20, nil)
	e := entry("a", nil)
	c.Put("a", e)
	e.CountBitmap.SetCached(false)
	require.True(t, e.CountBitmap.IsRecycled())

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

func TestCache_Trim(t *testing.T) {
	c := memory.New(1<<20, nil)
	for _, k := range []string{"a", "b", "c"} {
		c.Put(k, entry(k, nil))
	}
	c.Trim(500)
	assert.EqualValues(t, 400, c.Size())
	_, ok := c.Get("c")
	assert.True(t, ok, "most recent entry kept")
}

func TestCache_LockSerializesKey(t *testing.T) {
	c := memory.New(1<<20, nil)
	unlock, err := c.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := c.Lock(context.Background(), "b")
	require.NoError(t, err)
	other()
	unlock()
}

func TestDefaultMaxSize(t *testing.T) {
	assert.Positive(t, memory.DefaultMaxSize())
	assert.Equal(t, memory.DefaultMaxSize(), memory.New(0, nil).MaxSize())
}

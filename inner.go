package imageloader

import (
	"github.com/Skryldev/image-loader/cache/memory"
	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/pool"
)

// Inner exposes the underlying core.Loader for advanced use (e.g., direct
// registry access in tests).  Prefer the high-level API for normal usage.
func (l *ImageLoader) Inner() *core.Loader { return l.inner }

// MemoryCache exposes the memory cache.
func (l *ImageLoader) MemoryCache() *memory.Cache { return l.memory }

// BitmapPool exposes the bitmap pool.
func (l *ImageLoader) BitmapPool() *pool.Pool { return l.pool }

// Package pool provides the byte-bounded bitmap reuse pool.
package pool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/Skryldev/image-loader/core"
)

const defaultMaxBytes = 32 * 1024 * 1024

// poolKey identifies a bucket of bitmaps with the same size and config.
type poolKey struct {
	width  int
	height int
	config core.PixelConfig
}

type pooled struct {
	key    poolKey
	bitmap *core.Bitmap
}

// Stats reports pool activity.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Refused   uint64
	Entries   int
	SizeBytes int64
}

// Pool groups free bitmaps by dimensions and config. When the total exceeds
// the byte budget the least recently freed bitmaps are dropped.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	buckets   map[poolKey][]*list.Element
	order     *list.List // front = most recently freed
	maxBytes  int64
	usedBytes int64
	logger    core.Logger

	hits    atomic.Uint64
	misses  atomic.Uint64
	refused atomic.Uint64
}

// New creates a pool bounded to maxBytes. maxBytes <= 0 selects 32 MiB.
func New(maxBytes int64, logger core.Logger) *Pool {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Pool{
		buckets:  make(map[poolKey][]*list.Element),
		order:    list.New(),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Get pops a free bitmap of exactly width x height and config. Reused bitmaps
// are cleared before being returned.
func (p *Pool) Get(width, height int, config core.PixelConfig) (*core.Bitmap, bool) {
	key := poolKey{width: width, height: height, config: config}

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) == 0 {
		p.mu.Unlock()
		p.misses.Add(1)
		return nil, false
	}
	elem := bucket[len(bucket)-1]
	p.setBucketLocked(key, bucket[:len(bucket)-1])
	b := p.order.Remove(elem).(*pooled).bitmap
	p.usedBytes -= b.ByteCount()
	p.mu.Unlock()

	p.hits.Add(1)
	b.Clear()
	return b, true
}

// GetOrCreate returns a pooled bitmap or allocates a new one.
func (p *Pool) GetOrCreate(width, height int, config core.PixelConfig, disallowReuse bool) *core.Bitmap {
	if !disallowReuse {
		if b, ok := p.Get(width, height, config); ok {
			return b
		}
	}
	return core.NewBitmap(width, height, config)
}

// Free offers b for reuse. Pinned bitmaps, nil bitmaps, disallowed reuse and
// bitmaps larger than the whole budget are refused.
func (p *Pool) Free(b *core.Bitmap, disallowReuse bool) bool {
	if b == nil || disallowReuse {
		return false
	}
	if b.Pinned() {
		p.refused.Add(1)
		if p.logger != nil {
			p.logger.Warn("bitmap_pool.free.pinned", "bitmap", b.String())
		}
		return false
	}
	size := b.ByteCount()
	if size > p.maxBytes {
		return false
	}
	key := poolKey{width: b.Width(), height: b.Height(), config: b.Config()}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.buckets[key] {
		if e.Value.(*pooled).bitmap == b {
			return false
		}
	}
	elem := p.order.PushFront(&pooled{key: key, bitmap: b})
	p.buckets[key] = append(p.buckets[key], elem)
	p.usedBytes += size
	p.trimLocked(p.maxBytes)
	return true
}

// SetInBitmap fills opts.InBitmap with a free bitmap matching the sampled size
// of imageSize, when mime supports decoding into a reused bitmap.
func (p *Pool) SetInBitmap(opts *core.DecodeOptions, imageSize core.Size, mime string, disallowReuse bool) bool {
	if disallowReuse || imageSize.IsEmpty() || !core.IsSupportInBitmap(mime, opts.SampleSize) {
		return false
	}
	size := core.SampledSize(imageSize, opts.SampleSize, mime)
	b, ok := p.Get(size.Width, size.Height, opts.Config)
	if !ok {
		return false
	}
	opts.InBitmap = b
	return true
}

// SetInBitmapForRegion is SetInBitmap for a region decode.
func (p *Pool) SetInBitmapForRegion(opts *core.DecodeOptions, regionSize core.Size, mime string, imageSize core.Size, disallowReuse bool) bool {
	if disallowReuse || regionSize.IsEmpty() || !core.IsSupportInBitmapForRegion(mime) {
		return false
	}
	size := core.SampledSizeForRegion(regionSize, opts.SampleSize, mime, imageSize)
	b, ok := p.Get(size.Width, size.Height, opts.Config)
	if !ok {
		return false
	}
	opts.InBitmap = b
	return true
}

func (p *Pool) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usedBytes
}

func (p *Pool) MaxSize() int64 { return p.maxBytes }

// Trim drops free bitmaps until the pool holds at most targetSize bytes.
func (p *Pool) Trim(targetSize int64) {
	p.mu.Lock()
	p.trimLocked(targetSize)
	p.mu.Unlock()
}

// Clear drops every free bitmap.
func (p *Pool) Clear() { p.Trim(0) }

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Refused:   p.refused.Load(),
		Entries:   p.order.Len(),
		SizeBytes: p.usedBytes,
	}
}

func (p *Pool) trimLocked(target int64) {
	for p.usedBytes > target {
		elem := p.order.Back()
		if elem == nil {
			return
		}
		pb := p.order.Remove(elem).(*pooled)
		p.usedBytes -= pb.bitmap.ByteCount()
		bucket := p.buckets[pb.key]
		for i, e := range bucket {
			if e == elem {
				bucket = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
		p.setBucketLocked(pb.key, bucket)
	}
}

func (p *Pool) setBucketLocked(key poolKey, bucket []*list.Element) {
	if len(bucket) == 0 {
		delete(p.buckets, key)
		return
	}
	p.buckets[key] = bucket
}

var _ core.BitmapPool = (*Pool)(nil)

package core

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
)

// ── Bitmap ────────────────────────────────────────────────────────────────────

// Bitmap is a mutable pixel buffer that can be recycled through a BitmapPool.
// A pinned bitmap is in use and must never be handed out again by the pool.
type Bitmap struct {
	img    draw.Image
	config PixelConfig
	pins   atomic.Int32
}

// NewBitmap allocates a zeroed bitmap of the given size and layout.
func NewBitmap(width, height int, config PixelConfig) *Bitmap {
	r := image.Rect(0, 0, width, height)
	var img draw.Image
	switch config {
	case ConfigNRGBA:
		img = image.NewNRGBA(r)
	case ConfigGray:
		img = image.NewGray(r)
	case ConfigRGBA64:
		img = image.NewRGBA64(r)
	default:
		config = ConfigRGBA
		img = image.NewRGBA(r)
	}
	return &Bitmap{img: img, config: config}
}

// BitmapFromImage wraps img when it already has the requested layout, an
// origin at (0,0) and tightly packed rows; otherwise its pixels are copied
// into a new bitmap.
func BitmapFromImage(img image.Image, config PixelConfig) *Bitmap {
	b := img.Bounds()
	if b.Min == (image.Point{}) {
		packed := b.Dx() * config.BytesPerPixel()
		switch v := img.(type) {
		case *image.RGBA:
			if config == ConfigRGBA && v.Stride == packed {
				return &Bitmap{img: v, config: config}
			}
		case *image.NRGBA:
			if config == ConfigNRGBA && v.Stride == packed {
				return &Bitmap{img: v, config: config}
			}
		case *image.Gray:
			if config == ConfigGray && v.Stride == packed {
				return &Bitmap{img: v, config: config}
			}
		case *image.RGBA64:
			if config == ConfigRGBA64 && v.Stride == packed {
				return &Bitmap{img: v, config: config}
			}
		}
	}
	out := NewBitmap(b.Dx(), b.Dy(), config)
	draw.Draw(out.img, out.img.Bounds(), img, b.Min, draw.Src)
	return out
}

// Image returns the underlying drawable image.
func (b *Bitmap) Image() draw.Image { return b.img }

func (b *Bitmap) Width() int          { return b.img.Bounds().Dx() }
func (b *Bitmap) Height() int         { return b.img.Bounds().Dy() }
func (b *Bitmap) Size() Size          { return Size{Width: b.Width(), Height: b.Height()} }
func (b *Bitmap) Config() PixelConfig { return b.config }
func (b *Bitmap) ByteCount() int64    { return int64(b.Width()) * int64(b.Height()) * int64(b.config.BytesPerPixel()) }
func (b *Bitmap) Pin()                { b.pins.Add(1) }
func (b *Bitmap) Unpin()              { b.pins.Add(-1) }
func (b *Bitmap) Pinned() bool        { return b.pins.Load() > 0 }
func (b *Bitmap) String() string      { return fmt.Sprintf("Bitmap(%dx%d,%s,@%p)", b.Width(), b.Height(), b.config, b) }

// Pix returns the tightly packed pixel bytes, row by row.
func (b *Bitmap) Pix() []byte {
	var pix []byte
	switch v := b.img.(type) {
	case *image.RGBA:
		pix = v.Pix
	case *image.NRGBA:
		pix = v.Pix
	case *image.Gray:
		pix = v.Pix
	case *image.RGBA64:
		pix = v.Pix
	}
	return pix[:b.ByteCount()]
}

// Clear zeroes every pixel.
func (b *Bitmap) Clear() {
	switch v := b.img.(type) {
	case *image.RGBA:
		clear(v.Pix)
	case *image.NRGBA:
		clear(v.Pix)
	case *image.Gray:
		clear(v.Pix)
	case *image.RGBA64:
		clear(v.Pix)
	}
}

// DrawScaled renders srcRect of src into the whole of dst, scaling as needed.
func DrawScaled(dst *Bitmap, src image.Image, srcRect image.Rectangle) {
	dr := dst.img.Bounds()
	if srcRect.Dx() == dr.Dx() && srcRect.Dy() == dr.Dy() {
		draw.Draw(dst.img, dr, src, srcRect.Min, draw.Src)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst.img, dr, src, srcRect, draw.Src, nil)
}

// ── CountBitmap ───────────────────────────────────────────────────────────────

// CountBitmap tracks why a bitmap is alive. While any of the cached, displayed
// or pending counts is above zero the bitmap stays pinned; once all three drop
// to zero it is returned to the pool exactly once.
type CountBitmap struct {
	mu            sync.Mutex
	bitmap        *Bitmap
	key           string
	pool          BitmapPool
	logger        Logger
	disallowReuse bool

	cached    int
	displayed int
	pending   int
	recycled  bool
}

// NewCountBitmap wraps and pins bitmap.
func NewCountBitmap(bitmap *Bitmap, key string, pool BitmapPool, logger Logger, disallowReuse bool) *CountBitmap {
	if logger == nil {
		logger = nopLogger{}
	}
	bitmap.Pin()
	return &CountBitmap{bitmap: bitmap, key: key, pool: pool, logger: logger, disallowReuse: disallowReuse}
}

// Bitmap returns the wrapped bitmap, or nil once it was recycled.
func (c *CountBitmap) Bitmap() *Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recycled {
		return nil
	}
	return c.bitmap
}

func (c *CountBitmap) Key() string { return c.key }

// ByteCount is the size of the wrapped bitmap.
func (c *CountBitmap) ByteCount() int64 { return c.bitmap.ByteCount() }

func (c *CountBitmap) SetCached(v bool)    { c.adjust(&c.cached, v, "cached") }
func (c *CountBitmap) SetDisplayed(v bool) { c.adjust(&c.displayed, v, "displayed") }
func (c *CountBitmap) SetPending(v bool)   { c.adjust(&c.pending, v, "pending") }

func (c *CountBitmap) CachedCount() int    { c.mu.Lock(); defer c.mu.Unlock(); return c.cached }
func (c *CountBitmap) DisplayedCount() int { c.mu.Lock(); defer c.mu.Unlock(); return c.displayed }
func (c *CountBitmap) PendingCount() int   { c.mu.Lock(); defer c.mu.Unlock(); return c.pending }

// RetainPending adds a pending count and returns the bitmap, or nil when it
// was already recycled.
func (c *CountBitmap) RetainPending() *Bitmap {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recycled {
		return nil
	}
	c.pending++
	return c.bitmap
}

// IsRecycled reports whether the bitmap has been returned to the pool.
func (c *CountBitmap) IsRecycled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recycled
}

func (c *CountBitmap) adjust(counter *int, inc bool, name string) {
	c.mu.Lock()
	if c.recycled {
		c.mu.Unlock()
		c.logger.Warn("count_bitmap.recycled", "key", c.key, "counter", name)
		return
	}
	if inc {
		*counter++
	} else if *counter > 0 {
		*counter--
	}
	free := c.cached == 0 && c.displayed == 0 && c.pending == 0
	if free {
		c.recycled = true
	}
	c.mu.Unlock()

	if free {
		c.bitmap.Unpin()
		if c.pool != nil {
			c.pool.Free(c.bitmap, c.disallowReuse)
		}
		c.logger.Debug("count_bitmap.free", "key", c.key, "bitmap", c.bitmap.String())
	}
}

package core

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

// ── Data sources ──────────────────────────────────────────────────────────────

// BytesDataSource serves an in-memory byte slice.
type BytesDataSource struct {
	data []byte
	from DataFrom
}

// NewBytesDataSource wraps data; it must not be mutated afterwards.
func NewBytesDataSource(data []byte, from DataFrom) *BytesDataSource {
	return &BytesDataSource{data: data, from: from}
}

func (d *BytesDataSource) DataFrom() DataFrom { return d.from }
func (d *BytesDataSource) Bytes() []byte      { return d.data }
func (d *BytesDataSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.data)), nil
}

// FileDataSource serves a file on disk.
type FileDataSource struct {
	path string
	from DataFrom
}

// NewFileDataSource serves path.
func NewFileDataSource(path string, from DataFrom) *FileDataSource {
	return &FileDataSource{path: path, from: from}
}

func (d *FileDataSource) DataFrom() DataFrom { return d.from }
func (d *FileDataSource) Path() string       { return d.path }
func (d *FileDataSource) Open() (io.ReadCloser, error) {
	return os.Open(d.path)
}

// FetchResult is the output of a Fetcher.
type FetchResult struct {
	DataSource DataSource
	MimeType   string
}

// ── Decode results ────────────────────────────────────────────────────────────

// BitmapDecodeResult is what the decode chain produces.
type BitmapDecodeResult struct {
	Bitmap          *Bitmap
	ImageInfo       ImageInfo
	DataFrom        DataFrom
	TransformedList []string
	Extras          map[string]string
}

// ResultOption overrides one field in NewResult.
type ResultOption func(*BitmapDecodeResult)

// WithBitmap replaces the bitmap.
func WithBitmap(b *Bitmap) ResultOption { return func(r *BitmapDecodeResult) { r.Bitmap = b } }

// WithImageInfo replaces the image info.
func WithImageInfo(i ImageInfo) ResultOption { return func(r *BitmapDecodeResult) { r.ImageInfo = i } }

// WithDataFrom replaces the data origin.
func WithDataFrom(d DataFrom) ResultOption { return func(r *BitmapDecodeResult) { r.DataFrom = d } }

// AddTransformed appends to the transformed list.
func AddTransformed(t string) ResultOption {
	return func(r *BitmapDecodeResult) { r.TransformedList = append(r.TransformedList, t) }
}

// AddExtra sets one extra value.
func AddExtra(k, v string) ResultOption {
	return func(r *BitmapDecodeResult) {
		if r.Extras == nil {
			r.Extras = map[string]string{}
		}
		r.Extras[k] = v
	}
}

// NewResult copies r and applies opts; the receiver is left untouched.
func (r *BitmapDecodeResult) NewResult(opts ...ResultOption) *BitmapDecodeResult {
	out := &BitmapDecodeResult{
		Bitmap:          r.Bitmap,
		ImageInfo:       r.ImageInfo,
		DataFrom:        r.DataFrom,
		TransformedList: slices.Clone(r.TransformedList),
		Extras:          maps.Clone(r.Extras),
	}
	for _, o := range opts {
		o(out)
	}
	return out
}

// TransformResult is the output of one Transformation.
type TransformResult struct {
	Bitmap      *Bitmap
	Transformed string
}

// ImageData is what the request chain produces.
type ImageData struct {
	Bitmap *Bitmap
	// CountBitmap is set when Bitmap is shared through the memory cache.
	CountBitmap     *CountBitmap
	ImageInfo       ImageInfo
	DataFrom        DataFrom
	TransformedList []string
	Extras          map[string]string
}

// MemoryCacheEntry is one memory cache value.
type MemoryCacheEntry struct {
	CountBitmap     *CountBitmap
	ImageInfo       ImageInfo
	TransformedList []string
	Extras          map[string]string
}

// ByteCount is the cost of the entry against the cache budget.
func (e *MemoryCacheEntry) ByteCount() int64 { return e.CountBitmap.ByteCount() }

// ── Final result ──────────────────────────────────────────────────────────────

// ImageResult is the outcome of one execution. Exactly one of Bitmap or Err is
// set, unless the request was cancelled, in which case Canceled is true.
type ImageResult struct {
	Request         *ImageRequest
	Bitmap          *Bitmap
	CountBitmap     *CountBitmap
	ImageInfo       ImageInfo
	DataFrom        DataFrom
	TransformedList []string
	Extras          map[string]string
	Err             error
	ErrorImage      image.Image
	Canceled        bool

	releaseOnce sync.Once
}

// Image returns the delivered image, or nil.
func (r *ImageResult) Image() image.Image {
	if r.Bitmap == nil {
		return nil
	}
	return r.Bitmap.Image()
}

// Release drops the display pin held on a memory-cached bitmap. It is safe to
// call more than once and on results without a shared bitmap.
func (r *ImageResult) Release() {
	r.releaseOnce.Do(func() {
		if r.CountBitmap != nil {
			r.CountBitmap.SetDisplayed(false)
		}
	})
}

// ── Transformed tags ──────────────────────────────────────────────────────────

func InSampledTransformed(sampleSize int) string {
	return fmt.Sprintf("InSampledTransformed(%d)", sampleSize)
}

func SubsamplingTransformed(r image.Rectangle) string {
	return fmt.Sprintf("SubsamplingTransformed(%d,%d,%d,%d)", r.Min.X, r.Min.Y, r.Max.X, r.Max.Y)
}

func ExifOrientationTransformed(orientation int) string {
	return fmt.Sprintf("ExifOrientationTransformed(%d)", orientation)
}

func ResizeTransformed(r Resize) string { return "ResizeTransformed(" + r.Key() + ")" }

// HasTransformed reports whether list contains a tag with prefix.
func HasTransformed(list []string, prefix string) bool {
	for _, t := range list {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

package core

import (
	"context"
	"image"
	"io"
	"time"
)

// ── Observability ─────────────────────────────────────────────────────────────

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// MetricsCollector receives performance observations from the loader.
type MetricsCollector interface {
	RecordStageTime(stage string, d time.Duration)
	RecordCacheLookup(cache string, hit bool)
	RecordBytes(bytes int64)
	RecordError(stage string, category string)
}

// Hook observes every named stage of a request. The context returned by
// BeforeStage is used for the stage and passed to AfterStage.
type Hook interface {
	BeforeStage(ctx context.Context, stage string, rc *RequestContext) context.Context
	AfterStage(ctx context.Context, stage string, rc *RequestContext, d time.Duration, err error)
}

// StateHook is notified on every executor state transition.
type StateHook interface {
	OnStateChange(rc *RequestContext, from, to State)
}

// ── Delivery ──────────────────────────────────────────────────────────────────

// Listener receives exactly one OnStart followed by exactly one of OnSuccess,
// OnError or OnCancel per execution.
type Listener interface {
	OnStart(req *ImageRequest)
	OnSuccess(req *ImageRequest, result *ImageResult)
	OnError(req *ImageRequest, result *ImageResult)
	OnCancel(req *ImageRequest)
}

// ListenerFuncs adapts plain functions to Listener. Nil funcs are skipped.
type ListenerFuncs struct {
	Start   func(req *ImageRequest)
	Success func(req *ImageRequest, result *ImageResult)
	Fail    func(req *ImageRequest, result *ImageResult)
	Cancel  func(req *ImageRequest)
}

func (f ListenerFuncs) OnStart(req *ImageRequest) {
	if f.Start != nil {
		f.Start(req)
	}
}

func (f ListenerFuncs) OnSuccess(req *ImageRequest, result *ImageResult) {
	if f.Success != nil {
		f.Success(req, result)
	}
}

func (f ListenerFuncs) OnError(req *ImageRequest, result *ImageResult) {
	if f.Fail != nil {
		f.Fail(req, result)
	}
}

func (f ListenerFuncs) OnCancel(req *ImageRequest) {
	if f.Cancel != nil {
		f.Cancel(req)
	}
}

// Target is the surface a request renders into.
type Target interface {
	OnStart(placeholder image.Image)
	OnError(errorImage image.Image)
	OnSuccess(result image.Image)
}

// DisplayCounter is implemented by targets that may opt out of keeping the
// delivered bitmap pinned. A target answering false must copy the pixels
// before OnSuccess returns.
type DisplayCounter interface {
	SupportsDisplayCount() bool
}

// StateImage renders a placeholder or error image. err is nil for placeholders.
type StateImage interface {
	Image(req *ImageRequest, err error) image.Image
}

// Transition animates a successful result onto its target.
type Transition interface {
	Transition()
}

// TransitionFactory creates a Transition for a result, or nil to deliver the
// image directly with Target.OnSuccess.
type TransitionFactory interface {
	Create(target Target, result *ImageResult, fromMemoryCache bool) Transition
}

// Dispatcher runs listener and target callbacks. Dispatch returns once fn ran.
type Dispatcher interface {
	Dispatch(fn func())
}

// ── Fetch / decode ────────────────────────────────────────────────────────────

// DataSource is a re-openable stream of encoded image bytes.
type DataSource interface {
	DataFrom() DataFrom
	Open() (io.ReadCloser, error)
}

// Fetcher produces the data source for one request.
type Fetcher interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

// FetcherFactory returns a Fetcher for req, or nil when it does not handle
// the request URI.
type FetcherFactory interface {
	Key() string
	Create(l *Loader, req *ImageRequest) Fetcher
}

// BitmapDecoder decodes one fetch result.
type BitmapDecoder interface {
	Decode(ctx context.Context) (*BitmapDecodeResult, error)
}

// BitmapDecoderFactory returns a BitmapDecoder, or nil when it cannot decode
// the fetched data.
type BitmapDecoderFactory interface {
	Key() string
	Create(l *Loader, rc *RequestContext, fr *FetchResult) BitmapDecoder
}

// Transformation rewrites a decoded bitmap. A nil result means the input was
// left untouched.
type Transformation interface {
	Key() string
	Transform(ctx context.Context, l *Loader, rc *RequestContext, input *Bitmap) (*TransformResult, error)
}

// ── Interceptors ──────────────────────────────────────────────────────────────

// RequestChain is handed to each RequestInterceptor.
type RequestChain interface {
	Loader() *Loader
	Request() *ImageRequest
	RequestContext() *RequestContext
	Proceed(ctx context.Context, req *ImageRequest) (*ImageData, error)
}

// RequestInterceptor wraps request execution. A non-empty Key participates
// in the request cache key.
type RequestInterceptor interface {
	Key() string
	SortWeight() int
	Intercept(ctx context.Context, chain RequestChain) (*ImageData, error)
}

// DecodeChain is handed to each DecodeInterceptor.
type DecodeChain interface {
	Loader() *Loader
	RequestContext() *RequestContext
	// FetchResult is nil until a stage fetched the data.
	FetchResult() *FetchResult
	Proceed(ctx context.Context) (*BitmapDecodeResult, error)
}

// DecodeInterceptor wraps bitmap decoding. A non-empty Key participates in
// the request cache key.
type DecodeInterceptor interface {
	Key() string
	SortWeight() int
	Intercept(ctx context.Context, chain DecodeChain) (*BitmapDecodeResult, error)
}

// ── Caches ────────────────────────────────────────────────────────────────────

// MemoryCache holds decoded bitmaps.
type MemoryCache interface {
	Get(key string) (*MemoryCacheEntry, bool)
	// Put stores entry and returns the keys evicted to make room. ok is false
	// when the entry could not be stored at all.
	Put(key string, entry *MemoryCacheEntry) (evicted []string, ok bool)
	Remove(key string) *MemoryCacheEntry
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Size() int64
	MaxSize() int64
	Trim(targetSize int64)
	Clear()
}

// DiskSnapshot is a committed disk cache entry.
type DiskSnapshot interface {
	Key() string
	Path() string
	Open() (io.ReadCloser, error)
	Remove() error
}

// DiskEditor writes a disk cache entry. Nothing is visible until Commit.
type DiskEditor interface {
	io.Writer
	Commit() error
	Abort() error
}

// DiskCache is a persistent key/value store for encoded data.
type DiskCache interface {
	Get(key string) (DiskSnapshot, bool)
	// Edit returns a nil editor when the key is already being edited.
	Edit(key string) (DiskEditor, error)
	Remove(key string) bool
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Size() int64
	MaxSize() int64
	Clear() error
}

// BitmapPool recycles bitmaps by size and config.
type BitmapPool interface {
	Get(width, height int, config PixelConfig) (*Bitmap, bool)
	GetOrCreate(width, height int, config PixelConfig, disallowReuse bool) *Bitmap
	// Free offers b for reuse. It refuses (returns false) pinned bitmaps.
	Free(b *Bitmap, disallowReuse bool) bool
	// SetInBitmap fills opts.InBitmap with a pooled bitmap fitting a decode of
	// imageSize at opts.SampleSize, when the format supports it.
	SetInBitmap(opts *DecodeOptions, imageSize Size, mime string, disallowReuse bool) bool
	// SetInBitmapForRegion is SetInBitmap for a decode of regionSize.
	SetInBitmapForRegion(opts *DecodeOptions, regionSize Size, mime string, imageSize Size, disallowReuse bool) bool
	Size() int64
	MaxSize() int64
	Clear()
}

// ResultCodec stores transformed bitmaps in the result cache.
type ResultCodec interface {
	MimeType() string
	Encode(w io.Writer, b *Bitmap) error
	// DecodeConfig reads the stored bitmap size without decoding pixels.
	DecodeConfig(r io.Reader) (Size, error)
	// Decode writes into opts.InBitmap when set, else into alloc(w, h).
	Decode(r io.Reader, opts *DecodeOptions, alloc func(w, h int) *Bitmap) (*Bitmap, error)
}

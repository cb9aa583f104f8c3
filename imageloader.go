// Package imageloader wires the loader's caches, fetchers, decoders and
// interceptors into a ready-to-use ImageLoader.
package imageloader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/encoder"
	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/cache/disk"
	"github.com/Skryldev/image-loader/cache/memory"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/hooks"
	"github.com/Skryldev/image-loader/pipeline"
	"github.com/Skryldev/image-loader/pool"
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// NewRequest starts building a request for uri.
func NewRequest(uri string) *core.RequestBuilder { return core.NewRequest(uri) }

// ImageLoader is the primary entry point.
type ImageLoader struct {
	inner    *core.Loader
	memory   *memory.Cache
	pool     *pool.Pool
	result   *disk.Cache
	download *disk.Cache
	metrics  *hooks.InMemoryMetrics
}

// Option customises New. Registry additions take precedence over the
// built-in components.
type Option func(*options)

type options struct {
	logger        core.Logger
	metrics       core.MetricsCollector
	fetchers      []core.FetcherFactory
	decoders      []core.BitmapDecoderFactory
	requestIcpts  []core.RequestInterceptor
	decodeIcpts   []core.DecodeInterceptor
	globalOptions core.ImageOptions
	dispatcher    core.Dispatcher
	gcs           fetcher.GCSOpener
}

// WithLogger replaces the logrus logger built from config.LogLevel.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics sends metrics to m in addition to the built-in in-memory store.
func WithMetrics(m core.MetricsCollector) Option { return func(o *options) { o.metrics = m } }

// WithFetchers registers extra fetcher factories ahead of the built-in ones.
func WithFetchers(f ...core.FetcherFactory) Option {
	return func(o *options) { o.fetchers = append(o.fetchers, f...) }
}

// WithDecoders registers extra decoders ahead of the standard library decoder.
func WithDecoders(d ...core.BitmapDecoderFactory) Option {
	return func(o *options) { o.decoders = append(o.decoders, d...) }
}

// WithRequestInterceptors adds request interceptors.
func WithRequestInterceptors(i ...core.RequestInterceptor) Option {
	return func(o *options) { o.requestIcpts = append(o.requestIcpts, i...) }
}

// WithDecodeInterceptors adds decode interceptors.
func WithDecodeInterceptors(i ...core.DecodeInterceptor) Option {
	return func(o *options) { o.decodeIcpts = append(o.decodeIcpts, i...) }
}

// WithGlobalOptions sets options merged under every request's own.
func WithGlobalOptions(g core.ImageOptions) Option {
	return func(o *options) { o.globalOptions = g }
}

// WithDispatcher sets where target and listener callbacks run.
func WithDispatcher(d core.Dispatcher) Option { return func(o *options) { o.dispatcher = d } }

// WithGCS enables gs:// URIs through opener.
func WithGCS(opener fetcher.GCSOpener) Option { return func(o *options) { o.gcs = opener } }

// New creates a fully wired ImageLoader. Disk caches are opened only when
// their directory is configured; s3:// is enabled when cfg.S3.Region is set.
func New(cfg config.Config, opts ...Option) (*ImageLoader, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "imageloader.new", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = hooks.NewLeveledLogger(cfg.LogLevel)
	}

	il := &ImageLoader{
		memory:  memory.New(cfg.MemoryCacheBytes, o.logger),
		pool:    pool.New(cfg.BitmapPoolBytes, o.logger),
		metrics: hooks.NewInMemoryMetrics(),
	}
	var err error
	if cfg.ResultCache.Dir != "" {
		if il.result, err = disk.Open(cfg.ResultCache.Dir, cfg.ResultCache.MaxBytes, o.logger); err != nil {
			return nil, err
		}
	}
	if cfg.DownloadCache.Dir != "" {
		if il.download, err = disk.Open(cfg.DownloadCache.Dir, cfg.DownloadCache.MaxBytes, o.logger); err != nil {
			return nil, err
		}
	}
	codec, err := encoder.New(cfg)
	if err != nil {
		return nil, err
	}

	fetchers := append([]core.FetcherFactory(nil), o.fetchers...)
	if cfg.S3.Region != "" {
		client, err := fetcher.NewAWSClient(cfg.S3)
		if err != nil {
			return nil, err
		}
		s3, err := fetcher.NewS3(client, cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, s3)
	}
	if o.gcs != nil {
		gcs, err := fetcher.NewGCS(o.gcs, cfg.MaxImageBytes)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, gcs)
	}
	fetchers = append(fetchers, fetcher.Defaults(fetcher.NewHTTP(cfg))...)

	reg := pipeline.Defaults(core.NewRegistryBuilder()).
		AddRequestInterceptor(o.requestIcpts...).
		AddDecodeInterceptor(o.decodeIcpts...).
		AddFetcher(fetchers...).
		AddDecoder(o.decoders...).
		AddDecoder(decoder.Std{}).
		Build()

	components := core.Components{
		MemoryCache:   il.memory,
		BitmapPool:    il.pool,
		ResultCodec:   codec,
		Dispatcher:    o.dispatcher,
		GlobalOptions: o.globalOptions,
	}
	// Typed nil pointers must not reach the loader's interface fields.
	if il.result != nil {
		components.ResultCache = il.result
	}
	if il.download != nil {
		components.DownloadCache = il.download
	}

	il.inner = core.New(cfg, reg, components)
	il.inner.SetLogger(o.logger)
	var collector core.MetricsCollector = il.metrics
	if o.metrics != nil {
		collector = multiCollector{il.metrics, o.metrics}
	}
	il.inner.SetMetrics(collector)
	il.inner.AddHook(hooks.NewLoggingHook(o.logger))
	il.inner.AddHook(hooks.NewMetricsHook(collector))
	return il, nil
}

// AddHook registers an observer for loader stage events.
func (l *ImageLoader) AddHook(h core.Hook) { l.inner.AddHook(h) }

// AddListener registers a listener notified for every request.
func (l *ImageLoader) AddListener(li core.Listener) { l.inner.AddListener(li) }

// Start starts the background worker pool used by Enqueue.
func (l *ImageLoader) Start() { l.inner.Start() }

// Stop drains and shuts down the worker pool.
func (l *ImageLoader) Stop() { l.inner.Stop() }

// Execute runs req synchronously.
func (l *ImageLoader) Execute(ctx context.Context, req *core.ImageRequest) *core.ImageResult {
	return l.inner.Execute(ctx, req)
}

// Enqueue submits req to the worker pool.
func (l *ImageLoader) Enqueue(ctx context.Context, req *core.ImageRequest) (core.Disposable, error) {
	return l.inner.Enqueue(ctx, req)
}

// Batch runs reqs concurrently.
func (l *ImageLoader) Batch(ctx context.Context, reqs []*core.ImageRequest) []*core.ImageResult {
	return l.inner.Batch(ctx, reqs)
}

// NewRequestManager returns a manager for one display surface.
func (l *ImageLoader) NewRequestManager() *core.RequestManager { return core.NewRequestManager(l.inner) }

// Stats is a point-in-time view of the loader.
type Stats struct {
	Succeeded, Failed, Canceled int64
	Memory                      memory.Stats
	Pool                        pool.Stats
	ResultCacheBytes            int64
	DownloadCacheBytes          int64
	Metrics                     hooks.MetricsSnapshot
}

// Stats returns lightweight loader statistics.
func (l *ImageLoader) Stats() Stats {
	s := Stats{
		Succeeded: l.inner.SuccessCount(),
		Failed:    l.inner.ErrorCount(),
		Canceled:  l.inner.CancelCount(),
		Memory:    l.memory.Stats(),
		Pool:      l.pool.Stats(),
		Metrics:   l.metrics.Snapshot(),
	}
	if l.result != nil {
		s.ResultCacheBytes = l.result.Size()
	}
	if l.download != nil {
		s.DownloadCacheBytes = l.download.Size()
	}
	return s
}

// ClearMemory empties the memory cache and the bitmap pool. Displayed
// bitmaps stay cached.
func (l *ImageLoader) ClearMemory() {
	l.memory.Clear()
	l.pool.Clear()
}

// ClearDisk removes every entry of both disk caches.
func (l *ImageLoader) ClearDisk() error {
	var errs []error
	for _, c := range []*disk.Cache{l.result, l.download} {
		if c == nil {
			continue
		}
		if err := c.Clear(); err != nil {
			errs = append(errs, fmt.Errorf("clear %s: %w", c.Dir(), err))
		}
	}
	return errors.Join(errs...)
}

// ── Metrics fan-out ───────────────────────────────────────────────────────────

type multiCollector []core.MetricsCollector

func (m multiCollector) RecordStageTime(stage string, d time.Duration) {
	for _, c := range m {
		c.RecordStageTime(stage, d)
	}
}

func (m multiCollector) RecordCacheLookup(cache string, hit bool) {
	for _, c := range m {
		c.RecordCacheLookup(cache, hit)
	}
}

func (m multiCollector) RecordBytes(bytes int64) {
	for _, c := range m {
		c.RecordBytes(bytes)
	}
}

func (m multiCollector) RecordError(stage string, category string) {
	for _, c := range m {
		c.RecordError(stage, category)
	}
}

package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Skryldev/image-loader/config"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Components are the long-lived collaborators of a Loader. Nil caches fall
// back to no-op implementations.
type Components struct {
	MemoryCache   MemoryCache
	ResultCache   DiskCache
	DownloadCache DiskCache
	BitmapPool    BitmapPool
	ResultCodec   ResultCodec
	Dispatcher    Dispatcher
	GlobalOptions ImageOptions
}

// Loader is the central orchestrator.  It is safe for concurrent use.
type Loader struct {
	cfg        config.Config
	registry   *ComponentRegistry
	components Components
	hooks      []Hook
	stateHooks []StateHook
	listeners  []Listener
	logger     Logger
	metrics    MetricsCollector

	// Worker pool.
	jobQueue chan *Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}
	// submitMu orders submissions against Stop: once stopped is set under
	// it, no job can reach jobQueue after the drain.
	submitMu sync.Mutex
	stopped  atomic.Bool

	// Atomic counters for lightweight internal metrics.
	successCount int64
	errorCount   int64
	cancelCount  int64
}

// New creates a Loader with the given config.  Call Start() before enqueueing
// requests; call Stop() when done. Execute works without Start.
func New(cfg config.Config, reg *ComponentRegistry, c Components) *Loader {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	if reg == nil {
		reg = NewRegistryBuilder().Build()
	}
	if c.MemoryCache == nil {
		c.MemoryCache = noopMemoryCache{}
	}
	if c.BitmapPool == nil {
		c.BitmapPool = noopBitmapPool{}
	}
	if c.Dispatcher == nil {
		c.Dispatcher = ImmediateDispatcher{}
	}
	return &Loader{
		cfg:        cfg,
		registry:   reg,
		components: c,
		logger:     nopLogger{},
		metrics:    nopMetrics{},
		jobQueue:   make(chan *Job, queueSize),
		shutdown:   make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (l *Loader) SetLogger(lg Logger) {
	if lg != nil {
		l.logger = lg
	}
}

// SetMetrics attaches a metrics collector.
func (l *Loader) SetMetrics(m MetricsCollector) {
	if m != nil {
		l.metrics = m
	}
}

// AddHook registers a stage hook. A hook that also implements StateHook
// receives state transitions.
func (l *Loader) AddHook(h Hook) {
	l.hooks = append(l.hooks, h)
	if sh, ok := h.(StateHook); ok {
		l.stateHooks = append(l.stateHooks, sh)
	}
}

// AddStateHook registers a state transition observer.
func (l *Loader) AddStateHook(h StateHook) { l.stateHooks = append(l.stateHooks, h) }

// AddListener registers a listener notified for every request, after the
// request's own listeners.
func (l *Loader) AddListener(li Listener) { l.listeners = append(l.listeners, li) }

func (l *Loader) Config() config.Config        { return l.cfg }
func (l *Loader) Registry() *ComponentRegistry { return l.registry }
func (l *Loader) Logger() Logger               { return l.logger }
func (l *Loader) Metrics() MetricsCollector    { return l.metrics }
func (l *Loader) MemoryCache() MemoryCache     { return l.components.MemoryCache }
func (l *Loader) BitmapPool() BitmapPool       { return l.components.BitmapPool }
func (l *Loader) ResultCodec() ResultCodec     { return l.components.ResultCodec }
func (l *Loader) GlobalOptions() ImageOptions  { return l.components.GlobalOptions }

// ResultCache returns the result disk cache; ok is false when disabled.
func (l *Loader) ResultCache() (DiskCache, bool) {
	return l.components.ResultCache, l.components.ResultCache != nil
}

// DownloadCache returns the download disk cache; ok is false when disabled.
func (l *Loader) DownloadCache() (DiskCache, bool) {
	return l.components.DownloadCache, l.components.DownloadCache != nil
}

// DisplaySize is the resize size used when a request does not define one.
func (l *Loader) DisplaySize() Size {
	return Size{Width: l.cfg.DisplayWidth, Height: l.cfg.DisplayHeight}
}

// Start launches the worker pool.  It is idempotent.
func (l *Loader) Start() {
	l.once.Do(func() {
		workerCount := l.cfg.WorkerCount
		if workerCount <= 0 {
			workerCount = runtime.NumCPU()
		}
		for i := 0; i < workerCount; i++ {
			l.wg.Add(1)
			go l.worker()
		}
	})
}

// Stop shuts down all workers. Requests still queued run with a cancelled
// context so their listeners see OnCancel.
func (l *Loader) Stop() {
	l.stopOnce.Do(func() {
		l.submitMu.Lock()
		l.stopped.Store(true)
		l.submitMu.Unlock()
		close(l.shutdown)
		l.wg.Wait()
		for {
			select {
			case job := <-l.jobQueue:
				job.cancel()
				l.runJob(job)
			default:
				return
			}
		}
	})
}

// Stage runs fn as a named, hooked and timed stage of rc.
func (l *Loader) Stage(ctx context.Context, name string, rc *RequestContext, fn func(ctx context.Context) error) error {
	for _, h := range l.hooks {
		ctx = h.BeforeStage(ctx, name, rc)
	}
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	for _, h := range l.hooks {
		h.AfterStage(ctx, name, rc, elapsed, err)
	}
	return err
}

// Fetch obtains the data for rc, retrying transient failures.
func (l *Loader) Fetch(ctx context.Context, rc *RequestContext) (*FetchResult, error) {
	rc.SetState(StateFetching)
	fetcher, err := l.registry.NewFetcher(l, rc.Request())
	if err != nil {
		return nil, err
	}
	var fr *FetchResult
	err = l.Stage(ctx, "fetch", rc, func(ctx context.Context) error {
		var ferr error
		fr, ferr = l.runWithRetry(ctx, fetcher)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	if b, ok := fr.DataSource.(*BytesDataSource); ok {
		l.metrics.RecordBytes(int64(len(b.Bytes())))
	}
	return fr, nil
}

func (l *Loader) runWithRetry(ctx context.Context, f Fetcher) (*FetchResult, error) {
	maxRetries := l.cfg.MaxRetries
	delay := l.cfg.RetryDelay

	var (
		result *FetchResult
		err    error
	)
	for i := 0; i <= maxRetries; i++ {
		result, err = f.Fetch(ctx)
		if err == nil || !apperrors.IsRetryable(err) {
			return result, err
		}
		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return result, err
}

// DecodeReusing runs decode with a pooled bitmap in opts.InBitmap when the
// format allows it. When the reused bitmap is rejected (ErrInBitmap) it is
// freed and the decode is retried once without reuse.
func (l *Loader) DecodeReusing(opts *DecodeOptions, imageSize Size, mime string, disallowReuse bool,
	decode func(opts *DecodeOptions) (*Bitmap, error)) (*Bitmap, error) {
	pool := l.BitmapPool()
	if opts.Region != nil {
		region := Size{Width: opts.Region.Dx(), Height: opts.Region.Dy()}
		pool.SetInBitmapForRegion(opts, region, mime, imageSize, disallowReuse)
	} else {
		pool.SetInBitmap(opts, imageSize, mime, disallowReuse)
	}
	b, err := decode(opts)
	if err == nil {
		return b, nil
	}
	if opts.InBitmap == nil {
		return nil, err
	}
	if !errors.Is(err, apperrors.ErrInBitmap) {
		pool.Free(opts.InBitmap, disallowReuse)
		opts.InBitmap = nil
		return nil, err
	}
	reused := opts.InBitmap
	opts.InBitmap = nil
	pool.Free(reused, disallowReuse)
	l.logger.Warn("decode.in_bitmap.retry", "bitmap", reused.String(), "mime", mime, "error", err.Error())
	return decode(opts)
}

// Batch executes reqs concurrently (fan-out / fan-in).
func (l *Loader) Batch(ctx context.Context, reqs []*ImageRequest) []*ImageResult {
	results := make([]*ImageResult, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r *ImageRequest) {
			defer wg.Done()
			results[idx] = l.Execute(ctx, r)
		}(i, req)
	}
	wg.Wait()
	return results
}

// SuccessCount returns the number of successful executions.
func (l *Loader) SuccessCount() int64 { return atomic.LoadInt64(&l.successCount) }

// ErrorCount returns the number of failed executions.
func (l *Loader) ErrorCount() int64 { return atomic.LoadInt64(&l.errorCount) }

// CancelCount returns the number of cancelled executions.
func (l *Loader) CancelCount() int64 { return atomic.LoadInt64(&l.cancelCount) }

func newRequestID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id
}

// ── Defaults ──────────────────────────────────────────────────────────────────

// ImmediateDispatcher runs callbacks on the calling goroutine.
type ImmediateDispatcher struct{}

func (ImmediateDispatcher) Dispatch(fn func()) { fn() }

// SerialDispatcher runs callbacks one at a time on a dedicated goroutine,
// the way a UI main thread would.
type SerialDispatcher struct {
	ch   chan func()
	done chan struct{}
	once sync.Once
}

// NewSerialDispatcher starts the dispatch goroutine. Call Close when done.
func NewSerialDispatcher() *SerialDispatcher {
	d := &SerialDispatcher{ch: make(chan func()), done: make(chan struct{})}
	go func() {
		for {
			select {
			case fn := <-d.ch:
				fn()
			case <-d.done:
				return
			}
		}
	}()
	return d
}

func (d *SerialDispatcher) Dispatch(fn func()) {
	finished := make(chan struct{})
	select {
	case d.ch <- func() { defer close(finished); fn() }:
		<-finished
	case <-d.done:
		fn()
	}
}

// Close stops the dispatch goroutine. Later callbacks run inline.
func (d *SerialDispatcher) Close() { d.once.Do(func() { close(d.done) }) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordStageTime(string, time.Duration) {}
func (nopMetrics) RecordCacheLookup(string, bool)        {}
func (nopMetrics) RecordBytes(int64)                     {}
func (nopMetrics) RecordError(string, string)            {}

type noopMemoryCache struct{}

func (noopMemoryCache) Get(string) (*MemoryCacheEntry, bool) { return nil, false }
func (noopMemoryCache) Put(string, *MemoryCacheEntry) ([]string, bool) {
	return nil, false
}
func (noopMemoryCache) Remove(string) *MemoryCacheEntry { return nil }
func (noopMemoryCache) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}
func (noopMemoryCache) Size() int64    { return 0 }
func (noopMemoryCache) MaxSize() int64 { return 0 }
func (noopMemoryCache) Trim(int64)     {}
func (noopMemoryCache) Clear()         {}

type noopBitmapPool struct{}

func (noopBitmapPool) Get(int, int, PixelConfig) (*Bitmap, bool) { return nil, false }
func (noopBitmapPool) GetOrCreate(w, h int, c PixelConfig, _ bool) *Bitmap {
	return NewBitmap(w, h, c)
}
func (noopBitmapPool) Free(*Bitmap, bool) bool { return false }
func (noopBitmapPool) SetInBitmap(*DecodeOptions, Size, string, bool) bool {
	return false
}
func (noopBitmapPool) SetInBitmapForRegion(*DecodeOptions, Size, string, Size, bool) bool {
	return false
}
func (noopBitmapPool) Size() int64    { return 0 }
func (noopBitmapPool) MaxSize() int64 { return 0 }
func (noopBitmapPool) Clear()         {}

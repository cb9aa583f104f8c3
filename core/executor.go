package core

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// Execute runs req to completion on the calling goroutine and returns its
// result. The global options are merged under the request's own options.
//
// Listeners and the target observe OnStart and then exactly one of OnSuccess,
// OnError or OnCancel. When the result carries a memory-cached bitmap it stays
// pinned until ImageResult.Release is called.
func (l *Loader) Execute(ctx context.Context, req *ImageRequest) *ImageResult {
	req = req.Merged(l.components.GlobalOptions)
	rc := newRequestContext(newRequestID(), req)
	rc.onState = l.notifyState

	rc.SetState(StateStarted)
	l.dispatch(func() {
		if t := req.Target(); t != nil {
			t.OnStart(req.PlaceholderImage())
		}
		for _, li := range l.listenersOf(req) {
			li.OnStart(req)
		}
	})

	var data *ImageData
	err := l.Stage(ctx, "request", rc, func(ctx context.Context) error {
		var rerr error
		data, rerr = l.executeChain(ctx, rc)
		return rerr
	})

	switch {
	case ctx.Err() != nil || apperrors.IsCanceled(err):
		if data != nil && data.CountBitmap != nil {
			data.CountBitmap.SetPending(false)
		} else if data != nil && data.Bitmap != nil {
			l.BitmapPool().Free(data.Bitmap, req.DisallowReuseBitmap())
		}
		return l.finishCanceled(rc)
	case err != nil:
		return l.finishError(rc, err)
	}
	return l.finishSuccess(rc, data)
}

func (l *Loader) executeChain(ctx context.Context, rc *RequestContext) (*ImageData, error) {
	req := rc.Request()
	if strings.TrimSpace(req.URI()) == "" {
		return nil, apperrors.New(apperrors.CategoryInput, "execute", apperrors.ErrBlankURI)
	}

	resolver := req.SizeResolver()
	if resolver == nil {
		resolver = DisplaySizeResolver{Display: l.DisplaySize()}
	}
	size, err := resolver.Size(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInput, "execute.size", err)
	}
	rc.resizeSize = size
	rc.cacheKey = buildCacheKey(req, size, l.registry.DecodeInterceptors(), l.registry.RequestInterceptors())

	data, err := l.runRequestChain(ctx, rc)
	if err != nil {
		return nil, err
	}
	if data == nil || data.Bitmap == nil {
		return nil, apperrors.New(apperrors.CategoryPipeline, "execute", fmt.Errorf("%w: no bitmap produced", apperrors.ErrInvalidImage))
	}
	return data, nil
}

func (l *Loader) finishSuccess(rc *RequestContext, data *ImageData) *ImageResult {
	req := rc.Request()
	result := &ImageResult{
		Request:         req,
		Bitmap:          data.Bitmap,
		CountBitmap:     data.CountBitmap,
		ImageInfo:       data.ImageInfo,
		DataFrom:        data.DataFrom,
		TransformedList: data.TransformedList,
		Extras:          data.Extras,
	}
	target := req.Target()
	keepPinned := true
	if dc, ok := target.(DisplayCounter); ok && !dc.SupportsDisplayCount() {
		keepPinned = false
	}
	if result.CountBitmap != nil {
		result.CountBitmap.SetDisplayed(true)
		result.CountBitmap.SetPending(false)
	}

	rc.SetState(StateSuccess)
	atomic.AddInt64(&l.successCount, 1)
	l.dispatch(func() {
		if target != nil {
			fromMemory := result.DataFrom == DataFromMemoryCache
			var tr Transition
			if f := req.Transition(); f != nil {
				tr = f.Create(target, result, fromMemory)
			}
			if tr != nil {
				tr.Transition()
			} else {
				target.OnSuccess(result.Image())
			}
		}
		for _, li := range l.listenersOf(req) {
			li.OnSuccess(req, result)
		}
	})
	if !keepPinned {
		result.Release()
	}
	l.logger.Debug("request.success",
		"id", rc.ID(),
		"uri", req.URI(),
		"from", result.DataFrom.String(),
		"bitmap", result.Bitmap.String(),
	)
	return result
}

func (l *Loader) finishError(rc *RequestContext, err error) *ImageResult {
	req := rc.Request()
	result := &ImageResult{Request: req, Err: err, ErrorImage: req.ErrorImage(err)}
	rc.SetState(StateError)
	atomic.AddInt64(&l.errorCount, 1)
	l.dispatch(func() {
		if t := req.Target(); t != nil {
			t.OnError(result.ErrorImage)
		}
		for _, li := range l.listenersOf(req) {
			li.OnError(req, result)
		}
	})
	l.logger.Error("request.error", "id", rc.ID(), "uri", req.URI(), "error", err.Error())
	return result
}

func (l *Loader) finishCanceled(rc *RequestContext) *ImageResult {
	req := rc.Request()
	rc.SetState(StateCanceled)
	atomic.AddInt64(&l.cancelCount, 1)
	l.dispatch(func() {
		for _, li := range l.listenersOf(req) {
			li.OnCancel(req)
		}
	})
	l.logger.Debug("request.canceled", "id", rc.ID(), "uri", req.URI())
	return &ImageResult{Request: req, Canceled: true}
}

func (l *Loader) listenersOf(req *ImageRequest) []Listener {
	if len(l.listeners) == 0 {
		return req.Listeners()
	}
	return append(append([]Listener(nil), req.Listeners()...), l.listeners...)
}

func (l *Loader) dispatch(fn func()) { l.components.Dispatcher.Dispatch(fn) }

func (l *Loader) notifyState(rc *RequestContext, from, to State) {
	for _, h := range l.stateHooks {
		h.OnStateChange(rc, from, to)
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

// Job is one enqueued request. It implements Disposable.
type Job struct {
	ctx      context.Context
	cancel   context.CancelFunc
	request  *ImageRequest
	done     chan struct{}
	result   atomic.Pointer[ImageResult]
	onDone   func(*Job, *ImageResult)
	disposed atomic.Bool
}

// Enqueue submits req to the worker pool. The returned Disposable cancels the
// request when disposed. ErrWorkerPoolFull is returned, without any callback
// being invoked, when the queue is full.
func (l *Loader) Enqueue(ctx context.Context, req *ImageRequest) (Disposable, error) {
	return l.enqueue(ctx, req, nil)
}

func (l *Loader) enqueue(ctx context.Context, req *ImageRequest, onDone func(*Job, *ImageResult)) (*Job, error) {
	l.submitMu.Lock()
	defer l.submitMu.Unlock()
	if l.stopped.Load() {
		return nil, apperrors.New(apperrors.CategoryPipeline, "enqueue", apperrors.ErrLoaderStopped)
	}
	jctx, cancel := context.WithCancel(ctx)
	job := &Job{ctx: jctx, cancel: cancel, request: req, done: make(chan struct{}), onDone: onDone}
	select {
	case l.jobQueue <- job:
		return job, nil
	default:
		cancel()
		return nil, apperrors.New(apperrors.CategoryPipeline, "enqueue", apperrors.ErrWorkerPoolFull)
	}
}

func (l *Loader) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.shutdown:
			return
		case job := <-l.jobQueue:
			l.runJob(job)
		}
	}
}

func (l *Loader) runJob(job *Job) {
	defer job.cancel()
	result := l.Execute(job.ctx, job.request)
	job.result.Store(result)
	if job.onDone != nil {
		job.onDone(job, result)
	}
	close(job.done)
}

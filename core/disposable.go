package core

import (
	"context"
	"sync"
)

// Disposable is a handle on an enqueued request.
type Disposable interface {
	// Dispose cancels the request. It is idempotent.
	Dispose()
	IsDisposed() bool
	// Done is closed once the request reached a terminal state.
	Done() <-chan struct{}
	// Wait blocks until the request finished or ctx ends.
	Wait(ctx context.Context) (*ImageResult, error)
}

func (j *Job) Dispose() {
	j.disposed.Store(true)
	j.cancel()
}

func (j *Job) IsDisposed() bool { return j.disposed.Load() }

func (j *Job) Done() <-chan struct{} { return j.done }

func (j *Job) Wait(ctx context.Context) (*ImageResult, error) {
	select {
	case <-j.done:
		return j.result.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Request returns the enqueued request.
func (j *Job) Request() *ImageRequest { return j.request }

// ── Request manager ───────────────────────────────────────────────────────────

// RequestManager owns the request of one display surface. A new request
// replaces the previous one, and the displayed bitmap of the previous result
// is released. Binding to a lifecycle context disposes the request when that
// context ends.
type RequestManager struct {
	mu         sync.Mutex
	loader     *Loader
	lifecycle  context.Context
	stopBind   func() bool
	current    *Job
	lastReq    *ImageRequest
	lastResult *ImageResult
	disposed   bool
}

// NewRequestManager returns a manager whose requests run on l.
func NewRequestManager(l *Loader) *RequestManager {
	return &RequestManager{loader: l, lifecycle: context.Background()}
}

// Bind ties the manager to ctx: when ctx ends, the current request is
// disposed and its displayed bitmap released.
func (m *RequestManager) Bind(ctx context.Context) {
	m.mu.Lock()
	if m.stopBind != nil {
		m.stopBind()
	}
	m.lifecycle = ctx
	m.disposed = false
	m.stopBind = context.AfterFunc(ctx, m.Dispose)
	m.mu.Unlock()
}

// Enqueue disposes the current request and submits req in its place.
func (m *RequestManager) Enqueue(req *ImageRequest) (Disposable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked()
	m.lastReq = req
	m.disposed = false
	job, err := m.loader.enqueue(m.lifecycle, req, m.onDone)
	if err != nil {
		return nil, err
	}
	m.current = job
	return job, nil
}

// Restart re-issues the last request. It returns nil when there is none.
func (m *RequestManager) Restart() (Disposable, error) {
	m.mu.Lock()
	req := m.lastReq
	m.mu.Unlock()
	if req == nil {
		return nil, nil
	}
	return m.Enqueue(req)
}

// Dispose cancels the current request and releases the displayed bitmap.
func (m *RequestManager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaceLocked()
	m.disposed = true
}

// IsDisposed reports whether Dispose ran after the last Enqueue.
func (m *RequestManager) IsDisposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}

// Current returns the in-flight or last finished request handle.
func (m *RequestManager) Current() Disposable {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current
}

func (m *RequestManager) replaceLocked() {
	if m.current != nil {
		m.current.Dispose()
		m.current = nil
	}
	if m.lastResult != nil {
		m.lastResult.Release()
		m.lastResult = nil
	}
}

func (m *RequestManager) onDone(job *Job, result *ImageResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == job && !m.disposed {
		m.lastResult = result
		return
	}
	result.Release()
}

package hooks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs around each loader stage and every state transition.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStage(ctx context.Context, stage string, rc *core.RequestContext) context.Context {
	h.logger.Debug("loader.stage.start", append([]interface{}{"stage", stage}, requestFields(rc)...)...)
	return ctx
}

func (h *LoggingHook) AfterStage(_ context.Context, stage string, rc *core.RequestContext, d time.Duration, err error) {
	fields := append([]interface{}{"stage", stage, "duration_ms", d.Milliseconds()}, requestFields(rc)...)
	switch {
	case err == nil:
		h.logger.Debug("loader.stage.done", fields...)
	case apperrors.IsCanceled(err):
		h.logger.Debug("loader.stage.canceled", fields...)
	default:
		h.logger.Error("loader.stage.error", append(fields, "category", categoryOf(err), "error", err.Error())...)
	}
}

func (h *LoggingHook) OnStateChange(rc *core.RequestContext, from, to core.State) {
	h.logger.Debug("loader.state", append([]interface{}{"from", from.String(), "to", to.String()}, requestFields(rc)...)...)
}

func requestFields(rc *core.RequestContext) []interface{} {
	if rc == nil {
		return nil
	}
	return []interface{}{"request_id", rc.ID(), "uri", rc.Request().URI()}
}

// categoryOf names the error class used for metric labels and tags.
func categoryOf(err error) string {
	if apperrors.IsCanceled(err) {
		return "canceled"
	}
	var pe *apperrors.ProcessingError
	if errors.As(err, &pe) {
		return string(pe.Category)
	}
	return "unknown"
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stageDurationsMs map[string]int64 // cumulative ms per stage
	stageCalls       map[string]int64 // call count per stage
	stageErrors      map[string]int64
	errorCategories  map[string]int64
	cacheHits        map[string]int64
	cacheMisses      map[string]int64

	totalBytes int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[string]int64),
		stageCalls:       make(map[string]int64),
		stageErrors:      make(map[string]int64),
		errorCategories:  make(map[string]int64),
		cacheHits:        make(map[string]int64),
		cacheMisses:      make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordStageTime(stage string, d time.Duration) {
	m.mu.Lock()
	m.stageDurationsMs[stage] += d.Milliseconds()
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordCacheLookup(cache string, hit bool) {
	m.mu.Lock()
	if hit {
		m.cacheHits[cache]++
	} else {
		m.cacheMisses[cache]++
	}
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordBytes(bytes int64) {
	atomic.AddInt64(&m.totalBytes, bytes)
}

func (m *InMemoryMetrics) RecordError(stage string, category string) {
	m.mu.Lock()
	m.stageErrors[stage]++
	m.errorCategories[category]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MetricsSnapshot{
		StageDurationsMs: copyCounts(m.stageDurationsMs),
		StageCalls:       copyCounts(m.stageCalls),
		StageErrors:      copyCounts(m.stageErrors),
		ErrorCategories:  copyCounts(m.errorCategories),
		CacheHits:        copyCounts(m.cacheHits),
		CacheMisses:      copyCounts(m.cacheMisses),
		TotalBytes:       atomic.LoadInt64(&m.totalBytes),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StageDurationsMs map[string]int64
	StageCalls       map[string]int64
	StageErrors      map[string]int64
	ErrorCategories  map[string]int64
	CacheHits        map[string]int64
	CacheMisses      map[string]int64
	TotalBytes       int64
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds stage timings and failures into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStage(ctx context.Context, _ string, _ *core.RequestContext) context.Context {
	return ctx
}

func (h *MetricsHook) AfterStage(_ context.Context, stage string, _ *core.RequestContext, d time.Duration, err error) {
	h.collector.RecordStageTime(stage, d)
	if err != nil {
		h.collector.RecordError(stage, categoryOf(err))
	}
}

var (
	_ core.Hook             = (*LoggingHook)(nil)
	_ core.StateHook        = (*LoggingHook)(nil)
	_ core.Hook             = (*MetricsHook)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)

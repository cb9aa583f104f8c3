package hooks

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/image-loader/core"
)

// ── Prometheus collector ──────────────────────────────────────────────────────

// PrometheusCollector exports loader metrics to a Prometheus registry.
type PrometheusCollector struct {
	stageDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	bytes         prometheus.Counter
	errors        *prometheus.CounterVec
}

// NewPrometheusCollector registers the loader metrics under namespace with
// reg. A nil reg uses prometheus.DefaultRegisterer. Collectors that are
// already registered are reused.
func NewPrometheusCollector(namespace string, reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &PrometheusCollector{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of loader stages.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_bytes_total",
			Help:      "Bytes read from fetchers.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed stages by stage and error category.",
		}, []string{"stage", "category"}),
	}

	var err error
	if c.stageDuration, err = register(reg, c.stageDuration); err != nil {
		return nil, err
	}
	if c.cacheLookups, err = register(reg, c.cacheLookups); err != nil {
		return nil, err
	}
	if c.bytes, err = register(reg, c.bytes); err != nil {
		return nil, err
	}
	if c.errors, err = register(reg, c.errors); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (c *PrometheusCollector) RecordStageTime(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (c *PrometheusCollector) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (c *PrometheusCollector) RecordBytes(bytes int64) {
	if bytes > 0 {
		c.bytes.Add(float64(bytes))
	}
}

func (c *PrometheusCollector) RecordError(stage string, category string) {
	c.errors.WithLabelValues(stage, category).Inc()
}

var _ core.MetricsCollector = (*PrometheusCollector)(nil)

package hooks

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewPrometheusCollector("imageloader", reg)
	require.NoError(t, err)

	c.RecordCacheLookup("memory", true)
	c.RecordCacheLookup("memory", false)
	c.RecordCacheLookup("result", false)
	c.RecordBytes(512)
	c.RecordBytes(-1)
	c.RecordError("fetch", "fetch")
	c.RecordStageTime("decode", 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("memory", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("result", "miss")))
	assert.Equal(t, 512.0, testutil.ToFloat64(c.bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.errors.WithLabelValues("fetch", "fetch")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "imageloader_stage_duration_seconds")
}

func TestPrometheusCollector_ReusesRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPrometheusCollector("imageloader", reg)
	require.NoError(t, err)
	second, err := NewPrometheusCollector("imageloader", reg)
	require.NoError(t, err)

	second.RecordBytes(10)
	assert.Equal(t, 10.0, testutil.ToFloat64(first.bytes))
}

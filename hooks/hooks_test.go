package hooks_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	"github.com/Skryldev/image-loader/hooks"
	"github.com/Skryldev/image-loader/pipeline"
	"github.com/Skryldev/image-loader/pool"
)

func pngURI(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func newLoader() *core.Loader {
	reg := pipeline.Defaults(core.NewRegistryBuilder()).
		AddFetcher(&fetcher.Data{}).
		AddDecoder(decoder.Std{}).
		Build()
	return core.New(config.Default(), reg, core.Components{BitmapPool: pool.New(0, nil)})
}

func request(uri string) *core.ImageRequest {
	return core.NewRequest(uri).Resize(8, 8).Build()
}

type entry struct {
	level, msg string
	fields     []interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recordingLogger) add(level, msg string, f []interface{}) {
	r.mu.Lock()
	r.entries = append(r.entries, entry{level, msg, f})
	r.mu.Unlock()
}

func (r *recordingLogger) Debug(msg string, f ...interface{}) { r.add("debug", msg, f) }
func (r *recordingLogger) Info(msg string, f ...interface{})  { r.add("info", msg, f) }
func (r *recordingLogger) Warn(msg string, f ...interface{})  { r.add("warn", msg, f) }
func (r *recordingLogger) Error(msg string, f ...interface{}) { r.add("error", msg, f) }

func (r *recordingLogger) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.msg
	}
	return out
}

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := logrus.New()
	lg.SetOutput(&buf)
	lg.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	hooks.NewLogrusLogger(lg).With("component", "test").Info("loader.ready", "workers", 4, "dangling")
	out := buf.String()
	assert.Contains(t, out, "msg=loader.ready")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "workers=4")
	assert.Contains(t, out, "!BADKEY=dangling")

	buf.Reset()
	hooks.NewLogrusLogger(lg).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestLoggingHook(t *testing.T) {
	rl := &recordingLogger{}
	l := newLoader()
	l.AddHook(hooks.NewLoggingHook(rl))

	res := l.Execute(context.Background(), request(pngURI(t)))
	require.NoError(t, res.Err)
	msgs := rl.messages()
	assert.Contains(t, msgs, "loader.stage.start")
	assert.Contains(t, msgs, "loader.stage.done")
	assert.Contains(t, msgs, "loader.state")
	assert.NotContains(t, msgs, "loader.stage.error")

	rl.entries = nil
	res = l.Execute(context.Background(), request("data:image/png;base64,!!!"))
	require.Error(t, res.Err)
	assert.Contains(t, rl.messages(), "loader.stage.error")
}

func TestMetricsHook_InMemory(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	l := newLoader()
	l.SetMetrics(m)
	l.AddHook(hooks.NewMetricsHook(m))

	require.NoError(t, l.Execute(context.Background(), request(pngURI(t))).Err)
	require.Error(t, l.Execute(context.Background(), request(" ")).Err)

	snap := m.Snapshot()
	assert.EqualValues(t, 2, snap.StageCalls["request"])
	assert.EqualValues(t, 1, snap.StageCalls["fetch"])
	assert.EqualValues(t, 1, snap.StageCalls["decode"])
	assert.EqualValues(t, 1, snap.StageErrors["request"])
	assert.EqualValues(t, 1, snap.ErrorCategories["input"])
	assert.Positive(t, snap.TotalBytes)

	// Snapshot maps are copies.
	snap.StageCalls["request"] = 100
	assert.EqualValues(t, 2, m.Snapshot().StageCalls["request"])
}

func TestInMemoryMetrics_CacheLookups(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	m.RecordCacheLookup("memory", true)
	m.RecordCacheLookup("memory", false)
	m.RecordCacheLookup("memory", false)
	m.RecordStageTime("decode", 1500*time.Microsecond)

	snap := m.Snapshot()
	assert.EqualValues(t, 1, snap.CacheHits["memory"])
	assert.EqualValues(t, 2, snap.CacheMisses["memory"])
	assert.EqualValues(t, 1, snap.StageDurationsMs["decode"])
}

// ── Tracing ───────────────────────────────────────────────────────────────────

type recordingSpan struct {
	noop.Span
	name   string
	attrs  []attribute.KeyValue
	err    error
	status codes.Code
	ended  bool
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.err = err }
func (s *recordingSpan) SetStatus(c codes.Code, _ string)              { s.status = c }
func (s *recordingSpan) End(...trace.SpanEndOption)                    { s.ended = true }

type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	spans []*recordingSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, attrs: cfg.Attributes()}
	r.mu.Lock()
	r.spans = append(r.spans, s)
	r.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

func (r *recordingTracer) byName(name string) *recordingSpan {
	for _, s := range r.spans {
		if s.name == name {
			return s
		}
	}
	return nil
}

func TestTracingHook(t *testing.T) {
	tr := &recordingTracer{}
	l := newLoader()
	l.AddHook(hooks.NewTracingHook(tr))

	uri := pngURI(t)
	require.NoError(t, l.Execute(context.Background(), request(uri)).Err)
	req := tr.byName("imageloader.request")
	require.NotNil(t, req)
	require.NotNil(t, tr.byName("imageloader.fetch"))
	require.NotNil(t, tr.byName("imageloader.decode"))
	assert.Contains(t, req.attrs, attribute.String("request.uri", uri))
	for _, s := range tr.spans {
		assert.True(t, s.ended, s.name)
		assert.NoError(t, s.err, s.name)
	}

	tr.spans = nil
	require.Error(t, l.Execute(context.Background(), request("")).Err)
	req = tr.byName("imageloader.request")
	require.NotNil(t, req)
	assert.Error(t, req.err)
	assert.Equal(t, codes.Error, req.status)
}

// ── Sentry ────────────────────────────────────────────────────────────────────

type fakeTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (f *fakeTransport) Flush(time.Duration) bool       { return true }
func (f *fakeTransport) Configure(sentry.ClientOptions) {}
func (f *fakeTransport) SendEvent(e *sentry.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func TestSentryListener(t *testing.T) {
	transport := &fakeTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:        "https://public@sentry.example.com/1",
		Transport:  transport,
		SampleRate: 1.0,
	})
	require.NoError(t, err)
	l := newLoader()
	l.AddListener(hooks.NewSentryListener(sentry.NewHub(client, sentry.NewScope())))

	require.NoError(t, l.Execute(context.Background(), request(pngURI(t))).Err)
	assert.Empty(t, transport.events)

	require.Error(t, l.Execute(context.Background(), request("data:image/png;base64,!!!")).Err)
	require.Len(t, transport.events, 1)
	assert.Equal(t, "input", transport.events[0].Tags["category"])
	assert.Equal(t, "NETWORK", transport.events[0].Tags["depth"])

	memoryOnly := core.NewRequest(pngURI(t)).Depth(core.DepthMemory).Build()
	require.Error(t, l.Execute(context.Background(), memoryOnly).Err)
	assert.Len(t, transport.events, 1)
}

package hooks

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

const tracerName = "github.com/Skryldev/image-loader"

// ── Tracing hook ──────────────────────────────────────────────────────────────

// TracingHook opens one span per loader stage. Nested stages become child
// spans because BeforeStage returns the span's context.
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook creates a TracingHook. A nil tracer uses the global provider.
func NewTracingHook(t trace.Tracer) *TracingHook {
	if t == nil {
		t = otel.Tracer(tracerName)
	}
	return &TracingHook{tracer: t}
}

func (h *TracingHook) BeforeStage(ctx context.Context, stage string, rc *core.RequestContext) context.Context {
	var attrs []attribute.KeyValue
	if rc != nil {
		attrs = append(attrs,
			attribute.String("request.id", rc.ID()),
			attribute.String("request.uri", rc.Request().URI()),
		)
	}
	ctx, _ = h.tracer.Start(ctx, "imageloader."+stage, trace.WithAttributes(attrs...))
	return ctx
}

func (h *TracingHook) AfterStage(ctx context.Context, _ string, _ *core.RequestContext, d time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("stage.duration_ms", d.Milliseconds()))
	switch {
	case err == nil:
	case apperrors.IsCanceled(err):
		span.AddEvent("canceled")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, categoryOf(err))
	}
	span.End()
}

var _ core.Hook = (*TracingHook)(nil)

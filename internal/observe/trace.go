package observe

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/myra"

// Span names used by the listen loop.
const (
	SpanWake    = "myra.wake"
	SpanCommand = "myra.command"
)

// Tracer returns the Myra tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span named name. The caller must End it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartWake starts the span covering one wake-up: from the detection to the
// end of the first command phase.
func StartWake(ctx context.Context, matchType string, score float64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanWake, trace.WithAttributes(
		attribute.String("myra.match_type", matchType),
		attribute.Float64("myra.score", score),
	))
}

// StartCommand starts the span covering one command, from recognition to
// the end of the spoken reply. Only the word count is recorded, not the text.
func StartCommand(ctx context.Context, command string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanCommand, trace.WithAttributes(
		attribute.Int("myra.command.words", len(strings.Fields(command))),
	))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "".
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns base with trace_id and span_id attached when ctx carries a
// span. A nil base uses slog.Default().
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return base
	}
	return base.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

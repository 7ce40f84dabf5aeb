// Package observe provides application-wide observability primitives for
// Myra: OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Myra metrics.
const meterName = "github.com/MrWong99/myra"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ListenDuration tracks how long a wake or command listen phase ran. Use
	// with attributes:
	//   attribute.String("phase", ...), attribute.String("status", ...)
	ListenDuration metric.Float64Histogram

	// DispatchDuration tracks command dispatch latency (LLM round trip).
	DispatchDuration metric.Float64Histogram

	// SpeechDuration tracks synchronous speech output (synthesis + playback).
	SpeechDuration metric.Float64Histogram

	// --- Capture counters ---

	// Frames counts captured frames by gate decision. Use with attribute:
	//   attribute.String("decision", "forwarded"|"gated")
	Frames metric.Int64Counter

	// FrameOverflows counts frames discarded by the drop-oldest channel policy.
	FrameOverflows metric.Int64Counter

	// EnhancementFailures counts frames passed through unenhanced.
	EnhancementFailures metric.Int64Counter

	// --- Recognition counters ---

	// WakeDetections counts wake detections. Use with attributes:
	//   attribute.String("match_type", ...), attribute.Bool("partial", ...)
	WakeDetections metric.Int64Counter

	// Commands counts completed commands. Use with attributes:
	//   attribute.String("handler", ...), attribute.String("status", ...)
	Commands metric.Int64Counter

	// SessionTransitions counts state machine transitions. Use with attributes:
	//   attribute.String("to", ...), attribute.String("reason", ...)
	SessionTransitions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while the assistant is awake and 0 otherwise.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// provider round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// listenBuckets covers listen phases, which run up to their wall-clock timeout.
var listenBuckets = []float64{
	0.5, 1, 2, 5, 10, 15, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ListenDuration, err = m.Float64Histogram("myra.listen.duration",
		metric.WithDescription("Duration of wake and command listen phases."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(listenBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("myra.dispatch.duration",
		metric.WithDescription("Latency of command dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("myra.speech.duration",
		metric.WithDescription("Latency of synchronous speech output."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Capture counters.
	if met.Frames, err = m.Int64Counter("myra.pipeline.frames",
		metric.WithDescription("Captured frames by voice-activity gate decision."),
	); err != nil {
		return nil, err
	}
	if met.FrameOverflows, err = m.Int64Counter("myra.pipeline.overflows",
		metric.WithDescription("Frames discarded because the frame channel was full."),
	); err != nil {
		return nil, err
	}
	if met.EnhancementFailures, err = m.Int64Counter("myra.enhance.failures",
		metric.WithDescription("Frames passed through unenhanced after a non-finite result."),
	); err != nil {
		return nil, err
	}

	// Recognition counters.
	if met.WakeDetections, err = m.Int64Counter("myra.wake.detections",
		metric.WithDescription("Wake detections by match type."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("myra.commands",
		metric.WithDescription("Completed commands by handler and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionTransitions, err = m.Int64Counter("myra.session.transitions",
		metric.WithDescription("Session state transitions by target state and reason."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("myra.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("myra.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("myra.active_sessions",
		metric.WithDescription("1 while the assistant is awake."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("myra.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame counts one captured frame. It is called from the real-time
// capture callback; OTel counters do not block.
func (m *Metrics) RecordFrame(ctx context.Context, forwarded bool) {
	decision := "gated"
	if forwarded {
		decision = "forwarded"
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

// RecordOverflow counts one frame dropped by the frame channel.
func (m *Metrics) RecordOverflow(ctx context.Context) {
	m.FrameOverflows.Add(ctx, 1)
}

// RecordEnhancementFailure counts one frame passed through unenhanced.
func (m *Metrics) RecordEnhancementFailure(ctx context.Context) {
	m.EnhancementFailures.Add(ctx, 1)
}

// RecordWake counts one wake detection.
func (m *Metrics) RecordWake(ctx context.Context, matchType string, partial bool) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("match_type", matchType),
			attribute.Bool("partial", partial),
		),
	)
}

// RecordCommand counts one completed command.
func (m *Metrics) RecordCommand(ctx context.Context, handler, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("handler", handler),
			attribute.String("status", status),
		),
	)
}

// RecordDispatch records the latency of one command dispatch.
func (m *Metrics) RecordDispatch(ctx context.Context, handler string, d time.Duration) {
	m.DispatchDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("handler", handler)),
	)
}

// RecordSpeech records how long one synchronous utterance took, synthesis
// and playback included.
func (m *Metrics) RecordSpeech(ctx context.Context, d time.Duration) {
	m.SpeechDuration.Record(ctx, d.Seconds())
}

// RecordSessionTransition counts a state change and keeps the ActiveSessions
// gauge in sync.
func (m *Metrics) RecordSessionTransition(ctx context.Context, to, reason string) {
	m.SessionTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("to", to),
			attribute.String("reason", reason),
		),
	)
	switch to {
	case "awake":
		m.ActiveSessions.Add(ctx, 1)
	case "sleeping":
		m.ActiveSessions.Add(ctx, -1)
	}
}

// RecordListen records the duration and outcome of a listen phase.
func (m *Metrics) RecordListen(ctx context.Context, phase, status string, d time.Duration) {
	m.ListenDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("phase", phase),
			attribute.String("status", status),
		),
	)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

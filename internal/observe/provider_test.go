package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitProvider(t *testing.T) {
	origTP, origMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})

	shutdown, err := InitProvider(context.Background(), ProviderConfig{ServiceVersion: "test", Profile: "long-distance"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("global tracer provider = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}
	if _, ok := otel.GetMeterProvider().(*sdkmetric.MeterProvider); !ok {
		t.Errorf("global meter provider = %T, want *sdkmetric.MeterProvider", otel.GetMeterProvider())
	}

	ctx, span := StartWake(context.Background(), "exact", 1)
	if CorrelationID(ctx) == "" {
		t.Error("wake span has no trace ID")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewResource(t *testing.T) {
	t.Parallel()
	res, err := newResource(context.Background(), ProviderConfig{Profile: "fast"})
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.Emit()
	}
	if got["service.name"] != "myra" {
		t.Errorf("service.name = %q, want myra", got["service.name"])
	}
	if got["myra.profile"] != "fast" {
		t.Errorf("myra.profile = %q, want fast", got["myra.profile"])
	}
}

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry keeps ended spans and collected metrics in memory. It does
// not touch the global providers.
type TestTelemetry struct {
	*Telemetry
	Recorder *tracetest.SpanRecorder
	Reader   *sdkmetric.ManualReader
}

func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	rec := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg:    cfg,
			tracer: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
			meter:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
			health: HealthStatus{Healthy: true},
		},
		Recorder: rec,
		Reader:   reader,
	}
}

// SpanNames lists ended spans in the order they ended.
func (t *TestTelemetry) SpanNames() []string {
	var names []string
	for _, s := range t.Recorder.Ended() {
		names = append(names, s.Name())
	}
	return names
}

// SpanByName returns the first ended span called name.
func (t *TestTelemetry) SpanByName(name string) sdktrace.ReadOnlySpan {
	for _, s := range t.Recorder.Ended() {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (t *TestTelemetry) AssertSpanExists(tb testing.TB, name string) bool {
	tb.Helper()
	return assert.Contains(tb, t.SpanNames(), name)
}

// AssertSpanAttribute compares against the attribute's native Go value:
// string, int64, float64 or bool.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, span, key string, want any) bool {
	tb.Helper()
	s := t.SpanByName(span)
	require.NotNil(tb, s, "span %q not ended, have %v", span, t.SpanNames())
	for _, kv := range s.Attributes() {
		if kv.Key == attribute.Key(key) {
			return assert.Equal(tb, want, kv.Value.AsInterface(), "span %q attribute %q", span, key)
		}
	}
	return assert.Fail(tb, "attribute missing", "span %q has no attribute %q", span, key)
}

func (t *TestTelemetry) CollectMetrics(ctx context.Context) (metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	err := t.Reader.Collect(ctx, &rm)
	return rm, err
}

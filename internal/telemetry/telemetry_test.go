package telemetry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true})
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_ExportsSpansWithRunResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricInterval = 0

	exp := tracetest.NewInMemoryExporter()
	tel, err := New(context.Background(), cfg,
		WithTraceExporter(exp),
		WithResourceAttributes(attribute.String("run.id", "r-1"), attribute.String("env.name", "Pendulum-v1")),
	)
	require.NoError(t, err)
	assert.True(t, tel.IsEnabled())
	assert.NotNil(t, tel.LoggerProvider())

	_, span := tel.Tracer("test").Start(context.Background(), "orchestrator.prefill")
	span.End()
	require.NoError(t, tel.ForceFlush(context.Background()))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "orchestrator.prefill", spans[0].Name)
	res := map[attribute.Key]string{}
	for _, kv := range spans[0].Resource.Attributes() {
		res[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "r-1", res["run.id"])
	assert.Equal(t, "Pendulum-v1", res["env.name"])
	assert.Equal(t, "worldmodel", res["service.name"])

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Health().Healthy)
	assert.False(t, tel.IsEnabled())
}

func TestNew_MetricExporterOverride(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	exp := &captureExporter{}
	tel, err := New(context.Background(), cfg,
		WithTraceExporter(tracetest.NewNoopExporter()),
		WithMetricExporter(exp),
	)
	require.NoError(t, err)

	c, err := tel.Meter("test").Int64Counter("worldmodel.env.steps")
	require.NoError(t, err)
	c.Add(context.Background(), 4)

	require.NoError(t, tel.ForceFlush(context.Background()))
	assert.Positive(t, exp.exports.Load())
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.True(t, tel.Health().Degraded)
	assert.False(t, tel.Health().Healthy)
}

func TestTelemetry_DegradeKeepsReason(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	tel.degrade("span exporter: %v", "boom")
	h := tel.Health()
	assert.True(t, h.Healthy)
	assert.True(t, h.Degraded)
	assert.Equal(t, "span exporter: boom", h.Reason)
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("test").Start(context.Background(), "orchestrator.online")
	span.SetAttributes(attribute.Int("run.phase.steps", 20), attribute.String("run.phase", "online"))
	span.End()

	tt.AssertSpanExists(t, "orchestrator.online")
	tt.AssertSpanAttribute(t, "orchestrator.online", "run.phase.steps", int64(20))
	tt.AssertSpanAttribute(t, "orchestrator.online", "run.phase", "online")
	assert.Equal(t, []string{"orchestrator.online"}, tt.SpanNames())
	assert.Nil(t, tt.SpanByName("orchestrator.pretrain"))
}

func TestTestTelemetry_CollectsMetrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	h, err := tt.Meter("test").Float64Histogram("worldmodel.phase.duration")
	require.NoError(t, err)
	h.Record(ctx, 1.5)

	rm, err := tt.CollectMetrics(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rm.ScopeMetrics)
	assert.Equal(t, "worldmodel.phase.duration", rm.ScopeMetrics[0].Metrics[0].Name)
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(f func(*Config)) func(*Config) {
		return func(c *Config) {
			c.Enabled = true
			f(c)
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"disabled skips checks", func(c *Config) { c.Endpoint = "" }, ""},
		{"enabled default", enabled(func(*Config) {}), ""},
		{"missing endpoint", enabled(func(c *Config) { c.Endpoint = "" }), "endpoint is required"},
		{"missing service", enabled(func(c *Config) { c.ServiceName = "" }), "service_name"},
		{"bad protocol", enabled(func(c *Config) { c.Protocol = "udp" }), "protocol must be"},
		{"insecure remote", enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), "non-loopback"},
		{"secure remote", enabled(func(c *Config) {
			c.Endpoint = "https://otel.example.com:4318"
			c.Insecure = false
		}), ""},
		{"ipv6 loopback", enabled(func(c *Config) { c.Endpoint = "[::1]:4317" }), ""},
		{"loopback range", enabled(func(c *Config) { c.Endpoint = "127.0.0.2:4317" }), ""},
		{"sample ratio", enabled(func(c *Config) { c.SampleRatio = 1.5 }), "sample_ratio"},
		{"negative interval", enabled(func(c *Config) { c.MetricInterval = -time.Second }), "metric_interval"},
		{"metrics off", enabled(func(c *Config) { c.MetricInterval = 0 }), ""},
		{"shutdown timeout", enabled(func(c *Config) { c.ShutdownTimeout = 0 }), "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := &Config{Enabled: true, Protocol: "udp", SampleRatio: 2}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"endpoint", "protocol", "service_name", "sample_ratio", "shutdown_timeout"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestHostPort(t *testing.T) {
	assert.Equal(t, "collector:4318", hostPort("https://collector:4318"))
	assert.Equal(t, "collector:4318", hostPort("http://collector:4318"))
	assert.Equal(t, "collector:4318", hostPort("collector:4318"))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

type captureExporter struct {
	exports atomic.Int32
}

func (e *captureExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *captureExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *captureExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	e.exports.Add(1)
	return nil
}

func (e *captureExporter) ForceFlush(context.Context) error { return nil }
func (e *captureExporter) Shutdown(context.Context) error   { return nil }

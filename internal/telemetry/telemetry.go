package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the trace and meter providers for one run. When export
// is off or a provider cannot be built, Tracer and Meter fall back to the
// global providers and the run carries on.
type Telemetry struct {
	cfg    *Config
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider

	mu     sync.Mutex
	health HealthStatus
}

// HealthStatus is reported on /healthz.
type HealthStatus struct {
	Healthy  bool
	Degraded bool
	Reason   string `json:",omitempty"`
}

// Option customizes New.
type Option func(*options)

type options struct {
	spans   sdktrace.SpanExporter
	metrics sdkmetric.Exporter
	attrs   []attribute.KeyValue
}

// WithTraceExporter bypasses the OTLP span exporter.
func WithTraceExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spans = exp }
}

// WithMetricExporter bypasses the OTLP metric exporter.
func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(o *options) { o.metrics = exp }
}

// WithResourceAttributes tags everything exported, e.g. with the run id
// and environment name.
func WithResourceAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// New validates cfg and, when enabled, installs the providers globally.
// Exporter failures degrade the instance rather than fail the run.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	t := &Telemetry{cfg: cfg, health: HealthStatus{Healthy: true}}
	if !cfg.Enabled {
		return t, nil
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}, o.attrs...)
	res := resource.NewWithAttributes(semconv.SchemaURL, attrs...)

	spans := o.spans
	if spans == nil {
		exp, err := newSpanExporter(ctx, cfg)
		if err != nil {
			t.degrade("span exporter: %v", err)
		} else {
			spans = exp
		}
	}
	if spans != nil {
		t.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(spans),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.SampleRatio)),
		)
		otel.SetTracerProvider(t.tracer)
	}

	if cfg.MetricInterval > 0 || o.metrics != nil {
		exp := o.metrics
		if exp == nil {
			built, err := newMetricExporter(ctx, cfg)
			if err != nil {
				t.degrade("metric exporter: %v", err)
			} else {
				exp = built
			}
		}
		if exp != nil {
			var readerOpts []sdkmetric.PeriodicReaderOption
			if cfg.MetricInterval > 0 {
				readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
			}
			t.meter = sdkmetric.NewMeterProvider(
				sdkmetric.WithResource(res),
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, readerOpts...)),
			)
			otel.SetMeterProvider(t.meter)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tracer == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracer.Tracer(name, opts...)
}

func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meter == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meter.Meter(name, opts...)
}

// LoggerProvider feeds the otelzap bridge. It is the global log provider
// when export is on and nil otherwise.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if !t.IsEnabled() {
		return nil
	}
	return global.GetLoggerProvider()
}

// Shutdown flushes and stops the providers. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracer != nil {
		if err := t.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.meter != nil {
		if err := t.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}

	t.mu.Lock()
	t.health.Healthy = false
	t.mu.Unlock()
	return errors.Join(errs...)
}

// ForceFlush pushes buffered spans and metrics now.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.tracer != nil {
		errs = append(errs, t.tracer.ForceFlush(ctx))
	}
	if t.meter != nil {
		errs = append(errs, t.meter.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true, Reason: "telemetry not initialized"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health
}

// IsEnabled is true while export is configured and not shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.cfg == nil || !t.cfg.Enabled {
		return false
	}
	return t.Health().Healthy
}

func (t *Telemetry) degrade(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health.Degraded = true
	t.health.Reason = fmt.Sprintf(format, args...)
}

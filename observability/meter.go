package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/portforge/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Get("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// BuildMetrics holds the scheduler's metric instruments. Its Record
// methods are no-ops on a nil receiver.
type BuildMetrics struct {
	dispatched     metric.Int64Counter
	completed      metric.Int64Counter
	duration       metric.Float64Histogram
	inFlight       metric.Int64UpDownCounter
	retries        metric.Int64Counter
	gateRejections metric.Int64Counter
}

// NewBuildMetrics creates metric instruments on the given meter.
func NewBuildMetrics(meter metric.Meter) (*BuildMetrics, error) {
	dispatched, err := meter.Int64Counter("build.dispatched",
		metric.WithDescription("Ports handed to a worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating build.dispatched counter: %w", err)
	}

	completed, err := meter.Int64Counter("build.completed",
		metric.WithDescription("Ports that reached a terminal status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating build.completed counter: %w", err)
	}

	duration, err := meter.Float64Histogram("build.duration",
		metric.WithDescription("Wall time of a port build including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating build.duration histogram: %w", err)
	}

	inFlight, err := meter.Int64UpDownCounter("build.in_flight",
		metric.WithDescription("Workers currently running"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating build.in_flight gauge: %w", err)
	}

	retries, err := meter.Int64Counter("build.retries",
		metric.WithDescription("Build attempts after the first"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating build.retries counter: %w", err)
	}

	gateRejections, err := meter.Int64Counter("gate.rejections",
		metric.WithDescription("Admissions refused by the resource gate"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating gate.rejections counter: %w", err)
	}

	return &BuildMetrics{
		dispatched:     dispatched,
		completed:      completed,
		duration:       duration,
		inFlight:       inFlight,
		retries:        retries,
		gateRejections: gateRejections,
	}, nil
}

// RecordDispatch counts a dispatched port and raises the in-flight gauge.
func (m *BuildMetrics) RecordDispatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatched.Add(ctx, 1)
	m.inFlight.Add(ctx, 1)
}

// RecordCompletion lowers the in-flight gauge and records the outcome.
func (m *BuildMetrics) RecordCompletion(ctx context.Context, status string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrStatus, status))
	m.inFlight.Add(ctx, -1)
	m.completed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordRetry counts a retried attempt.
func (m *BuildMetrics) RecordRetry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1)
}

// RecordGateRejection counts a refused admission with the reason.
func (m *BuildMetrics) RecordGateRejection(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.gateRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

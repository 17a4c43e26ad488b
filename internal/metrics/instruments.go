package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// meterName is the instrumentation scope name used for all Auricle metrics.
const meterName = "github.com/auricle-ai/auricle"

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Instruments holds the OpenTelemetry metric instruments mirroring the
// collector's internal statistics. All fields are safe for concurrent use;
// the underlying OTel types handle their own synchronisation.
type Instruments struct {
	// StageDuration tracks per-stage latency. Attributes: stage, status.
	StageDuration metric.Float64Histogram

	// RequestDuration tracks end-to-end request latency. Attribute: status.
	RequestDuration metric.Float64Histogram

	// StageCalls counts stage executions. Attributes: stage, status.
	StageCalls metric.Int64Counter

	// Requests counts end-to-end requests. Attribute: status.
	Requests metric.Int64Counter
}

// NewInstruments creates the instrument set using the given MeterProvider.
// Pass otel.GetMeterProvider() for the globally registered provider.
func NewInstruments(mp metric.MeterProvider) (*Instruments, error) {
	m := mp.Meter(meterName)
	var err error
	ins := &Instruments{}

	if ins.StageDuration, err = m.Float64Histogram("auricle.stage.duration",
		metric.WithDescription("Latency of one pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if ins.RequestDuration, err = m.Float64Histogram("auricle.request.duration",
		metric.WithDescription("End-to-end voice request latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if ins.StageCalls, err = m.Int64Counter("auricle.stage.calls",
		metric.WithDescription("Total stage executions by stage and status."),
	); err != nil {
		return nil, err
	}
	if ins.Requests, err = m.Int64Counter("auricle.requests",
		metric.WithDescription("Total end-to-end voice requests by status."),
	); err != nil {
		return nil, err
	}
	return ins, nil
}

// RecordStage mirrors one stage sample into the OTel instruments.
func (i *Instruments) RecordStage(ctx context.Context, stage string, d time.Duration, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", statusLabel(success)),
	)
	i.StageDuration.Record(ctx, d.Seconds(), attrs)
	i.StageCalls.Add(ctx, 1, attrs)
}

// RecordRequest mirrors one end-to-end sample into the OTel instruments.
func (i *Instruments) RecordRequest(ctx context.Context, d time.Duration, success bool) {
	attrs := metric.WithAttributes(attribute.String("status", statusLabel(success)))
	i.RequestDuration.Record(ctx, d.Seconds(), attrs)
	i.Requests.Add(ctx, 1, attrs)
}

func statusLabel(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "auricle".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter
}

// InitProvider initialises the OTel SDK: a meter provider with a Prometheus
// exporter bridge (so the instruments above are scrapeable via /metrics) and
// a tracer provider with the configured exporter. Both are registered as the
// global OTel providers.
//
// Returns a shutdown function that flushes and closes exporters. Call it in
// a defer from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "auricle"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdownFuncs []func(context.Context) error

	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if e := fn(ctx); e != nil {
				errs = append(errs, e)
			}
		}
		return errors.Join(errs...)
	}
	return shutdown, nil
}

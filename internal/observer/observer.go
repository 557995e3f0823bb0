// Package observer provides OTEL-based observability for pdf-workbench operations.
//
// Every Service operation is wrapped in a span and recorded in three
// instruments: an operation counter, a failure counter keyed by error code and
// a duration histogram. Export is configured through the standard OTEL_*
// environment variables; without Init the global no-op providers are used.
package observer

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "pdf-workbench/internal/observer"

// Instruments holds the OTEL instruments used around document operations.
// A nil *Instruments is valid and records nothing.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	Operations metric.Int64Counter
	Failures   metric.Int64Counter
	Duration   metric.Float64Histogram
}

// coded is implemented by errors that carry a stable machine-readable code.
type coded interface {
	ErrorCode() string
}

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := New(tp, mp)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
		)
	}
	return inst, shutdown, nil
}

// NewFromGlobal builds instruments on the global providers.
func NewFromGlobal() (*Instruments, error) {
	return New(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// New builds instruments on the given providers.
func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(scopeName)

	operations, err := meter.Int64Counter("pdf.operations",
		metric.WithDescription("Document operations handled"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("pdf.failures",
		metric.WithDescription("Document operations that failed, by error code"),
		metric.WithUnit("{operation}"))
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("pdf.duration",
		metric.WithDescription("Document operation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:     tp.Tracer(scopeName),
		Meter:      meter,
		Operations: operations,
		Failures:   failures,
		Duration:   duration,
	}, nil
}

// Track starts a span for op. The returned finish func ends the span and
// records the outcome; it must be called exactly once.
func (in *Instruments) Track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	if in == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	opAttr := attribute.String("pdf.operation", op)
	ctx, span := in.Tracer.Start(ctx, "pdf."+op, trace.WithAttributes(append(attrs, opAttr)...))

	return ctx, func(err error) {
		defer span.End()

		in.Operations.Add(ctx, 1, metric.WithAttributes(opAttr))
		in.Duration.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(opAttr))

		if err == nil {
			span.SetStatus(codes.Ok, "")
			return
		}

		code := "UNKNOWN"
		var c coded
		if errors.As(err, &c) {
			code = c.ErrorCode()
		}
		codeAttr := attribute.String("pdf.error_code", code)
		in.Failures.Add(ctx, 1, metric.WithAttributes(opAttr, codeAttr))
		span.SetAttributes(codeAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

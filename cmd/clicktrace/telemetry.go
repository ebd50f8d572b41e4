// Self-telemetry for API requests made by the viewer
package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 5 * time.Second

// telemetry holds the providers handed to trace sources and a function
// that flushes them.
type telemetry struct {
	tracerProvider oteltrace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdown       func()
}

// setupTelemetry returns the providers for exporter. "none" returns the
// global providers. OTLP exporters read their endpoint from the standard
// OTEL_EXPORTER_OTLP_* variables.
func setupTelemetry(ctx context.Context, exporter string, w io.Writer) (telemetry, error) {
	spanExp, err := createTraceExporter(ctx, exporter, w)
	if err != nil {
		return telemetry{}, err
	}
	if spanExp == nil {
		return telemetry{
			tracerProvider: otel.GetTracerProvider(),
			meterProvider:  otel.GetMeterProvider(),
			shutdown:       func() {},
		}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", "clicktrace"),
		attribute.String("service.version", version),
	))
	if err != nil {
		return telemetry{}, fmt.Errorf("creating resource: %w", err)
	}

	metricExp, err := createMetricExporter(ctx, exporter, w)
	if err != nil {
		_ = spanExp.Shutdown(ctx)
		return telemetry{}, err
	}

	var sp sdktrace.SpanProcessor
	if exporter == "stdout" {
		sp = sdktrace.NewSimpleSpanProcessor(spanExp)
	} else {
		sp = sdktrace.NewBatchSpanProcessor(spanExp)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(res),
	)
	// The periodic reader also collects once more on shutdown, so short
	// commands still export their measurements.
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			_, _ = fmt.Fprintf(w, "error shutting down tracer provider: %v\n", err)
		}
		if err := mp.Shutdown(shutdownCtx); err != nil {
			_, _ = fmt.Fprintf(w, "error shutting down meter provider: %v\n", err)
		}
	}
	return telemetry{tracerProvider: tp, meterProvider: mp, shutdown: shutdown}, nil
}

func createTraceExporter(ctx context.Context, exporter string, w io.Writer) (sdktrace.SpanExporter, error) {
	switch exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case "otlp-http":
		return otlptracehttp.New(ctx)
	case "otlp-grpc":
		return otlptracegrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported exporter %q, supported: none, stdout, otlp-http, otlp-grpc", exporter)
	}
}

func createMetricExporter(ctx context.Context, exporter string, w io.Writer) (sdkmetric.Exporter, error) {
	switch exporter {
	case "stdout":
		return stdoutmetric.New(stdoutmetric.WithWriter(w))
	case "otlp-http":
		return otlpmetrichttp.New(ctx)
	case "otlp-grpc":
		return otlpmetricgrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported exporter %q for metrics", exporter)
	}
}

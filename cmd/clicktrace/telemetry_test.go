package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupTelemetry_NoneUsesGlobalProviders(t *testing.T) {
	tel, err := setupTelemetry(context.Background(), "none", &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, otel.GetTracerProvider(), tel.tracerProvider)
	assert.Equal(t, otel.GetMeterProvider(), tel.meterProvider)
	tel.shutdown()
}

func TestSetupTelemetry_StdoutExportsBothSignals(t *testing.T) {
	var buf bytes.Buffer
	tel, err := setupTelemetry(context.Background(), "stdout", &buf)
	require.NoError(t, err)

	_, span := tel.tracerProvider.Tracer("test").Start(context.Background(), "test-span")
	span.End()
	counter, err := tel.meterProvider.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	tel.shutdown()
	assert.Contains(t, buf.String(), "test-span")
	assert.Contains(t, buf.String(), "test.counter")
	assert.Contains(t, buf.String(), "clicktrace")
}

func TestCreateMetricExporter_Unsupported(t *testing.T) {
	_, err := createMetricExporter(context.Background(), "carrier-pigeon", &bytes.Buffer{})
	assert.ErrorContains(t, err, "unsupported exporter")
}

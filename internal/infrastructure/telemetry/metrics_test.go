package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/priceimport/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestImportMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := telemetry.NewImportMetrics(provider.Meter(telemetry.MeterName))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordRun(ctx, telemetry.OutcomeSuccess, 2*time.Second)
	m.RecordRun(ctx, telemetry.OutcomeFailure, time.Second)
	m.RecordExtraction(ctx, "browser", errors.New("timeout"))
	m.RecordExtraction(ctx, "static", nil)
	m.RecordStage(ctx, "build", 12, 10*time.Millisecond)
	m.RecordStage(ctx, "dedupe", 9, time.Millisecond)

	metrics := collect(t, reader)

	runs := metrics["priceimport_runs_total"]
	assert.Equal(t, int64(1), sumFor(t, runs, telemetry.MetricAttrOutcome, telemetry.OutcomeSuccess))
	assert.Equal(t, int64(1), sumFor(t, runs, telemetry.MetricAttrOutcome, telemetry.OutcomeFailure))

	attempts := metrics["priceimport_extraction_attempts_total"]
	assert.Equal(t, int64(1), sumFor(t, attempts, telemetry.MetricAttrProvider, "browser"))
	assert.Equal(t, int64(1), sumFor(t, attempts, telemetry.MetricAttrOutcome, telemetry.OutcomeFailure))

	rows := metrics["priceimport_rows_total"]
	assert.Equal(t, int64(12), sumFor(t, rows, telemetry.MetricAttrStage, "build"))
	assert.Equal(t, int64(9), sumFor(t, rows, telemetry.MetricAttrStage, "dedupe"))

	hist, ok := metrics["priceimport_run_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestImportMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.ImportMetrics
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), telemetry.OutcomeDryRun, time.Second)
		m.RecordExtraction(context.Background(), "hosted", nil)
		m.RecordStage(context.Background(), "map", 1, time.Second)
	})
}

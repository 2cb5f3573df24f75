package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the meter used for pipeline metrics
const MeterName = "priceimport"

// Counter wraps an Int64Counter.
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new Counter metric.
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	c, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", name, err)
	}
	return &Counter{counter: c}, nil
}

// Add increments the counter by value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Histogram wraps a Float64Histogram.
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogram creates a histogram with optional bucket boundaries
func NewHistogram(meter metric.Meter, name, description, unit string, boundaries ...float64) (*Histogram, error) {
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(description),
		metric.WithUnit(unit),
	}
	if len(boundaries) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(boundaries...))
	}
	h, err := meter.Float64Histogram(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", name, err)
	}
	return &Histogram{histogram: h}, nil
}

// Record records one observation
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records a duration in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Metric attribute keys
const (
	MetricAttrOutcome  = "outcome"
	MetricAttrProvider = "provider"
	MetricAttrStage    = "stage"
	MetricAttrDryRun   = "dry_run"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDryRun  = "dry_run"
)

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// ImportMetrics holds the instruments recorded by an import run.
type ImportMetrics struct {
	runs          *Counter
	extractions   *Counter
	rows          *Counter
	runDuration   *Histogram
	stageDuration *Histogram
}

// NewImportMetrics registers the import instruments on meter.
func NewImportMetrics(meter metric.Meter) (*ImportMetrics, error) {
	runs, err := NewCounter(meter, "priceimport_runs_total", "Import runs by outcome", "{run}")
	if err != nil {
		return nil, err
	}
	extractions, err := NewCounter(meter, "priceimport_extraction_attempts_total",
		"Extraction attempts by provider and outcome", "{attempt}")
	if err != nil {
		return nil, err
	}
	rows, err := NewCounter(meter, "priceimport_rows_total", "Rows leaving each pipeline stage", "{row}")
	if err != nil {
		return nil, err
	}
	runDuration, err := NewHistogram(meter, "priceimport_run_duration_seconds",
		"Wall time of an import run", "s", durationBuckets...)
	if err != nil {
		return nil, err
	}
	stageDuration, err := NewHistogram(meter, "priceimport_stage_duration_seconds",
		"Wall time of a pipeline stage", "s", durationBuckets...)
	if err != nil {
		return nil, err
	}
	return &ImportMetrics{
		runs:          runs,
		extractions:   extractions,
		rows:          rows,
		runDuration:   runDuration,
		stageDuration: stageDuration,
	}, nil
}

// RecordRun records a finished run
func (m *ImportMetrics) RecordRun(ctx context.Context, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := attribute.String(MetricAttrOutcome, outcome)
	m.runs.Inc(ctx, attrs)
	m.runDuration.RecordDuration(ctx, d, attrs)
}

// RecordExtraction records one provider attempt
func (m *ImportMetrics) RecordExtraction(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.extractions.Inc(ctx,
		attribute.String(MetricAttrProvider, provider),
		attribute.String(MetricAttrOutcome, outcome),
	)
}

// RecordStage records the rows produced by a stage and its duration
func (m *ImportMetrics) RecordStage(ctx context.Context, stage string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := attribute.String(MetricAttrStage, stage)
	m.rows.Add(ctx, int64(rows), attrs)
	m.stageDuration.RecordDuration(ctx, d, attrs)
}

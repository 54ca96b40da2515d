package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts describes one instrument's name/description/unit.
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

const meterName = "ticketing-core"

func meter() metric.Meter { return otel.Meter(meterName) }

// Counter wraps an otel Int64Counter behind a nil-safe Inc/Add surface.
type Counter struct{ c metric.Int64Counter }

// NewCounter creates a monotonic counter instrument.
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{c: c}, nil
}

// Inc adds 1 to the counter with the given attributes.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Add adds n to the counter with the given attributes.
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Histogram wraps an otel Float64Histogram.
type Histogram struct{ h metric.Float64Histogram }

// NewHistogramWithBuckets creates a histogram instrument with explicit bucket boundaries.
func NewHistogramWithBuckets(opts MetricOpts, buckets []float64) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{h: h}, nil
}

// Record records an observation.
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.h.Record(ctx, v, metric.WithAttributes(attrs...))
}

// UpDownCounter wraps an otel Int64UpDownCounter for current-state gauges.
type UpDownCounter struct{ c metric.Int64UpDownCounter }

// NewUpDownCounter creates an up/down counter instrument.
func NewUpDownCounter(opts MetricOpts) (*UpDownCounter, error) {
	c, err := meter().Int64UpDownCounter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &UpDownCounter{c: c}, nil
}

// Inc increments the gauge by 1.
func (c *UpDownCounter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Dec decrements the gauge by 1.
func (c *UpDownCounter) Dec(ctx context.Context, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// Add adds a signed delta to the gauge.
func (c *UpDownCounter) Add(ctx context.Context, delta int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, delta, metric.WithAttributes(attrs...))
}

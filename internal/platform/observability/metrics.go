package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hanko-field/orderdesk/internal/platform/observability"

// Metrics records bulk execution instruments. It satisfies services.BulkMetrics.
type Metrics struct {
	executions metric.Int64Counter
	affected   metric.Int64Histogram
	duration   metric.Float64Histogram
}

// NewMetrics registers the instruments on meter, or on the global meter provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	executions, err := meter.Int64Counter("orders.bulk.executions",
		metric.WithDescription("Bulk order actions by action and outcome"))
	if err != nil {
		return nil, fmt.Errorf("observability: register executions counter: %w", err)
	}
	affected, err := meter.Int64Histogram("orders.bulk.affected",
		metric.WithDescription("Orders changed per bulk action"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 20, 100, 500, 1000, 5000))
	if err != nil {
		return nil, fmt.Errorf("observability: register affected histogram: %w", err)
	}
	duration, err := meter.Float64Histogram("orders.bulk.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of bulk order actions"))
	if err != nil {
		return nil, fmt.Errorf("observability: register duration histogram: %w", err)
	}
	return &Metrics{executions: executions, affected: affected, duration: duration}, nil
}

func (m *Metrics) RecordBulkExecution(ctx context.Context, action, outcome string, affected int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("action", action), attribute.String("outcome", outcome))
	m.executions.Add(ctx, 1, attrs)
	m.affected.Record(ctx, int64(affected), attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

package health

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the health check instruments.
type Metrics struct {
	duration  metric.Float64Histogram
	unhealthy metric.Int64Counter
}

// NewMetrics creates the health check instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	duration, err := meter.Float64Histogram(
		"health.check.duration",
		metric.WithDescription("Duration of individual health checks in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	unhealthy, err := meter.Int64Counter(
		"health.check.unhealthy",
		metric.WithDescription("Number of health checks that reported unhealthy"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{duration: duration, unhealthy: unhealthy}, nil
}

func (m *Metrics) record(ctx context.Context, service string, d time.Duration, st ServiceStatus) {
	if m == nil {
		return
	}

	// The check context may already be done; instruments only need its values.
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("health.service", service),
		attribute.String("health.state", string(st.State)),
	)
	m.duration.Record(ctx, d.Seconds(), attrs)
	if !st.Healthy() {
		m.unhealthy.Add(ctx, 1, attrs)
	}
}

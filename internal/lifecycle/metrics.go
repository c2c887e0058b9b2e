package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/harrison/ptw/internal/models"
)

const instrumentationName = "github.com/harrison/ptw/internal/lifecycle"

type lifecycleMetrics struct {
	transitions metric.Int64Counter
	refusals    metric.Int64Counter
}

func newLifecycleMetrics(meter metric.Meter) lifecycleMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := lifecycleMetrics{}

	var err error
	m.transitions, err = meter.Int64Counter("ptw.lifecycle.transitions",
		metric.WithDescription("Permit state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		m.transitions = noop.Int64Counter{}
	}
	m.refusals, err = meter.Int64Counter("ptw.lifecycle.refusals",
		metric.WithDescription("Refused lifecycle actions"),
		metric.WithUnit("{refusal}"),
	)
	if err != nil {
		m.refusals = noop.Int64Counter{}
	}
	return m
}

func (m lifecycleMetrics) recordTransition(ctx context.Context, from, to models.Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m lifecycleMetrics) recordRefusal(ctx context.Context, action Action) {
	m.refusals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", string(action)),
	))
}

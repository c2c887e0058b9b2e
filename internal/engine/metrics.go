package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/harrison/ptw/internal/engine"

type engineMetrics struct {
	evaluations   metric.Int64Counter
	crossTriggers metric.Int64Counter
}

func newEngineMetrics(meter metric.Meter) engineMetrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m := engineMetrics{}

	var err error
	m.evaluations, err = meter.Int64Counter("ptw.engine.evaluations",
		metric.WithDescription("Evaluation passes over a permit"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		m.evaluations = noop.Int64Counter{}
	}
	m.crossTriggers, err = meter.Int64Counter("ptw.engine.cross_triggers",
		metric.WithDescription("Questionnaires forced on by a cross trigger"),
		metric.WithUnit("{trigger}"),
	)
	if err != nil {
		m.crossTriggers = noop.Int64Counter{}
	}
	return m
}

func (m engineMetrics) recordEvaluation(ctx context.Context, violations int) {
	m.evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("blocked", violations > 0),
	))
}

func (m engineMetrics) recordTrigger(ctx context.Context, hit TriggerHit) {
	m.crossTriggers.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", hit.Rule.Source),
		attribute.String("target", hit.Target),
	))
}

package brain

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"basegraph.app/concierge/internal/model"
)

const meterName = "concierge/brain"

// turnMetrics records turn outcomes on the global meter provider, which is a
// no-op until otel.Setup installs an exporter.
type turnMetrics struct {
	turns      metric.Int64Counter
	duration   metric.Float64Histogram
	confidence metric.Float64Histogram
	escalated  metric.Int64Counter
	tokens     metric.Int64Counter
}

func newTurnMetrics() *turnMetrics {
	meter := otel.Meter(meterName)
	m := &turnMetrics{}
	var err error

	if m.turns, err = meter.Int64Counter("concierge.turns",
		metric.WithDescription("Conversational turns by outcome"),
	); err != nil {
		otel.Handle(err)
	}
	if m.duration, err = meter.Float64Histogram("concierge.turn.duration",
		metric.WithDescription("End to end turn latency"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	if m.confidence, err = meter.Float64Histogram("concierge.turn.confidence",
		metric.WithDescription("Answer confidence after degradation penalties"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1),
	); err != nil {
		otel.Handle(err)
	}
	if m.escalated, err = meter.Int64Counter("concierge.escalations",
		metric.WithDescription("Turns that escalated to a human, by priority"),
	); err != nil {
		otel.Handle(err)
	}
	if m.tokens, err = meter.Int64Counter("concierge.generation.tokens",
		metric.WithDescription("Tokens consumed by generation"),
	); err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *turnMetrics) record(ctx context.Context, started time.Time, result *model.TurnResult, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(model.KindOf(err))
		if outcome == "" {
			outcome = "internal"
		}
	}
	if m.turns != nil {
		m.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(started).Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if result == nil {
		return
	}

	degraded := attribute.Bool("retrieval_degraded", result.RetrievalDegraded)
	if m.confidence != nil {
		m.confidence.Record(ctx, result.Confidence, metric.WithAttributes(degraded))
	}
	if result.NeedsEscalation && m.escalated != nil {
		m.escalated.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", string(result.Priority))))
	}
}

func (m *turnMetrics) addTokens(ctx context.Context, modelName string, tokens int) {
	if tokens > 0 && m.tokens != nil {
		m.tokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String("model", modelName)))
	}
}

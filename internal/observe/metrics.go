// Package observe records turn metrics and model spans with OpenTelemetry.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"zegion/internal/turn"
)

const meterName = "zegion"

type Metrics struct {
	Turns        metric.Int64Counter
	TurnDuration metric.Float64Histogram
	Transitions  metric.Int64Counter
	LLMDuration  metric.Float64Histogram
	LLMErrors    metric.Int64Counter
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)

	if m.Turns, err = meter.Int64Counter("zegion.turns",
		metric.WithDescription("Finished turns by outcome.")); err != nil {
		return nil, err
	}
	if m.TurnDuration, err = meter.Float64Histogram("zegion.turn.duration",
		metric.WithDescription("Time from activation to the end of a turn."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.Transitions, err = meter.Int64Counter("zegion.turn.transitions",
		metric.WithDescription("State changes of the turn controller.")); err != nil {
		return nil, err
	}
	if m.LLMDuration, err = meter.Float64Histogram("zegion.llm.duration",
		metric.WithDescription("Latency of model queries."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.LLMErrors, err = meter.Int64Counter("zegion.llm.errors",
		metric.WithDescription("Failed model queries.")); err != nil {
		return nil, err
	}

	return &m, nil
}

// Default builds [Metrics] on the global meter provider.
func Default() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

var _ turn.Observer = (*Metrics)(nil)

func (m *Metrics) StateChanged(from, to turn.State) {
	m.Transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *Metrics) TurnEnded(outcome turn.Outcome, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", string(outcome)))
	m.Turns.Add(context.Background(), 1, attrs)
	m.TurnDuration.Record(context.Background(), elapsed.Seconds(), attrs)
}

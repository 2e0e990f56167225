package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"zegion/internal/llm"
)

const tracerName = "zegion"

// Model wraps an [llm.Client] with a span and latency metrics per query.
type Model struct {
	next    llm.Client
	backend string
	metrics *Metrics
	tracer  trace.Tracer
}

var _ llm.Client = (*Model)(nil)

func InstrumentModel(next llm.Client, backend string, m *Metrics) *Model {
	return &Model{
		next:    next,
		backend: backend,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
	}
}

func (o *Model) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		attribute.String("llm.backend", o.backend),
		attribute.Int("llm.prompt_chars", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	out, err := o.next.Generate(ctx, prompt)

	attrs := metric.WithAttributes(attribute.String("backend", o.backend))
	o.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		o.metrics.LLMErrors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("llm.reply_chars", len(out)))
	return out, nil
}

package events

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracingQuery is the observability sink every aggregate's Runtime registers
// alongside its domain queries: on each dispatch it opens one span per
// committed event, tagging it with the aggregate type, aggregate id, and
// event type so a trace backend can reconstruct the causal chain a command
// produced across the broadcast/relay fabric.
type TracingQuery[E any] struct {
	aggregateType string
	eventType     func(E) string
	tracer        trace.Tracer
}

// NewTracingQuery constructs a TracingQuery for aggregateType, using
// eventType to label each event's span.
func NewTracingQuery[E any](aggregateType string, eventType func(E) string) *TracingQuery[E] {
	return &TracingQuery[E]{
		aggregateType: aggregateType,
		eventType:     eventType,
		tracer:        otel.Tracer("weatherzone/" + aggregateType),
	}
}

// Dispatch implements Query[E].
func (t *TracingQuery[E]) Dispatch(ctx context.Context, aggregateID string, evts []EventEnvelope[E]) error {
	for _, envelope := range evts {
		_, span := t.tracer.Start(ctx, t.aggregateType+".event",
			trace.WithAttributes(
				attribute.String("aggregate.type", t.aggregateType),
				attribute.String("aggregate.id", aggregateID),
				attribute.String("event.type", t.eventType(envelope.Payload)),
			),
		)
		span.End()
	}
	return nil
}

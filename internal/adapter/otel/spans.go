package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "quorum"

// StartSessionSpan opens the root span for one orchestration session.
func StartSessionSpan(ctx context.Context, sessionID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "orchestrate",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("query.kind", kind),
		))
}

// StartRoundSpan opens a span covering one dispatch→aggregate→verify round.
func StartRoundSpan(ctx context.Context, round int, strategy string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "round",
		trace.WithAttributes(
			attribute.Int("round.index", round),
			attribute.String("round.strategy", strategy),
		))
}

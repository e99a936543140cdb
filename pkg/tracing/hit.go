package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "hitqueue"

// InjectTraceContext writes the current span context into outbound
// request headers.
func InjectTraceContext(ctx context.Context, header http.Header) {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		return
	}
	propagator.Inject(ctx, propagation.HeaderCarrier(header))
}

// StartHitSpan opens a client span around one transmission attempt.
func StartHitSpan(ctx context.Context, engineID, requestID, method string) (context.Context, trace.Span) {
	return GetTracer(tracerName).Start(ctx, "hit.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("hit.engine_id", engineID),
			attribute.String("hit.request_id", requestID),
			attribute.String("http.request.method", method),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

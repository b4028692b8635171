package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartCommandSpan creates a span for a CLI command execution.
func StartCommandSpan(ctx context.Context, cmdName string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("commands")
	ctx, span := tracer.Start(ctx, "command."+cmdName)

	span.SetAttributes(
		attribute.String("command", cmdName),
		attribute.String("component", "cli"),
	)

	return ctx, span
}

// StartUpstreamSpan creates a client span for a call to the remote actor
// service.
//
// Usage:
//
//	ctx, span := telemetry.StartUpstreamSpan(ctx, "get_run", http.MethodGet, "/actor-runs/abc")
//	defer span.End()
func StartUpstreamSpan(ctx context.Context, operation, method, path string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("upstream")
	ctx, span := tracer.Start(ctx, "upstream."+operation, trace.WithSpanKind(trace.SpanKindClient))

	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("component", "proxy"),
	)

	return ctx, span
}

// StartPollSpan creates a span for one relay status observation.
func StartPollSpan(ctx context.Context, runID string, attempt int) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("relay")
	ctx, span := tracer.Start(ctx, "relay.poll")

	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("attempt", attempt),
		attribute.String("component", "relay"),
	)

	return ctx, span
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(
		attribute.Bool("error", true),
	)
}

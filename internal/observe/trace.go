package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the chalkvoice tracer.
const tracerName = "github.com/chalkvoice/chalkvoice"

// Tracer returns the tracer all chalkvoice spans are created from. It uses
// the globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartCommandSpan opens the span covering one command pipeline run, from
// transcript to confirmation or rejection. source labels how the command
// arrived: "text" for typed input, "audio" for a spoken clip. The caller must
// End the span.
func StartCommandSpan(ctx context.Context, source string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "command.process",
		trace.WithAttributes(attribute.String("command.source", source)),
	)
}

// CorrelationID returns the trace ID of the active span in ctx. It is the
// identifier surfaced to operators in log lines and the X-Correlation-ID
// response header. Empty when ctx carries no span with a valid trace ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// Logger returns [slog.Default] enriched with the trace_id and span_id of the
// active span so a command's log lines can be joined to its trace. Without an
// active span the default logger is returned unchanged.
func Logger(ctx context.Context) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return slog.Default()
	}
	return slog.Default().With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}

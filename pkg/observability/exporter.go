package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// slogSpanExporter implements sdktrace.SpanExporter by writing completed
// spans to a structured logger. It exists because this module's vendored
// OpenTelemetry SDK does not carry an OTLP exporter; the collector-facing
// wire format is out of scope here, but the SpanExporter contract is the
// same one any collector exporter would satisfy.
type slogSpanExporter struct {
	logger *slog.Logger
}

func newSlogSpanExporter(logger *slog.Logger) *slogSpanExporter {
	return &slogSpanExporter{logger: logger.With("component", "trace_exporter")}
}

func (e *slogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := make([]any, 0, 8+len(span.Attributes())*2)
		attrs = append(attrs,
			"span_name", span.Name(),
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"duration_ms", span.EndTime().Sub(span.StartTime()).Milliseconds(),
			"status", span.Status().Code.String(),
		)
		if parent := span.Parent(); parent.HasSpanID() {
			attrs = append(attrs, "parent_span_id", parent.SpanID().String())
		}
		for _, kv := range span.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		for _, ev := range span.Events() {
			e.logger.DebugContext(ctx, "span event", "span_name", span.Name(), "event", ev.Name)
		}
		if span.Status().Code == codes.Error {
			e.logger.WarnContext(ctx, "span completed with error", attrs...)
			continue
		}
		e.logger.DebugContext(ctx, "span completed", attrs...)
	}
	return nil
}

func (e *slogSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}

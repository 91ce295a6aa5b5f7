package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for the depobot package.
const TracerName = "github.com/teemow/depobot"

// Span attribute keys for operations.
const (
	// SpanAttrMeetingID is the Zoom meeting id attribute.
	SpanAttrMeetingID = "zoom.meeting_id"

	// SpanAttrBotID is the Recall bot id attribute.
	SpanAttrBotID = "recall.bot_id"

	// SpanAttrEvent is the webhook event type attribute.
	SpanAttrEvent = "webhook.event"

	// SpanAttrStage is the pipeline stage attribute.
	SpanAttrStage = "pipeline.stage"

	// SpanAttrRunID is the pipeline run id attribute.
	SpanAttrRunID = "pipeline.run_id"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 6),
	}
}

// WithMeeting adds the meeting id attribute.
func (b *SpanAttributeBuilder) WithMeeting(meetingID string) *SpanAttributeBuilder {
	if meetingID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrMeetingID, meetingID))
	}
	return b
}

// WithBot adds the bot id attribute.
func (b *SpanAttributeBuilder) WithBot(botID string) *SpanAttributeBuilder {
	if botID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrBotID, botID))
	}
	return b
}

// WithEvent adds the webhook event attribute.
func (b *SpanAttributeBuilder) WithEvent(event string) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.String(SpanAttrEvent, event))
	return b
}

// WithRun adds the pipeline run id attribute.
func (b *SpanAttributeBuilder) WithRun(runID string) *SpanAttributeBuilder {
	if runID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrRunID, runID))
	}
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartStageSpan starts a span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return startStageSpan(ctx, otel.GetTracerProvider().Tracer(TracerName), stage, attrs...)
}

func startStageSpan(ctx context.Context, tracer trace.Tracer, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrStage, stage))
	allAttrs = append(allAttrs, attrs...)

	return tracer.Start(ctx, "pipeline."+stage,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrEvent     = "event"
	attrStage     = "stage"
	attrMeetingID = "meeting_id"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// HTTP server metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// Outbound calls to Zoom, Recall, S3 and the deposition API
	upstreamRequestsTotal   metric.Int64Counter
	upstreamRequestDuration metric.Float64Histogram

	// OAuth metrics
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter

	// Webhook pipeline metrics
	webhookEventsTotal       metric.Int64Counter
	pipelineRunsInFlight     metric.Int64UpDownCounter
	pipelineStageTotal       metric.Int64Counter
	pipelineStageDuration    metric.Float64Histogram
	depositionAttemptsTotal  metric.Int64Counter
	depositionSubmittedTotal metric.Int64Counter

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.upstreamRequestsTotal, err = meter.Int64Counter(
		"upstream_requests_total",
		metric.WithDescription("Total number of requests to external services"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_requests_total counter: %w", err)
	}

	m.upstreamRequestDuration, err = meter.Float64Histogram(
		"upstream_request_duration_seconds",
		metric.WithDescription("External service request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream_request_duration_seconds histogram: %w", err)
	}

	m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of Zoom OAuth installs by result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.webhookEventsTotal, err = meter.Int64Counter(
		"webhook_events_total",
		metric.WithDescription("Total number of webhook events received by event type and result"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook_events_total counter: %w", err)
	}

	m.pipelineRunsInFlight, err = meter.Int64UpDownCounter(
		"pipeline_runs_in_flight",
		metric.WithDescription("Number of webhook-triggered pipeline runs currently executing"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_runs_in_flight gauge: %w", err)
	}

	m.pipelineStageTotal, err = meter.Int64Counter(
		"pipeline_stage_total",
		metric.WithDescription("Total number of pipeline stage executions by stage and status"),
		metric.WithUnit("{stage}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_stage_total counter: %w", err)
	}

	m.pipelineStageDuration, err = meter.Float64Histogram(
		"pipeline_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline_stage_duration_seconds histogram: %w", err)
	}

	m.depositionAttemptsTotal, err = meter.Int64Counter(
		"deposition_submit_attempts_total",
		metric.WithDescription("Total number of deposition API attempts by HTTP status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create deposition_submit_attempts_total counter: %w", err)
	}

	m.depositionSubmittedTotal, err = meter.Int64Counter(
		"depositions_submitted_total",
		metric.WithDescription("Total number of deposition submissions by final result"),
		metric.WithUnit("{deposition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create depositions_submitted_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, NormalizePath(path)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUpstreamRequest records one outbound call to an external service.
//
// Parameters:
//   - service: upstream name (zoom, recall, transcript, s3, deposition)
//   - operation: HTTP method of the call
//   - statusCode: HTTP status, or 0 when no response was received
//   - duration: time taken for the call
func (m *Metrics) RecordUpstreamRequest(ctx context.Context, service, operation string, statusCode int, duration time.Duration) {
	if m == nil || m.upstreamRequestsTotal == nil || m.upstreamRequestDuration == nil {
		return // Instrumentation not initialized
	}

	status := strconv.Itoa(statusCode)
	if statusCode == 0 {
		status = StatusError
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.upstreamRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.upstreamRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOAuthAuth records a Zoom install (code exchange) with result.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "reauth_required"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return // Instrumentation not initialized
	}

	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordWebhookEvent records a received webhook event and how it was handled
// ("accepted", "ignored", "rejected", "duplicate"). Unknown event types are
// counted as "other".
func (m *Metrics) RecordWebhookEvent(ctx context.Context, event, result string) {
	if m == nil || m.webhookEventsTotal == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrEvent, NormalizeEvent(event)),
		attribute.String(attrResult, result),
	}

	m.webhookEventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// IncrementRunsInFlight marks the start of a pipeline run.
func (m *Metrics) IncrementRunsInFlight(ctx context.Context) {
	if m == nil || m.pipelineRunsInFlight == nil {
		return // Instrumentation not initialized
	}

	m.pipelineRunsInFlight.Add(ctx, 1)
}

// DecrementRunsInFlight marks the end of a pipeline run.
func (m *Metrics) DecrementRunsInFlight(ctx context.Context) {
	if m == nil || m.pipelineRunsInFlight == nil {
		return // Instrumentation not initialized
	}

	m.pipelineRunsInFlight.Add(ctx, -1)
}

// RecordPipelineStage records one pipeline stage execution.
// The meeting id label is only attached when detailed labels are enabled.
func (m *Metrics) RecordPipelineStage(ctx context.Context, stage, status, meetingID string, duration time.Duration) {
	if m == nil || m.pipelineStageTotal == nil || m.pipelineStageDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrStage, stage),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && meetingID != "" {
		attrs = append(attrs, attribute.String(attrMeetingID, meetingID))
	}

	m.pipelineStageTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pipelineStageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordDepositionAttempt records one HTTP attempt against the deposition API.
func (m *Metrics) RecordDepositionAttempt(ctx context.Context, statusCode int) {
	if m == nil || m.depositionAttemptsTotal == nil {
		return // Instrumentation not initialized
	}

	m.depositionAttemptsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, strconv.Itoa(statusCode))))
}

// RecordDepositionSubmitted records the final outcome of a deposition submission.
func (m *Metrics) RecordDepositionSubmitted(ctx context.Context, result string) {
	if m == nil || m.depositionSubmittedTotal == nil {
		return // Instrumentation not initialized
	}

	m.depositionSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// Package instrumentation provides OpenTelemetry instrumentation for the
// deposition pipeline service.
//
// This package enables production-grade observability through:
//   - OpenTelemetry metrics for HTTP requests, upstream calls and pipeline stages
//   - Distributed tracing for webhook runs and outbound calls
//   - Prometheus metrics export via /metrics endpoint on dedicated port
//   - OTLP export support for modern observability platforms
//   - Audit records for pipeline stages and deposition submissions
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total: Counter of HTTP requests by method, path, and status
//   - http_request_duration_seconds: Histogram of HTTP request durations
//
// Upstream Metrics (zoom, recall, transcript, s3, deposition):
//   - upstream_requests_total: Counter by service, operation and status
//   - upstream_request_duration_seconds: Histogram of call durations
//
// OAuth Metrics:
//   - oauth_auth_total: Counter of Zoom installs by result
//   - oauth_token_refresh_total: Counter of token refresh attempts by result
//
// Pipeline Metrics:
//   - webhook_events_total: Counter by event type and result
//   - pipeline_runs_in_flight: Gauge of detached runs
//   - pipeline_stage_total / pipeline_stage_duration_seconds: per stage and status
//   - deposition_submit_attempts_total: Counter by HTTP status
//   - depositions_submitted_total: Counter by final result
//
// Paths are normalized with NormalizePath so unknown routes cannot create
// new label values. The meeting id label is only attached to stage metrics
// when METRICS_DETAILED_LABELS is true.
//
// # Tracing
//
// Spans are created for:
//   - HTTP request handling (otelhttp)
//   - Each pipeline stage (pipeline.<stage>)
//   - Upstream calls (<service>.<operation>)
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: depobot)
//   - METRICS_DETAILED_LABELS: attach meeting ids to stage metrics (default: false)
//   - AUDIT_LOGGING_ENABLED / AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	cfg, err := instrumentation.LoadConfig(os.Getenv)
//	if err != nil {
//		return err
//	}
//	provider, err := instrumentation.NewProvider(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordUpstreamRequest(ctx, instrumentation.ServiceRecall, "POST", 201, time.Since(start))
//	metrics.RecordPipelineStage(ctx, "format", instrumentation.StatusSuccess, meetingID, time.Since(start))
package instrumentation

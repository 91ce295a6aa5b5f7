package instrumentation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newManualMetrics returns a Metrics wired to a manual reader so tests can
// inspect what was recorded.
func newManualMetrics(t *testing.T, detailedLabels bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailedLabels)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m, reader
}

// sumPoints collects the named Int64 sum and returns its data points.
func sumPoints(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != name {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, not an int64 sum", name, md.Data)
			}
			return sum.DataPoints
		}
	}
	t.Fatalf("metric %s not recorded", name)
	return nil
}

func attrValue(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.AsString()
}

func TestMetrics_RecordHTTPRequest_NormalizesPath(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordHTTPRequest(ctx, "POST", "/webhook", 200, 10*time.Millisecond)
	m.RecordHTTPRequest(ctx, "GET", "/wp-login.php", 404, time.Millisecond)

	paths := map[string]int64{}
	for _, dp := range sumPoints(t, reader, "http_requests_total") {
		paths[attrValue(dp.Attributes, attrPath)] += dp.Value
	}

	if paths["/webhook"] != 1 {
		t.Errorf("expected one /webhook request, got %d", paths["/webhook"])
	}
	if paths["other"] != 1 {
		t.Errorf("expected unknown path to be reported as other, got %v", paths)
	}
	if _, ok := paths["/wp-login.php"]; ok {
		t.Error("raw unknown path leaked into labels")
	}
}

func TestMetrics_RecordUpstreamRequest(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordUpstreamRequest(ctx, ServiceRecall, "POST", 201, 50*time.Millisecond)
	m.RecordUpstreamRequest(ctx, ServiceS3, "PUT", 0, time.Second)

	statuses := map[string]string{}
	for _, dp := range sumPoints(t, reader, "upstream_requests_total") {
		statuses[attrValue(dp.Attributes, attrService)] = attrValue(dp.Attributes, attrStatus)
	}

	if statuses[ServiceRecall] != "201" {
		t.Errorf("expected recall status 201, got %q", statuses[ServiceRecall])
	}
	if statuses[ServiceS3] != StatusError {
		t.Errorf("expected transport failure to be labelled %q, got %q", StatusError, statuses[ServiceS3])
	}
}

func TestMetrics_RecordPipelineStage_DetailedLabels(t *testing.T) {
	tests := []struct {
		name            string
		detailedLabels  bool
		expectMeetingID string
	}{
		{name: "meeting id omitted by default", detailedLabels: false, expectMeetingID: ""},
		{name: "meeting id attached when detailed", detailedLabels: true, expectMeetingID: "85746065432"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newManualMetrics(t, tt.detailedLabels)

			m.RecordPipelineStage(context.Background(), "format", StatusSuccess, "85746065432", 5*time.Millisecond)

			points := sumPoints(t, reader, "pipeline_stage_total")
			if len(points) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(points))
			}
			if got := attrValue(points[0].Attributes, attrMeetingID); got != tt.expectMeetingID {
				t.Errorf("expected meeting_id %q, got %q", tt.expectMeetingID, got)
			}
			if got := attrValue(points[0].Attributes, attrStage); got != "format" {
				t.Errorf("expected stage 'format', got %q", got)
			}
		})
	}
}

func TestMetrics_RecordWebhookEvent(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordWebhookEvent(ctx, "meeting.ended", WebhookAccepted)
	m.RecordWebhookEvent(ctx, "meeting.ended", WebhookDuplicate)
	m.RecordWebhookEvent(ctx, "meeting.ended", WebhookAccepted)

	results := map[string]int64{}
	for _, dp := range sumPoints(t, reader, "webhook_events_total") {
		results[attrValue(dp.Attributes, attrResult)] += dp.Value
	}
	if results[WebhookAccepted] != 2 || results[WebhookDuplicate] != 1 {
		t.Errorf("unexpected webhook counts: %v", results)
	}
}

func TestMetrics_RecordWebhookEvent_BoundsEventLabel(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.RecordWebhookEvent(ctx, fmt.Sprintf("forged.event.%d", i), WebhookIgnored)
	}
	m.RecordWebhookEvent(ctx, "meeting.started", WebhookAccepted)

	events := map[string]int64{}
	for _, dp := range sumPoints(t, reader, "webhook_events_total") {
		events[attrValue(dp.Attributes, attrEvent)] += dp.Value
	}
	if len(events) != 2 || events["other"] != 5 || events["meeting.started"] != 1 {
		t.Errorf("unexpected event labels: %v", events)
	}
}

func TestMetrics_RunsInFlight(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.IncrementRunsInFlight(ctx)
	m.IncrementRunsInFlight(ctx)
	m.DecrementRunsInFlight(ctx)

	points := sumPoints(t, reader, "pipeline_runs_in_flight")
	if len(points) != 1 || points[0].Value != 1 {
		t.Errorf("expected 1 run in flight, got %+v", points)
	}
}

func TestMetrics_DepositionCounters(t *testing.T) {
	m, reader := newManualMetrics(t, false)
	ctx := context.Background()

	m.RecordDepositionAttempt(ctx, 401)
	m.RecordDepositionAttempt(ctx, 200)
	m.RecordDepositionSubmitted(ctx, StatusSuccess)

	attempts := sumPoints(t, reader, "deposition_submit_attempts_total")
	if len(attempts) != 2 {
		t.Errorf("expected attempts split by status, got %d points", len(attempts))
	}
	submitted := sumPoints(t, reader, "depositions_submitted_total")
	if len(submitted) != 1 || submitted[0].Value != 1 {
		t.Errorf("expected one submission, got %+v", submitted)
	}
}

func TestMetrics_ProviderPrometheus(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		ServiceVersion:  "1.0.0",
		Enabled:         true,
		MetricsExporter: "prometheus",
		TracingExporter: "none",
	}, nil)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil")
	}

	// Should not panic
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultReauth)
}

func TestMetrics_NoOp_WhenDisabled(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider(ctx, Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}

	metrics := provider.Metrics()
	if metrics == nil {
		t.Fatal("expected metrics to be non-nil even when disabled")
	}

	// All these should not panic even with nil underlying metrics
	metrics.RecordHTTPRequest(ctx, "GET", "/webhook", 200, 100*time.Millisecond)
	metrics.RecordUpstreamRequest(ctx, ServiceZoom, "GET", 200, time.Millisecond)
	metrics.RecordOAuthAuth(ctx, OAuthResultSuccess)
	metrics.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	metrics.RecordWebhookEvent(ctx, "meeting.created", WebhookAccepted)
	metrics.IncrementRunsInFlight(ctx)
	metrics.DecrementRunsInFlight(ctx)
	metrics.RecordPipelineStage(ctx, "download", StatusError, "1", time.Millisecond)
	metrics.RecordDepositionAttempt(ctx, 500)
	metrics.RecordDepositionSubmitted(ctx, StatusError)

	var nilMetrics *Metrics
	nilMetrics.RecordWebhookEvent(ctx, "meeting.created", WebhookAccepted)
}

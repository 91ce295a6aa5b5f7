package instrumentation

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with request-derived values.

// knownPaths lists every route the HTTP server exposes. Anything else is
// reported as "other" so scanners cannot mint new label values.
var knownPaths = map[string]bool{
	"/webhook":                true,
	"/api/recall/callback":    true,
	"/install":                true,
	"/auth":                   true,
	"/auth/status":            true,
	"/api/scheduleDeposition": true,
	"/healthz":                true,
	"/readyz":                 true,
	"/metrics":                true,
}

// NormalizePath maps a request path onto a bounded set of label values.
//
// Example:
//
//	NormalizePath("/webhook")      // "/webhook"
//	NormalizePath("/wp-admin.php") // "other"
func NormalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	return "other"
}

// knownEvents lists the Zoom webhook event types the service handles. The
// event name comes from the request body, so anything else is "other".
var knownEvents = map[string]bool{
	"meeting.created":         true,
	"meeting.started":         true,
	"meeting.ended":           true,
	"endpoint.url_validation": true,
	"unknown":                 true,
}

// NormalizeEvent maps a webhook event type onto a bounded set of label values.
func NormalizeEvent(event string) string {
	if knownEvents[event] {
		return event
	}
	return "other"
}

// Webhook handling results used with RecordWebhookEvent.
const (
	WebhookAccepted  = "accepted"
	WebhookIgnored   = "ignored"
	WebhookRejected  = "rejected"
	WebhookDuplicate = "duplicate"
)

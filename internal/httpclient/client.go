package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/depobot/internal/logging"
)

// DefaultTimeout bounds a single outbound call when no timeout is given.
const DefaultTimeout = 30 * time.Second

// Recorder receives one observation per completed round trip.
// *instrumentation.Metrics satisfies it.
type Recorder interface {
	RecordUpstreamRequest(ctx context.Context, service, operation string, statusCode int, duration time.Duration)
}

// New returns an http.Client for calls to service. A non-positive timeout
// falls back to DefaultTimeout. metrics and logger may be nil.
func New(service string, timeout time.Duration, metrics Recorder, logger *slog.Logger) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: Wrap(base, service, metrics, logger),
	}
}

// Wrap instruments an existing RoundTripper. It is used by New and by tests
// that point clients at an httptest server.
func Wrap(base http.RoundTripper, service string, metrics Recorder, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	observed := &observingTransport{
		base:    base,
		service: service,
		metrics: metrics,
		logger:  logging.WithService(logging.OrDefault(logger), service),
	}
	return otelhttp.NewTransport(observed,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return service + " " + r.Method
		}),
	)
}

// observingTransport logs and measures each request. It never logs headers
// or bodies since they carry tokens and transcripts.
type observingTransport struct {
	base    http.RoundTripper
	service string
	metrics Recorder
	logger  *slog.Logger
}

func (t *observingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if t.metrics != nil {
		t.metrics.RecordUpstreamRequest(req.Context(), t.service, req.Method, status, elapsed)
	}

	attrs := []slog.Attr{
		slog.String("method", req.Method),
		slog.String("host", req.URL.Host),
		slog.String("path", req.URL.Path),
		slog.Int("status_code", status),
		logging.Duration(elapsed),
	}
	switch {
	case err != nil:
		t.logger.LogAttrs(req.Context(), slog.LevelWarn, "upstream request failed", append(attrs, logging.Err(err))...)
	case status >= 400:
		t.logger.LogAttrs(req.Context(), slog.LevelWarn, "upstream request returned error status", attrs...)
	default:
		t.logger.LogAttrs(req.Context(), slog.LevelDebug, "upstream request", attrs...)
	}

	return resp, err
}

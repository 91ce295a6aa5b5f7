package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/zoom"
)

// MaxBodySize caps an inbound webhook body.
const MaxBodySize = 1 << 20

// DefaultPipelineTimeout bounds a single detached run.
const DefaultPipelineTimeout = 10 * time.Minute

// EventDispatcher processes a parsed event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev zoom.Event) error
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Secret is the Zoom webhook secret token. When empty, signatures are
	// not checked and url_validation challenges are refused.
	Secret          string
	PipelineTimeout time.Duration
	Logger          *slog.Logger
	Metrics         *instrumentation.Metrics
}

// Handler is the POST /webhook endpoint. Accepted events are processed in
// the background after the response is sent.
type Handler struct {
	dispatcher EventDispatcher
	secret     string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time

	runs       sync.WaitGroup
	base       context.Context
	cancelRuns context.CancelFunc
}

// NewHandler returns a Handler dispatching to d.
func NewHandler(d EventDispatcher, cfg HandlerConfig) *Handler {
	if cfg.PipelineTimeout <= 0 {
		cfg.PipelineTimeout = DefaultPipelineTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &Handler{
		dispatcher: d,
		secret:     cfg.Secret,
		timeout:    cfg.PipelineTimeout,
		logger:     logging.WithOperation(logging.OrDefault(cfg.Logger), "webhook"),
		metrics:    cfg.Metrics,
		now:        time.Now,
		base:       base,
		cancelRuns: cancel,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(ctx, w, "unknown", http.StatusRequestEntityTooLarge, "Payload too large", err)
			return
		}
		h.reject(ctx, w, "unknown", http.StatusBadRequest, "Bad Request", err)
		return
	}

	if h.secret != "" {
		if err := zoom.VerifySignature(h.secret, r.Header, body, h.now()); err != nil {
			h.reject(ctx, w, "unknown", http.StatusUnauthorized, "Unauthorized", err)
			return
		}
	}

	var ev zoom.Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.Event == "" {
		if err == nil {
			err = errors.New("missing event type")
		}
		h.reject(ctx, w, "unknown", http.StatusBadRequest, "Bad Request", err)
		return
	}

	h.logger.Info("webhook event received",
		logging.Event(ev.Event),
		slog.String("trace_id", instrumentation.GetTraceID(ctx)))

	if ev.Event == zoom.EventURLValidation {
		h.validate(ctx, w, ev)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Received")

	h.start(ctx, ev)
}

func (h *Handler) validate(ctx context.Context, w http.ResponseWriter, ev zoom.Event) {
	if h.secret == "" || ev.Payload.PlainToken == "" {
		h.reject(ctx, w, ev.Event, http.StatusBadRequest, "Bad Request", errors.New("url validation needs a webhook secret and plainToken"))
		return
	}
	h.metrics.RecordWebhookEvent(ctx, ev.Event, instrumentation.WebhookAccepted)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(zoom.Validate(h.secret, ev.Payload.PlainToken))
}

// start runs the event detached from the request. The run keeps the
// request's values (trace context) but not its cancellation.
func (h *Handler) start(reqCtx context.Context, ev zoom.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), h.timeout)
	stop := context.AfterFunc(h.base, cancel)

	h.runs.Add(1)
	go func() {
		defer h.runs.Done()
		defer stop()
		defer cancel()

		if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
			h.logger.Error("webhook processing failed",
				logging.Event(ev.Event),
				logging.MeetingID(ev.Payload.Object.ID.String()),
				logging.Err(err))
		}
	}()
}

// Shutdown waits for in-flight runs. When ctx ends first the remaining
// runs are cancelled and ctx's error is returned.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.runs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.cancelRuns()
		<-done
		return ctx.Err()
	}
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, event string, status int, msg string, err error) {
	h.metrics.RecordWebhookEvent(ctx, event, instrumentation.WebhookRejected)
	h.logger.Warn("webhook rejected", logging.Event(event), slog.Int(logging.KeyStatus, status), logging.Err(err))
	http.Error(w, msg, status)
}

package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/depobot/internal/logging"
)

// StageRun captures one pipeline stage execution for audit logging.
type StageRun struct {
	RunID     string
	MeetingID string
	Stage     string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Skipped   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewStageRun starts timing a stage.
func NewStageRun(runID, meetingID, stage string) *StageRun {
	return &StageRun{
		RunID:     runID,
		MeetingID: meetingID,
		Stage:     stage,
		StartTime: time.Now(),
	}
}

// WithSpanContext extracts trace context from the current span.
func (sr *StageRun) WithSpanContext(ctx context.Context) *StageRun {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		sr.TraceID = span.SpanContext().TraceID().String()
		sr.SpanID = span.SpanContext().SpanID().String()
	}
	return sr
}

// Complete marks the stage as finished and calculates duration.
func (sr *StageRun) Complete(err error) *StageRun {
	sr.Duration = time.Since(sr.StartTime)
	sr.Success = err == nil
	if err != nil {
		sr.Error = err.Error()
	}
	return sr
}

// Skip marks the stage as finished without doing any work.
func (sr *StageRun) Skip() *StageRun {
	sr.Complete(nil)
	sr.Skipped = true
	return sr
}

// Status returns "success", "skipped" or "error".
func (sr *StageRun) Status() string {
	switch {
	case sr.Skipped:
		return StatusSkipped
	case sr.Success:
		return StatusSuccess
	default:
		return StatusError
	}
}

// LogAttrs returns slog attributes for structured logging.
func (sr *StageRun) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{
		logging.MeetingID(sr.MeetingID),
		logging.Stage(sr.Stage),
		logging.Status(sr.Status()),
		logging.Duration(sr.Duration),
	}

	if sr.RunID != "" {
		attrs = append(attrs, slog.String(logging.KeyRunID, sr.RunID))
	}
	if sr.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", sr.TraceID))
	}
	if sr.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, sr.Error))
	}

	return attrs
}

// Submission describes a deposition handed to the downstream API.
type Submission struct {
	MeetingID    string
	CaseID       string
	UserID       string
	DeponentName string
	RemoteKey    string
	Success      bool
	Error        string
}

// LogAttrs returns attributes for the submission. Without includePII the
// user id is hashed and the deponent name is omitted.
func (s *Submission) LogAttrs(includePII bool) []slog.Attr {
	attrs := []slog.Attr{
		logging.MeetingID(s.MeetingID),
		slog.String("case_id", s.CaseID),
		slog.String("remote_key", s.RemoteKey),
		slog.Bool("success", s.Success),
	}

	if includePII {
		attrs = append(attrs,
			slog.String("user_id", s.UserID),
			slog.String("deponent_name", s.DeponentName),
		)
	} else {
		attrs = append(attrs, logging.UserHash(s.UserID))
	}
	if s.Error != "" {
		attrs = append(attrs, slog.String(logging.KeyError, s.Error))
	}

	return attrs
}

// AuditLogger provides structured audit logging for pipeline stages and
// deposition submissions.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given slog.Logger.
// By default, PII is not included in logs.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger:  logging.OrDefault(logger),
		enabled: true,
	}
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	return &AuditLogger{
		logger:     logging.OrDefault(logger),
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogStage logs a completed pipeline stage.
func (al *AuditLogger) LogStage(ctx context.Context, sr *StageRun) {
	if al == nil || !al.enabled {
		return
	}

	switch {
	case sr.Skipped:
		al.logger.LogAttrs(ctx, slog.LevelInfo, "stage_skipped", sr.LogAttrs()...)
	case sr.Success:
		al.logger.LogAttrs(ctx, slog.LevelInfo, "stage_completed", sr.LogAttrs()...)
	default:
		al.logger.LogAttrs(ctx, slog.LevelError, "stage_failed", sr.LogAttrs()...)
	}
}

// LogSubmission logs the outcome of a deposition submission.
func (al *AuditLogger) LogSubmission(ctx context.Context, s *Submission) {
	if al == nil || !al.enabled {
		return
	}

	level := slog.LevelInfo
	if !s.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "deposition_audit", s.LogAttrs(al.includePII)...)
}

package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/zoom"
)

// errSkip ends a run early without failing it.
var errSkip = errors.New("nothing to do")

// run is one event's pass through the pipeline.
type run struct {
	d         *Dispatcher
	id        string
	meetingID string
	botID     string
	logger    *slog.Logger
}

func (d *Dispatcher) newRun(logger *slog.Logger, meeting zoom.EventMeeting) *run {
	id := d.newID()
	return &run{
		d:         d,
		id:        id,
		meetingID: meeting.ID.String(),
		logger:    logger.With(slog.String(logging.KeyRunID, id)),
	}
}

// stage runs fn as a named pipeline stage with its own span, metrics and
// audit record. errSkip is passed through and recorded as skipped.
func (r *run) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithMeeting(r.meetingID).
		WithBot(r.botID).
		WithRun(r.id).
		Build()
	ctx, span := instrumentation.StartStageSpan(ctx, name, attrs...)
	defer span.End()

	sr := instrumentation.NewStageRun(r.id, r.meetingID, name).WithSpanContext(ctx)
	r.logger.Debug("stage started", logging.Stage(name))

	err := fn(ctx)
	switch {
	case errors.Is(err, errSkip):
		sr.Skip()
		instrumentation.SetSpanSuccess(span)
	case err != nil:
		sr.Complete(err)
		instrumentation.SetSpanError(span, err)
		r.logger.Error("stage failed", logging.Stage(name), logging.Err(err))
	default:
		sr.Complete(nil)
		instrumentation.SetSpanSuccess(span)
	}

	r.d.metrics.RecordPipelineStage(ctx, name, sr.Status(), r.meetingID, sr.Duration)
	r.d.audit.LogStage(ctx, sr)
	return err
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/deposition"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/recall"
	"github.com/teemow/depobot/internal/store"
	"github.com/teemow/depobot/internal/transcript"
	"github.com/teemow/depobot/internal/zoom"
)

// Bots creates and reads recording bots.
type Bots interface {
	CreateBot(ctx context.Context, joinURL, botName string) (*recall.Bot, error)
	RetrieveBot(ctx context.Context, botID string) (*recall.Bot, error)
}

// Downloader fetches a transcript document.
type Downloader interface {
	Download(ctx context.Context, url string) (*transcript.Raw, error)
}

// TranscriptStore keeps local copies of transcripts.
type TranscriptStore interface {
	PersistRaw(meetingID string, joinedAt time.Time, raw *transcript.Raw) (string, error)
	PersistFormatted(meetingID string, joinedAt time.Time, text string) (string, error)
}

// Publisher uploads a local file and returns its remote key.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// Submitter creates the deposition record.
type Submitter interface {
	Submit(ctx context.Context, s deposition.Submission) (json.RawMessage, error)
}

// Deps are the collaborators of a Dispatcher. All are required.
type Deps struct {
	Bots        Bots
	Registry    store.BotRegistry
	Claims      store.Guard
	Downloader  Downloader
	Transcripts TranscriptStore
	Publisher   Publisher
	Depositions Submitter
}

func (d Deps) validate() error {
	var missing []error
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, fmt.Errorf("%s is required", name))
		}
	}
	check("bots client", d.Bots != nil)
	check("bot registry", d.Registry != nil)
	check("claim guard", d.Claims != nil)
	check("transcript downloader", d.Downloader != nil)
	check("transcript store", d.Transcripts != nil)
	check("publisher", d.Publisher != nil)
	check("deposition client", d.Depositions != nil)
	return errors.Join(missing...)
}

// Settings tune the pipeline.
type Settings struct {
	CaseID string
	UserID string

	PageSize    int
	CallTimeout time.Duration
	ClaimTTL    time.Duration
}

// Dispatcher routes webhook events to their handlers.
type Dispatcher struct {
	deps     Deps
	settings Settings

	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	now     func() time.Time
	newID   func() string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics records webhook and stage metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithAudit writes stage and submission audit records.
func WithAudit(a *instrumentation.AuditLogger) Option {
	return func(d *Dispatcher) { d.audit = a }
}

// NewDispatcher validates deps and applies defaults to settings.
func NewDispatcher(deps Deps, settings Settings, opts ...Option) (*Dispatcher, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher dependencies: %w", err)
	}
	if settings.PageSize <= 0 {
		settings.PageSize = transcript.DefaultPageSize
	}
	if settings.CallTimeout <= 0 {
		settings.CallTimeout = 30 * time.Second
	}
	if settings.ClaimTTL <= 0 {
		settings.ClaimTTL = store.DefaultClaimTTL
	}

	d := &Dispatcher{
		deps:     deps,
		settings: settings,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrDefault(d.logger)
	return d, nil
}

// Dispatch handles one event. Unknown events are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev zoom.Event) error {
	meeting := ev.Payload.Object
	logger := logging.WithMeeting(d.logger, meeting.ID.String()).With(logging.Event(ev.Event))

	switch ev.Event {
	case zoom.EventMeetingCreated:
		d.metrics.RecordWebhookEvent(ctx, ev.Event, instrumentation.WebhookAccepted)
		return d.track(ctx, func(ctx context.Context) error {
			return d.meetingCreated(ctx, d.newRun(logger, meeting), meeting)
		})

	case zoom.EventMeetingStarted:
		d.metrics.RecordWebhookEvent(ctx, ev.Event, instrumentation.WebhookAccepted)
		logger.Info("meeting started", slog.String("topic", meeting.Topic), slog.String("start_time", meeting.StartTime))
		return nil

	case zoom.EventMeetingEnded:
		return d.track(ctx, func(ctx context.Context) error {
			return d.meetingEnded(ctx, d.newRun(logger, meeting), ev.Event, meeting)
		})

	default:
		d.metrics.RecordWebhookEvent(ctx, ev.Event, instrumentation.WebhookIgnored)
		logger.Debug("ignoring webhook event")
		return nil
	}
}

func (d *Dispatcher) track(ctx context.Context, fn func(context.Context) error) error {
	d.metrics.IncrementRunsInFlight(ctx)
	defer d.metrics.DecrementRunsInFlight(ctx)
	return fn(ctx)
}

func (d *Dispatcher) meetingCreated(ctx context.Context, r *run, meeting zoom.EventMeeting) error {
	if meeting.JoinURL == "" {
		err := apperrors.InvalidArgument("meeting %s has no join_url", meeting.ID)
		r.logger.Warn("cannot send bot", logging.Err(err))
		return err
	}
	r.logger.Info("meeting created", slog.String("topic", meeting.Topic))

	var bot *recall.Bot
	err := r.stage(ctx, "create_bot", func(ctx context.Context) error {
		ctx, cancel := d.callContext(ctx)
		defer cancel()

		var err error
		bot, err = d.deps.Bots.CreateBot(ctx, meeting.JoinURL, recall.BotName(meeting.Topic))
		return err
	})
	if err != nil {
		return err
	}

	return r.stage(ctx, "record_bot", func(ctx context.Context) error {
		key, err := d.deps.Registry.RecordBot(ctx, r.meetingID, bot.ID)
		if err != nil {
			return err
		}
		r.logger.Info("bot stored for meeting", logging.BotID(bot.ID), slog.String("key", key))
		return nil
	})
}

func (d *Dispatcher) meetingEnded(ctx context.Context, r *run, event string, meeting zoom.EventMeeting) error {
	r.logger.Info("meeting ended")

	claimKey := event + ":" + meeting.ID.String()
	if meeting.UUID != "" {
		claimKey = event + ":" + meeting.UUID
	}

	steps := []struct {
		name string
		fn   func(context.Context, *endedRun) error
	}{
		{"claim", func(ctx context.Context, e *endedRun) error {
			claimed, err := d.deps.Claims.Claim(ctx, claimKey, d.settings.ClaimTTL)
			if err != nil {
				return err
			}
			if !claimed {
				d.metrics.RecordWebhookEvent(ctx, event, instrumentation.WebhookDuplicate)
				r.logger.Info("meeting.ended already processed")
				return errSkip
			}
			d.metrics.RecordWebhookEvent(ctx, event, instrumentation.WebhookAccepted)
			return nil
		}},
		{"lookup_bot", func(ctx context.Context, e *endedRun) error {
			botID, ok, err := d.deps.Registry.LatestBot(ctx, r.meetingID)
			if err != nil {
				return err
			}
			if !ok {
				r.logger.Warn("no bot found for meeting")
				return errSkip
			}
			e.botID = botID
			r.botID = botID
			return nil
		}},
		{"retrieve_bot", func(ctx context.Context, e *endedRun) error {
			ctx, cancel := d.callContext(ctx)
			defer cancel()

			bot, err := d.deps.Bots.RetrieveBot(ctx, e.botID)
			if err != nil {
				return err
			}
			e.transcriptURL = bot.TranscriptURL()
			if e.transcriptURL == "" {
				r.logger.Info("no transcript available for this meeting", logging.BotID(e.botID))
				return errSkip
			}
			e.joinedAt = d.joinedAt(bot.JoinAt, meeting.StartTime)
			return nil
		}},
		{"download", func(ctx context.Context, e *endedRun) error {
			ctx, cancel := d.callContext(ctx)
			defer cancel()

			raw, err := d.deps.Downloader.Download(ctx, e.transcriptURL)
			e.raw = raw
			return err
		}},
		{"persist_raw", func(ctx context.Context, e *endedRun) error {
			path, err := d.deps.Transcripts.PersistRaw(r.meetingID, e.joinedAt, e.raw)
			if err == nil {
				r.logger.Debug("raw transcript saved", slog.String("path", path))
			}
			return err
		}},
		{"format", func(ctx context.Context, e *endedRun) error {
			text := transcript.Render(transcript.Format(e.raw, d.settings.PageSize))
			path, err := d.deps.Transcripts.PersistFormatted(r.meetingID, e.joinedAt, text)
			if err != nil {
				return err
			}
			e.formattedPath = path
			r.logger.Info("formatted transcript saved", slog.String("path", path))
			return nil
		}},
		{"publish", func(ctx context.Context, e *endedRun) error {
			ctx, cancel := d.callContext(ctx)
			defer cancel()

			key, err := d.deps.Publisher.Publish(ctx, e.formattedPath)
			e.remoteKey = key
			return err
		}},
		{"submit", func(ctx context.Context, e *endedRun) error {
			return d.submit(ctx, r, meeting, e)
		}},
	}

	e := &endedRun{}
	for _, step := range steps {
		err := r.stage(ctx, step.name, func(ctx context.Context) error {
			return step.fn(ctx, e)
		})
		if errors.Is(err, errSkip) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	r.logger.Info("deposition pipeline finished", logging.BotID(e.botID), slog.String("key", e.remoteKey))
	return nil
}

// endedRun carries values between meeting.ended stages.
type endedRun struct {
	botID         string
	transcriptURL string
	joinedAt      time.Time
	raw           *transcript.Raw
	formattedPath string
	remoteKey     string
}

func (d *Dispatcher) submit(ctx context.Context, r *run, meeting zoom.EventMeeting, e *endedRun) error {
	sub := deposition.Submission{
		CaseID:       d.settings.CaseID,
		UserID:       d.settings.UserID,
		RemoteKey:    e.remoteKey,
		DeponentName: "Deposition from meeting " + r.meetingID,
		Date:         meeting.StartTime,
	}
	if sub.Date == "" {
		sub.Date = e.joinedAt.UTC().Format(time.DateOnly)
	}

	// Attempts are bounded by the HTTP client timeout; the retry delays
	// do not fit in a single call timeout.
	_, err := d.deps.Depositions.Submit(ctx, sub)

	record := &instrumentation.Submission{
		MeetingID:    r.meetingID,
		CaseID:       sub.CaseID,
		UserID:       sub.UserID,
		DeponentName: sub.DeponentName,
		RemoteKey:    sub.RemoteKey,
		Success:      err == nil,
	}
	if err != nil {
		record.Error = err.Error()
	}
	d.audit.LogSubmission(ctx, record)
	return err
}

// joinedAt picks the bot's join time, then the meeting start, then now.
func (d *Dispatcher) joinedAt(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, c); err == nil {
			return t
		}
	}
	return d.now()
}

func (d *Dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.settings.CallTimeout)
}

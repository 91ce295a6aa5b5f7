package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/zoom"
)

// ZoomAPI is the part of the Zoom client the handlers use.
type ZoomAPI interface {
	InstallURL() (*zoom.InstallRequest, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*zoom.Grant, error)
	GetDeeplink(ctx context.Context, accessToken string) (string, error)
	CreateMeeting(ctx context.Context, opts zoom.MeetingOptions, accessToken string) (*zoom.Meeting, error)
}

// TokenSource stores grants and hands out fresh access tokens.
type TokenSource interface {
	Save(ctx context.Context, userID string, grant *zoom.Grant) error
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

// CredentialRegistrar registers the token callback with the bot service.
type CredentialRegistrar interface {
	EnsureZoomCredential(ctx context.Context, oauthAppID, zoomUserID, callbackURL string) (bool, error)
}

// Deps are the collaborators shared by the HTTP handlers.
type Deps struct {
	Zoom     ZoomAPI
	Tokens   TokenSource
	Sessions *Sessions

	// Recall is optional; without it installs skip credential registration.
	Recall           CredentialRegistrar
	RecallOAuthAppID string
	RecallAuthToken  string
	CallbackBase     string

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
}

// ServerContext holds the handler dependencies and the shutdown state.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	deps   Deps
	logger *slog.Logger
	now    func() time.Time

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext validates deps and returns a context that is cancelled
// by Shutdown.
func NewServerContext(ctx context.Context, deps Deps) (*ServerContext, error) {
	if deps.Zoom == nil || deps.Tokens == nil || deps.Sessions == nil {
		return nil, errors.New("zoom client, token source and sessions are required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		deps:   deps,
		logger: logging.OrDefault(deps.Logger),
		now:    time.Now,
	}, nil
}

// Context returns the server context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Metrics returns the metrics recorder, which may be nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.deps.Metrics
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}

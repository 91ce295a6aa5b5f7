package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/store"
	"github.com/teemow/depobot/internal/zoom"
)

// RefreshMargin is how close to expiry a token may get before it is
// refreshed.
const RefreshMargin = 2 * time.Minute

// Refresher exchanges a refresh token for a new grant. *zoom.Client
// satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*zoom.Grant, error)
}

// Recorder receives token refresh outcomes.
type Recorder interface {
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// Manager hands out valid access tokens per user.
type Manager struct {
	creds     store.CredentialStore
	refresher Refresher
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time

	// refreshes collapses concurrent refreshes of the same user, which
	// would otherwise race on a rotating refresh token.
	refreshes singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMetrics records refresh outcomes.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a Manager over creds.
func NewManager(creds store.CredentialStore, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		creds:     creds,
		refresher: refresher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithOperation(logging.OrDefault(m.logger), "token")
	return m
}

// Save stores a fresh grant for userID, typically right after install.
func (m *Manager) Save(ctx context.Context, userID string, grant *zoom.Grant) error {
	return m.creds.Save(ctx, store.TokenRecord{
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    m.expiresAt(grant.ExpiresIn),
	})
}

// GetValidAccessToken returns an access token for userID that stays valid
// for at least RefreshMargin. Errors match apperrors.ErrNoCredential when
// the user never installed the app and apperrors.ErrReauthRequired when
// the stored credential cannot be refreshed.
func (m *Manager) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apperrors.InvalidArgument("user id is required")
	}

	rec, err := m.creds.Get(ctx, userID)
	if apperrors.IsNotFound(err) {
		return "", apperrors.NoCredential(userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}

	if !m.needsRefresh(rec) {
		return rec.AccessToken, nil
	}

	v, err, _ := m.refreshes.Do(userID, func() (any, error) {
		return m.refresh(ctx, rec)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) needsRefresh(rec *store.TokenRecord) bool {
	return rec.ExpiresAt < m.now().Add(RefreshMargin).UnixMilli()
}

func (m *Manager) refresh(ctx context.Context, rec *store.TokenRecord) (string, error) {
	logger := m.logger.With(logging.UserHash(rec.UserID))

	if rec.RefreshToken == "" {
		m.recordRefresh(ctx, instrumentation.OAuthResultReauth)
		return "", apperrors.ReauthRequired(rec.UserID, fmt.Errorf("no refresh token stored"))
	}

	grant, err := m.refresher.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		m.recordRefresh(ctx, instrumentation.OAuthResultReauth)
		logger.Warn("token refresh failed", logging.Err(err))
		return "", apperrors.ReauthRequired(rec.UserID, err)
	}

	updated := store.TokenRecord{
		UserID:       rec.UserID,
		AccessToken:  grant.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    m.expiresAt(grant.ExpiresIn),
	}
	if grant.RefreshToken != "" {
		updated.RefreshToken = grant.RefreshToken
	}

	if err := m.creds.Save(ctx, updated); err != nil {
		// The new token is still usable for this call.
		logger.Warn("failed to save refreshed token", logging.Err(err))
	}

	m.recordRefresh(ctx, instrumentation.OAuthResultSuccess)
	logger.Info("access token refreshed", slog.Int64("expires_in", grant.ExpiresIn))
	return grant.AccessToken, nil
}

func (m *Manager) expiresAt(expiresIn int64) int64 {
	return m.now().Add(time.Duration(expiresIn) * time.Second).UnixMilli()
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, result)
	}
}

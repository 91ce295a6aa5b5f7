package server

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// Session cookie settings. Zoom opens the app inside its client and
// redirects across sites, so the cookie must be SameSite=None.
const (
	SessionName   = "zoomapp.session"
	SessionMaxAge = 15 * time.Minute
)

const (
	keyState     = "state"
	keyVerifier  = "verifier"
	keyUserID    = "userId"
	keyExpiresAt = "expiresAt"
)

// Sessions issues signed and encrypted session cookies.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions derives the cookie keys from secret.
func NewSessions(secret string) *Sessions {
	hashKey := sha256.Sum256([]byte("depobot/session/hash:" + secret))
	blockKey := sha256.Sum256([]byte("depobot/session/block:" + secret))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(SessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
	store.MaxAge(store.Options.MaxAge)
	return &Sessions{store: store}
}

// Session is the per-request view of the cookie.
type Session struct {
	s *sessions.Session
}

// Get loads the request's session. A missing, expired or tampered cookie
// yields an empty session.
func (ss *Sessions) Get(r *http.Request) *Session {
	s, err := ss.store.Get(r, SessionName)
	if err != nil {
		s, _ = ss.store.New(r, SessionName)
		s.IsNew = true
	}
	return &Session{s: s}
}

// Save writes the session cookie.
func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	return s.s.Save(r, w)
}

// SetInstall remembers the OAuth state and PKCE verifier.
func (s *Session) SetInstall(state, verifier string) {
	s.s.Values[keyState] = state
	s.s.Values[keyVerifier] = verifier
}

// Install returns the stored OAuth state and PKCE verifier.
func (s *Session) Install() (state, verifier string) {
	return s.str(keyState), s.str(keyVerifier)
}

// ClearInstall drops the single-use OAuth state.
func (s *Session) ClearInstall() {
	delete(s.s.Values, keyState)
	delete(s.s.Values, keyVerifier)
}

// SetUser records the authenticated Zoom user and token expiry.
func (s *Session) SetUser(userID string, expiresAt time.Time) {
	s.s.Values[keyUserID] = userID
	s.s.Values[keyExpiresAt] = expiresAt.UnixMilli()
}

// UserID returns the authenticated Zoom user, or "".
func (s *Session) UserID() string {
	return s.str(keyUserID)
}

// ExpiresAt returns the access token expiry recorded at login.
func (s *Session) ExpiresAt() time.Time {
	ms, ok := s.s.Values[keyExpiresAt].(int64)
	if !ok {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (s *Session) str(key string) string {
	v, _ := s.s.Values[key].(string)
	return v
}

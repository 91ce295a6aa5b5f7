package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/zoom"
)

const testRecallToken = "recall-secret"

type fakeZoom struct {
	mu sync.Mutex

	exchangeErr error
	deeplinkErr error
	createErr   error

	gotCode     string
	gotVerifier string
	gotOpts     zoom.MeetingOptions
	gotToken    string
}

func (f *fakeZoom) InstallURL() (*zoom.InstallRequest, error) {
	return &zoom.InstallRequest{
		URL:      "https://zoom.us/oauth/authorize?state=st-1",
		State:    "st-1",
		Verifier: "verifier-1",
	}, nil
}

func (f *fakeZoom) ExchangeCode(_ context.Context, code, verifier string) (*zoom.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotCode, f.gotVerifier = code, verifier
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &zoom.Grant{AccessToken: "at-1", RefreshToken: "rt-1", ExpiresIn: 3600, UserID: "user-1"}, nil
}

func (f *fakeZoom) GetDeeplink(_ context.Context, _ string) (string, error) {
	if f.deeplinkErr != nil {
		return "", f.deeplinkErr
	}
	return "zoommtg://zoom.us/app/deeplink", nil
}

func (f *fakeZoom) CreateMeeting(_ context.Context, opts zoom.MeetingOptions, token string) (*zoom.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotOpts, f.gotToken = opts, token
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &zoom.Meeting{
		ID:        "85746065432",
		StartTime: opts.StartTime,
		JoinURL:   "https://zoom.us/j/85746065432",
		StartURL:  "https://zoom.us/s/85746065432",
		Password:  "abc123",
	}, nil
}

type fakeTokens struct {
	mu    sync.Mutex
	saved map[string]*zoom.Grant
	token string
	err   error
}

func (f *fakeTokens) Save(_ context.Context, userID string, grant *zoom.Grant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]*zoom.Grant)
	}
	f.saved[userID] = grant
	return nil
}

func (f *fakeTokens) GetValidAccessToken(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token + ":" + userID, nil
}

type fakeRecall struct {
	calls       int
	gotCallback string
	err         error
}

func (f *fakeRecall) EnsureZoomCredential(_ context.Context, _, _, callbackURL string) (bool, error) {
	f.calls++
	f.gotCallback = callbackURL
	return f.err == nil, f.err
}

type testEnv struct {
	zoom    *fakeZoom
	tokens  *fakeTokens
	recall  *fakeRecall
	handler http.Handler
	sc      *ServerContext
}

func newTestEnv(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	env := &testEnv{
		zoom:   &fakeZoom{},
		tokens: &fakeTokens{token: "access"},
		recall: &fakeRecall{},
	}
	sc, err := NewServerContext(context.Background(), Deps{
		Zoom:             env.zoom,
		Tokens:           env.tokens,
		Sessions:         NewSessions("test-session-secret"),
		Recall:           env.recall,
		RecallOAuthAppID: "oauth-app",
		RecallAuthToken:  testRecallToken,
		CallbackBase:     "https://app.example.com",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	env.sc = sc
	env.handler = New(sc, webhook, limiter, nil).Handler()
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// login runs the install and auth redirects and returns the session cookies.
func (e *testEnv) login(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/install", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth?code=c-1&state=st-1", nil)
	addCookies(req, rec.Result().Cookies())
	rec = e.do(req)
	require.Equal(t, http.StatusFound, rec.Code)
	return rec.Result().Cookies()
}

func addCookies(r *http.Request, cookies []*http.Cookie) {
	for _, c := range cookies {
		r.AddCookie(c)
	}
}

func TestNewServerContext_RequiresDeps(t *testing.T) {
	_, err := NewServerContext(context.Background(), Deps{})
	assert.Error(t, err)
}

func TestInstall_RedirectsAndStoresState(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/install", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://zoom.us/oauth/authorize?state=st-1", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
}

func TestAuth_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/install", nil))
	req := httptest.NewRequest(http.MethodGet, "/auth?code=c-1&state=st-1", nil)
	addCookies(req, rec.Result().Cookies())
	rec = env.do(req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "zoommtg://zoom.us/app/deeplink", rec.Header().Get("Location"))
	assert.Equal(t, "c-1", env.zoom.gotCode)
	assert.Equal(t, "verifier-1", env.zoom.gotVerifier)
	require.Contains(t, env.tokens.saved, "user-1")
	assert.Equal(t, "rt-1", env.tokens.saved["user-1"].RefreshToken)

	assert.Equal(t, 1, env.recall.calls)
	callback, err := url.Parse(env.recall.gotCallback)
	require.NoError(t, err)
	assert.Equal(t, "/api/recall/callback", callback.Path)
	assert.Equal(t, testRecallToken, callback.Query().Get("auth_token"))
	assert.Equal(t, "user-1", callback.Query().Get("user_id"))
}

func TestAuth_RejectsBadState(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		withCookie bool
	}{
		{name: "state mismatch", query: "code=c-1&state=forged", withCookie: true},
		{name: "missing code", query: "state=st-1", withCookie: true},
		{name: "no session", query: "code=c-1&state=st-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			req := httptest.NewRequest(http.MethodGet, "/auth?"+tt.query, nil)
			if tt.withCookie {
				install := env.do(httptest.NewRequest(http.MethodGet, "/install", nil))
				addCookies(req, install.Result().Cookies())
			}

			rec := env.do(req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "Invalid OAuth state")
			assert.Empty(t, env.tokens.saved)
		})
	}
}

func TestAuth_ExchangeFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.zoom.exchangeErr = apperrors.Upstream("zoom", http.StatusBadRequest, "invalid_grant")

	install := env.do(httptest.NewRequest(http.MethodGet, "/install", nil))
	req := httptest.NewRequest(http.MethodGet, "/auth?code=c-1&state=st-1", nil)
	addCookies(req, install.Result().Cookies())
	rec := env.do(req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Empty(t, env.tokens.saved)
}

func TestAuth_RecallFailureDoesNotBlockInstall(t *testing.T) {
	env := newTestEnv(t, nil)
	env.recall.err = errors.New("recall down")

	env.login(t)

	assert.Equal(t, 1, env.recall.calls)
	assert.Contains(t, env.tokens.saved, "user-1")
}

func TestAuthStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("anonymous", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/auth/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"isAuthenticated":false,"userId":null,"expiresIn":0}`, rec.Body.String())
	})

	t.Run("logged in", func(t *testing.T) {
		cookies := env.login(t)
		req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
		addCookies(req, cookies)

		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got authStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.IsAuthenticated)
		require.NotNil(t, got.UserID)
		assert.Equal(t, "user-1", *got.UserID)
		assert.InDelta(t, 3600, got.ExpiresIn, 5)
	})
}

func TestRecallCallback(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		header     string
		tokenErr   error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "missing auth token",
			target:     "/api/recall/callback?user_id=user-1",
			wantStatus: http.StatusBadRequest,
			wantBody:   "auth_token is required",
		},
		{
			name:       "wrong auth token",
			target:     "/api/recall/callback?auth_token=nope&user_id=user-1",
			wantStatus: http.StatusUnauthorized,
			wantBody:   "Unauthorized: Invalid auth_token",
		},
		{
			name:       "header token accepted",
			target:     "/api/recall/callback?auth_token=stale&user_id=user-1",
			header:     testRecallToken,
			wantStatus: http.StatusOK,
			wantBody:   "access:user-1",
		},
		{
			name:       "missing user",
			target:     "/api/recall/callback?auth_token=" + testRecallToken,
			wantStatus: http.StatusUnauthorized,
			wantBody:   "User ID not provided or not found in session",
		},
		{
			name:       "no stored credential",
			target:     "/api/recall/callback?auth_token=" + testRecallToken + "&user_id=user-1",
			tokenErr:   apperrors.NoCredential("user-1"),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "reinstall",
		},
		{
			name:       "refresh rejected",
			target:     "/api/recall/callback?auth_token=" + testRecallToken + "&user_id=user-1",
			tokenErr:   apperrors.ReauthRequired("user-1", errors.New("invalid_grant")),
			wantStatus: http.StatusUnauthorized,
			wantBody:   "reinstall",
		},
		{
			name:       "upstream failure",
			target:     "/api/recall/callback?auth_token=" + testRecallToken + "&user_id=user-1",
			tokenErr:   apperrors.Upstream("zoom", http.StatusServiceUnavailable, "down"),
			wantStatus: http.StatusBadGateway,
			wantBody:   "Failed to get access token",
		},
		{
			name:       "success",
			target:     "/api/recall/callback?auth_token=" + testRecallToken + "&user_id=user-1",
			wantStatus: http.StatusOK,
			wantBody:   "access:user-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.tokens.err = tt.tokenErr
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(HeaderAuthToken, tt.header)
			}

			rec := env.do(req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestRecallCallback_UserFromSession(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/recall/callback?auth_token="+testRecallToken, nil)
	addCookies(req, cookies)
	rec := env.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access:user-1", rec.Body.String())
}

func TestScheduleDeposition_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{name: "malformed body", body: `{`, wantBody: "Invalid request body"},
		{name: "missing date", body: `{"caseNumber":"42"}`, wantBody: "Date/time and case number are required"},
		{name: "missing case", body: `{"dateTime":"2024-03-05T14:00"}`, wantBody: "Date/time and case number are required"},
		{name: "bad date", body: `{"dateTime":"tomorrow","caseNumber":"42"}`, wantBody: "Invalid dateTime"},
		{name: "bad duration", body: `{"dateTime":"2024-03-05T14:00","caseNumber":"42","duration":"-5"}`, wantBody: "Invalid duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(httptest.NewRequest(http.MethodPost, "/api/scheduleDeposition", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestScheduleDeposition_RequiresLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	body := `{"dateTime":"2024-03-05T14:00:00Z","caseNumber":42}`

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/scheduleDeposition", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not authenticated with Zoom")
}

func TestScheduleDeposition_ReauthRequired(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)
	env.tokens.err = apperrors.ReauthRequired("user-1", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/scheduleDeposition",
		strings.NewReader(`{"dateTime":"2024-03-05T14:00:00Z","caseNumber":"42"}`))
	addCookies(req, cookies)
	rec := env.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScheduleDeposition_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scheduleDeposition",
		strings.NewReader(`{"dateTime":"2024-03-05T14:00:00Z","caseNumber":42,"duration":90}`))
	addCookies(req, cookies)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"success": true,
		"meetingId": 85746065432,
		"joinUrl": "https://zoom.us/j/85746065432",
		"startUrl": "https://zoom.us/s/85746065432",
		"scheduledTime": "2024-03-05T14:00:00.000Z",
		"password": "abc123"
	}`, rec.Body.String())

	assert.Equal(t, "Deposition - Case 42", env.zoom.gotOpts.Topic)
	assert.Equal(t, 90, env.zoom.gotOpts.Duration)
	assert.Equal(t, "cloud", env.zoom.gotOpts.Settings["auto_recording"])
	assert.Equal(t, true, env.zoom.gotOpts.Settings["waiting_room"])
	assert.Equal(t, "access:user-1", env.zoom.gotToken)
}

func TestScheduleDeposition_DefaultDuration(t *testing.T) {
	env := newTestEnv(t, nil)
	cookies := env.login(t)

	req := httptest.NewRequest(http.MethodPost, "/api/scheduleDeposition",
		strings.NewReader(`{"dateTime":"2024-03-05T14:00:00Z","caseNumber":"42"}`))
	addCookies(req, cookies)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultDepositionDuration, env.zoom.gotOpts.Duration)
}

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want time.Time
	}{
		{in: "2024-03-05T14:00:00Z", ok: true, want: time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)},
		{in: "2024-03-05T14:00:00.250+02:00", ok: true, want: time.Date(2024, 3, 5, 12, 0, 0, 250e6, time.UTC)},
		{in: "2024-03-05T14:00:30", ok: true, want: time.Date(2024, 3, 5, 14, 0, 30, 0, time.Local)},
		{in: "2024-03-05T14:00", ok: true, want: time.Date(2024, 3, 5, 14, 0, 0, 0, time.Local)},
		{in: "03/05/2024"},
		{in: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseDateTime(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got), "got %s", got)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, NewRateLimiter(1, 2, false))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{}")))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Probes are never limited.
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1, false)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("203.0.113.7"))
	now = now.Add(rateLimitIdle + time.Second)
	rl.cleanup()

	rl.mu.Lock()
	assert.Empty(t, rl.visitors)
	rl.mu.Unlock()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		headers    map[string]string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "203.0.113.7:4321", want: "203.0.113.7"},
		{
			name:    "untrusted forwarded header",
			remote:  "203.0.113.7:4321",
			headers: map[string]string{"X-Forwarded-For": "198.51.100.1"},
			want:    "203.0.113.7",
		},
		{
			name:       "trusted forwarded header",
			remote:     "10.0.0.1:4321",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"},
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:       "trusted real ip",
			remote:     "10.0.0.1:4321",
			headers:    map[string]string{"X-Real-IP": "198.51.100.2"},
			trustProxy: true,
			want:       "198.51.100.2",
		},
		{name: "no port", remote: "203.0.113.9", want: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trustProxy))
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := env.do(req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

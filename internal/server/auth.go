package server

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/recall"
)

// handleInstall starts the Zoom authorization code flow.
func (sc *ServerContext) handleInstall(w http.ResponseWriter, r *http.Request) {
	req, err := sc.deps.Zoom.InstallURL()
	if err != nil {
		sc.logger.Error("failed to build install url", logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sess := sc.deps.Sessions.Get(r)
	sess.SetInstall(req.State, req.Verifier)
	if err := sess.Save(r, w); err != nil {
		sc.logger.Error("failed to save session", logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, req.URL, http.StatusFound)
}

// handleAuth is the OAuth redirect target. It stores the user's grant and
// sends the browser back into the Zoom client.
func (sc *ServerContext) handleAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metrics := sc.deps.Metrics

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	sess := sc.deps.Sessions.Get(r)
	wantState, verifier := sess.Install()

	if code == "" || wantState == "" || subtle.ConstantTimeCompare([]byte(state), []byte(wantState)) != 1 {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		sc.logger.Warn("oauth callback rejected", slog.Bool("has_code", code != ""), slog.Bool("has_session_state", wantState != ""))
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	grant, err := sc.deps.Zoom.ExchangeCode(ctx, code, verifier)
	if err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		sc.logger.Error("code exchange failed", logging.Err(err))
		http.Error(w, "Authorization failed", apperrors.HTTPStatus(err))
		return
	}

	logger := sc.logger.With(logging.UserHash(grant.UserID))
	if err := sc.deps.Tokens.Save(ctx, grant.UserID, grant); err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Error("failed to store credentials", logging.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	sess.ClearInstall()
	sess.SetUser(grant.UserID, sc.now().Add(time.Duration(grant.ExpiresIn)*time.Second))
	if err := sess.Save(r, w); err != nil {
		logger.Error("failed to save session", logging.Err(err))
	}

	sc.ensureRecallCredential(r, grant.UserID)

	deeplink, err := sc.deps.Zoom.GetDeeplink(ctx, grant.AccessToken)
	if err != nil {
		metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Error("failed to fetch deeplink", logging.Err(err))
		http.Error(w, "Failed to open Zoom", apperrors.HTTPStatus(err))
		return
	}

	metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	logger.Info("zoom app installed")
	http.Redirect(w, r, deeplink, http.StatusFound)
}

// ensureRecallCredential lets bots join as the user. Failures are logged
// and do not block the install.
func (sc *ServerContext) ensureRecallCredential(r *http.Request, userID string) {
	if sc.deps.Recall == nil || sc.deps.RecallOAuthAppID == "" {
		return
	}

	callback := recall.CallbackURL(sc.deps.CallbackBase, userID, sc.deps.RecallAuthToken)
	created, err := sc.deps.Recall.EnsureZoomCredential(r.Context(), sc.deps.RecallOAuthAppID, userID, callback)
	if err != nil {
		sc.logger.Warn("failed to register recall credential", logging.UserHash(userID), logging.Err(err))
		return
	}
	if created {
		sc.logger.Info("recall credential registered", logging.UserHash(userID))
	}
}

type authStatus struct {
	IsAuthenticated bool    `json:"isAuthenticated"`
	UserID          *string `json:"userId"`
	ExpiresIn       float64 `json:"expiresIn"`
}

// handleAuthStatus reports the session's login state.
func (sc *ServerContext) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	sess := sc.deps.Sessions.Get(r)
	now := sc.now()

	status := authStatus{}
	if userID := sess.UserID(); userID != "" {
		status.UserID = &userID
	}
	if expiresAt := sess.ExpiresAt(); !expiresAt.IsZero() {
		status.ExpiresIn = math.Max(0, expiresAt.Sub(now).Seconds())
		status.IsAuthenticated = status.UserID != nil && now.Before(expiresAt)
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

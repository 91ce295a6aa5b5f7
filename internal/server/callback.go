package server

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/logging"
)

// HeaderAuthToken may carry the callback secret instead of the query.
const HeaderAuthToken = "X-Auth-Token"

// handleRecallCallback returns a valid Zoom access token for a user so a
// bot can join as them. The bot service calls it with the shared secret.
func (sc *ServerContext) handleRecallCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("auth_token") == "" {
		writeText(w, http.StatusBadRequest, "auth_token is required")
		return
	}
	if !sc.validRecallToken(q.Get("auth_token")) && !sc.validRecallToken(r.Header.Get(HeaderAuthToken)) {
		sc.logger.Warn("recall callback with invalid auth token")
		writeText(w, http.StatusUnauthorized, "Unauthorized: Invalid auth_token")
		return
	}

	userID := q.Get("user_id")
	if userID == "" {
		userID = sc.deps.Sessions.Get(r).UserID()
	}
	if userID == "" {
		writeText(w, http.StatusUnauthorized, "User ID not provided or not found in session")
		return
	}

	token, err := sc.deps.Tokens.GetValidAccessToken(r.Context(), userID)
	if err != nil {
		logger := sc.logger.With(logging.UserHash(userID))
		if apperrors.IsUnauthorized(err) {
			logger.Warn("no usable zoom credentials", logging.Err(err))
			writeText(w, http.StatusUnauthorized, "Zoom authorization required: reinstall the app to continue")
			return
		}
		logger.Error("failed to get access token", logging.Err(err))
		writeText(w, apperrors.HTTPStatus(err), "Failed to get access token")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	writeText(w, http.StatusOK, token)
}

func (sc *ServerContext) validRecallToken(got string) bool {
	want := sc.deps.RecallAuthToken
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

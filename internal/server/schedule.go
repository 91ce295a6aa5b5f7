package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/logging"
	"github.com/teemow/depobot/internal/zoom"
)

// DefaultDepositionDuration is used when the request gives none.
const DefaultDepositionDuration = 60

const maxScheduleBody = 64 << 10

// looseString accepts a JSON string or number.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = looseString(n.String())
	return nil
}

type scheduleRequest struct {
	DateTime   string      `json:"dateTime"`
	CaseNumber looseString `json:"caseNumber"`
	Duration   looseString `json:"duration"`
}

type scheduleResponse struct {
	Success       bool           `json:"success"`
	MeetingID     zoom.MeetingID `json:"meetingId"`
	JoinURL       string         `json:"joinUrl"`
	StartURL      string         `json:"startUrl"`
	ScheduledTime string         `json:"scheduledTime"`
	Password      string         `json:"password,omitempty"`
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseDateTime(v string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// handleScheduleDeposition creates a Zoom meeting for a deposition on
// behalf of the logged-in user.
func (sc *ServerContext) handleScheduleDeposition(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxScheduleBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	caseNumber := strings.TrimSpace(string(req.CaseNumber))
	if strings.TrimSpace(req.DateTime) == "" || caseNumber == "" {
		writeJSONError(w, http.StatusBadRequest, "Date/time and case number are required")
		return
	}
	start, ok := parseDateTime(strings.TrimSpace(req.DateTime))
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid dateTime")
		return
	}
	duration := DefaultDepositionDuration
	if d := strings.TrimSpace(string(req.Duration)); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid duration")
			return
		}
		duration = n
	}

	userID := sc.deps.Sessions.Get(r).UserID()
	if userID == "" {
		writeJSONError(w, http.StatusUnauthorized, "Not authenticated with Zoom")
		return
	}
	logger := sc.logger.With(logging.UserHash(userID))

	ctx := r.Context()
	token, err := sc.deps.Tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		if apperrors.IsUnauthorized(err) {
			writeJSONError(w, http.StatusUnauthorized, "Zoom authorization expired, please reinstall the app")
			return
		}
		logger.Error("failed to get access token", logging.Err(err))
		writeJSONError(w, apperrors.HTTPStatus(err), "Failed to schedule deposition")
		return
	}

	meeting, err := sc.deps.Zoom.CreateMeeting(ctx, zoom.MeetingOptions{
		Topic:     "Deposition - Case " + caseNumber,
		StartTime: start.UTC().Format("2006-01-02T15:04:05.000Z"),
		Duration:  duration,
		Settings: map[string]any{
			"waiting_room":   true,
			"auto_recording": "cloud",
		},
	}, token)
	if err != nil {
		logger.Error("deposition scheduling failed", logging.Err(err))
		writeJSONError(w, apperrors.HTTPStatus(err), "Failed to schedule deposition")
		return
	}

	logger.Info("deposition scheduled", logging.MeetingID(meeting.ID.String()))
	writeJSON(w, http.StatusOK, scheduleResponse{
		Success:       true,
		MeetingID:     meeting.ID,
		JoinURL:       meeting.JoinURL,
		StartURL:      meeting.StartURL,
		ScheduledTime: meeting.StartTime,
		Password:      meeting.Password,
	})
}

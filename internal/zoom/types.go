package zoom

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Grant is the result of a code exchange or a refresh.
type Grant struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64
	// UserID is only set by ExchangeCode.
	UserID string
}

// InstallRequest carries everything needed to start and later verify an
// authorization code flow.
type InstallRequest struct {
	URL      string
	State    string
	Verifier string
}

// User is the subset of the Zoom user object the service reads.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	AccountID string `json:"account_id"`
}

// MeetingOptions describes a scheduled meeting to create.
type MeetingOptions struct {
	Topic     string
	StartTime string
	// Duration in minutes. Zero means DefaultMeetingDuration.
	Duration int
	Password string
	Agenda   string
	// Settings overlay the baseline returned by DefaultMeetingSettings.
	Settings map[string]any
}

// Meeting is the subset of the Zoom meeting object returned on create.
type Meeting struct {
	ID        MeetingID `json:"id"`
	UUID      string    `json:"uuid"`
	Topic     string    `json:"topic"`
	StartTime string    `json:"start_time"`
	Duration  int       `json:"duration"`
	Timezone  string    `json:"timezone"`
	JoinURL   string    `json:"join_url"`
	StartURL  string    `json:"start_url"`
	Password  string    `json:"password"`
}

// MeetingID is a Zoom meeting number. Zoom sends it as a JSON number in
// most payloads and as a string in a few; both decode to the same value.
type MeetingID string

// UnmarshalJSON accepts a JSON number or string.
func (id *MeetingID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MeetingID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("meeting id must be a number or string: %w", err)
	}
	*id = MeetingID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers.
func (id MeetingID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// String returns the id as text.
func (id MeetingID) String() string {
	return string(id)
}

// Webhook event types handled by the service.
const (
	EventURLValidation  = "endpoint.url_validation"
	EventMeetingCreated = "meeting.created"
	EventMeetingStarted = "meeting.started"
	EventMeetingEnded   = "meeting.ended"
)

// Event is an inbound Zoom webhook notification.
type Event struct {
	Event   string  `json:"event"`
	EventTS int64   `json:"event_ts"`
	Payload Payload `json:"payload"`
}

// Payload is the event body. PlainToken is only set for URL validation.
type Payload struct {
	AccountID  string       `json:"account_id"`
	PlainToken string       `json:"plainToken"`
	Object     EventMeeting `json:"object"`
}

// EventMeeting is the meeting object carried by meeting.* events.
type EventMeeting struct {
	ID        MeetingID `json:"id"`
	UUID      string    `json:"uuid"`
	HostID    string    `json:"host_id"`
	Topic     string    `json:"topic"`
	JoinURL   string    `json:"join_url"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Duration  int       `json:"duration"`
	Timezone  string    `json:"timezone"`
}

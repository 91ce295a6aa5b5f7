package transcript

import (
	"encoding/json"
	"fmt"
)

// Participant identifies a speaker in the transcript.
type Participant struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

// Timestamp is a point in the recording. Relative is seconds since the
// recording started.
type Timestamp struct {
	Relative float64 `json:"relative"`
	Absolute string  `json:"absolute,omitempty"`
}

// Word is one recognized caption fragment.
type Word struct {
	Text           string     `json:"text"`
	StartTimestamp Timestamp  `json:"start_timestamp"`
	EndTimestamp   *Timestamp `json:"end_timestamp,omitempty"`
}

// ParticipantWords groups the words spoken by one participant.
type ParticipantWords struct {
	Participant Participant `json:"participant"`
	Words       []Word      `json:"words"`
}

// Raw is a downloaded transcript. It keeps the bytes as received so the
// stored copy matches what the bot service returned.
type Raw struct {
	Participants []ParticipantWords
	data         json.RawMessage
}

// Parse decodes a transcript document.
func Parse(data []byte) (*Raw, error) {
	var participants []ParticipantWords
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}
	return &Raw{Participants: participants, data: append(json.RawMessage(nil), data...)}, nil
}

// Bytes returns the document as received, or a fresh encoding when the
// Raw was built in memory.
func (r *Raw) Bytes() ([]byte, error) {
	if len(r.data) > 0 {
		return r.data, nil
	}
	return json.Marshal(r.Participants)
}

// Utterance is one transcript line before numbering.
type Utterance struct {
	Speaker string
	Text    string
	Seconds int
	IsHost  bool
}

// Page is a numbered page of rendered lines.
type Page struct {
	Number int
	Lines  []string
}

package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teemow/depobot/internal/apperrors"
)

// RootDir is the directory under the data dir that holds every meeting's
// transcripts. Publishers derive remote keys from it.
const RootDir = "meeting_transcripts"

// Store writes transcripts under <dataDir>/meeting_transcripts/<meetingID>/.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dataDir.
func NewStore(dataDir string) *Store {
	return &Store{root: filepath.Join(dataDir, RootDir)}
}

// Root returns the meeting_transcripts directory.
func (s *Store) Root() string {
	return s.root
}

// DateStamp renders joinedAt as a file name safe UTC timestamp, e.g.
// 2024-03-05_14-00-00-000Z.
func DateStamp(joinedAt time.Time) string {
	stamp := joinedAt.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return strings.Replace(stamp, "T", "_", 1)
}

// PersistRaw writes the transcript as indented JSON and returns its path.
func (s *Store) PersistRaw(meetingID string, joinedAt time.Time, raw *Raw) (string, error) {
	data, err := raw.Bytes()
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		return "", fmt.Errorf("failed to indent transcript: %w", err)
	}
	return s.write(meetingID, DateStamp(joinedAt)+".json", pretty.Bytes())
}

// PersistFormatted writes the rendered transcript and returns its path.
func (s *Store) PersistFormatted(meetingID string, joinedAt time.Time, text string) (string, error) {
	return s.write(meetingID, DateStamp(joinedAt)+"_formatted.txt", []byte(text))
}

func (s *Store) write(meetingID, name string, data []byte) (string, error) {
	if err := validateMeetingID(meetingID); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, meetingID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func validateMeetingID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return apperrors.InvalidArgument("invalid meeting id %q", id)
	case strings.ContainsAny(id, `/\`), strings.ContainsRune(id, 0):
		return apperrors.InvalidArgument("meeting id %q contains a path separator", id)
	}
	return nil
}

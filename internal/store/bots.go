package store

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/depobot/internal/apperrors"
)

// BotsFile is the file backend's document name under the data dir.
const BotsFile = "meeting_bots.json"

// BotKeyPrefix prefixes the numbered entry keys of a meeting ("botId_1", ...).
const BotKeyPrefix = "botId_"

// BotRegistry records which recording bots were created for a meeting.
// Entries are append-only; the latest bot is the one with the highest
// numeric suffix.
type BotRegistry interface {
	RecordBot(ctx context.Context, meetingID, botID string) (string, error)
	LatestBot(ctx context.Context, meetingID string) (string, bool, error)
}

// BotKey returns the entry key for the n-th bot of a meeting.
func BotKey(n int) string {
	return BotKeyPrefix + strconv.Itoa(n)
}

// nextBotKey picks len(entries)+1, skipping any key already taken.
func nextBotKey(entries map[string]string) string {
	n := len(entries) + 1
	for {
		key := BotKey(n)
		if _, taken := entries[key]; !taken {
			return key
		}
		n++
	}
}

// latestBot returns the bot id with the highest numeric suffix. Keys whose
// suffix does not parse are ignored.
func latestBot(entries map[string]string) (string, bool) {
	best := -1
	var botID string
	for key, id := range entries {
		suffix, ok := strings.CutPrefix(key, BotKeyPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		if n > best {
			best = n
			botID = id
		}
	}
	return botID, best >= 0
}

func validateBotArgs(meetingID, botID string) error {
	if meetingID == "" {
		return apperrors.InvalidArgument("meeting id is required")
	}
	if botID == "" {
		return apperrors.InvalidArgument("bot id is required")
	}
	return nil
}

// FileBotRegistry keeps the meeting-to-bots mapping in a JSON document.
type FileBotRegistry struct {
	file *jsonFile[map[string]string]
}

// NewFileBotRegistry opens <dir>/meeting_bots.json.
func NewFileBotRegistry(dir string) (*FileBotRegistry, error) {
	f, err := newJSONFile[map[string]string](filepath.Join(dir, BotsFile))
	if err != nil {
		return nil, err
	}
	return &FileBotRegistry{file: f}, nil
}

// RecordBot appends botID to the meeting's entries and returns its key.
func (r *FileBotRegistry) RecordBot(_ context.Context, meetingID, botID string) (string, error) {
	if err := validateBotArgs(meetingID, botID); err != nil {
		return "", err
	}

	var key string
	err := r.file.update(func(data map[string]map[string]string) error {
		entries := data[meetingID]
		if entries == nil {
			entries = make(map[string]string)
			data[meetingID] = entries
		}
		key = nextBotKey(entries)
		entries[key] = botID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to record bot for meeting %s: %w", meetingID, err)
	}
	return key, nil
}

// LatestBot returns the most recently recorded bot of the meeting.
func (r *FileBotRegistry) LatestBot(_ context.Context, meetingID string) (string, bool, error) {
	if meetingID == "" {
		return "", false, apperrors.InvalidArgument("meeting id is required")
	}
	data, err := r.file.read()
	if err != nil {
		return "", false, err
	}
	botID, ok := latestBot(data[meetingID])
	return botID, ok, nil
}

// appendBotScript allocates the next numbered field and sets it in one
// server-side step.
var appendBotScript = redis.NewScript(`
local n = redis.call('HLEN', KEYS[1]) + 1
local field = ARGV[1] .. n
while redis.call('HEXISTS', KEYS[1], field) == 1 do
  n = n + 1
  field = ARGV[1] .. n
end
redis.call('HSET', KEYS[1], field, ARGV[2])
return field
`)

// RedisBotRegistry keeps one hash per meeting.
type RedisBotRegistry struct {
	client redis.UniversalClient
}

// NewRedisBotRegistry returns a registry backed by client.
func NewRedisBotRegistry(client redis.UniversalClient) *RedisBotRegistry {
	return &RedisBotRegistry{client: client}
}

func botsKey(meetingID string) string {
	return keyPrefix + "bots:" + meetingID
}

// RecordBot appends botID to the meeting's entries and returns its key.
func (r *RedisBotRegistry) RecordBot(ctx context.Context, meetingID, botID string) (string, error) {
	if err := validateBotArgs(meetingID, botID); err != nil {
		return "", err
	}
	key, err := appendBotScript.Run(ctx, r.client, []string{botsKey(meetingID)}, BotKeyPrefix, botID).Text()
	if err != nil {
		return "", fmt.Errorf("failed to record bot for meeting %s: %w", meetingID, err)
	}
	return key, nil
}

// LatestBot returns the most recently recorded bot of the meeting.
func (r *RedisBotRegistry) LatestBot(ctx context.Context, meetingID string) (string, bool, error) {
	if meetingID == "" {
		return "", false, apperrors.InvalidArgument("meeting id is required")
	}
	entries, err := r.client.HGetAll(ctx, botsKey(meetingID)).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to read bots for meeting %s: %w", meetingID, err)
	}
	botID, ok := latestBot(entries)
	return botID, ok, nil
}

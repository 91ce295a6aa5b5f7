package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
)

const serviceName = instrumentation.ServiceRecall

// DefaultAPIBase is the regional API root; v1 and v2 paths hang off it.
const DefaultAPIBase = "https://us-east-1.recall.ai/api"

// maxBotName is the longest bot name Recall accepts.
const maxBotName = 100

const maxErrorBody = 64 << 10

// Client calls the Recall API with a workspace API key.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	logger *slog.Logger
}

// NewClient returns a client for base (DefaultAPIBase when empty).
func NewClient(base, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if base == "" {
		base = DefaultAPIBase
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   httpClient,
		logger: logging.WithService(logging.OrDefault(logger), serviceName),
	}
}

// BotName derives the bot display name from a meeting topic.
func BotName(topic string) string {
	if topic == "" {
		topic = "Zoom Meeting"
	}
	name := []rune(topic + " bot")
	if len(name) > maxBotName {
		name = name[:maxBotName]
	}
	return string(name)
}

// CreateBot asks Recall to send a bot that records meeting captions.
func (c *Client) CreateBot(ctx context.Context, joinURL, botName string) (*Bot, error) {
	if joinURL == "" {
		return nil, apperrors.InvalidArgument("meeting join url is required")
	}

	body := createBotRequest{
		MeetingURL: joinURL,
		BotName:    botName,
		RecordingConfig: recordingConfig{
			Transcript: transcriptConfig{
				Provider: map[string]struct{}{"meeting_captions": {}},
			},
		},
	}

	var bot Bot
	if err := c.do(ctx, http.MethodPost, "/v1/bot/", body, &bot); err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	c.logger.Info("bot created", logging.BotID(bot.ID))
	return &bot, nil
}

// RetrieveBot reads a bot with its recordings.
func (c *Client) RetrieveBot(ctx context.Context, botID string) (*Bot, error) {
	if botID == "" {
		return nil, apperrors.InvalidArgument("bot id is required")
	}

	var bot Bot
	if err := c.do(ctx, http.MethodGet, "/v1/bot/"+url.PathEscape(botID)+"/", nil, &bot); err != nil {
		return nil, fmt.Errorf("failed to retrieve bot %s: %w", botID, err)
	}
	return &bot, nil
}

// CallbackURL builds the token callback URL Recall calls to fetch a fresh
// Zoom access token for userID.
func CallbackURL(base, userID, authToken string) string {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("auth_token", authToken)
	return strings.TrimRight(base, "/") + "/api/recall/callback?" + q.Encode()
}

// EnsureZoomCredential registers callbackURL as the token source for the
// Zoom user unless a healthy credential with the same callback exists.
// It reports whether a new credential was created.
func (c *Client) EnsureZoomCredential(ctx context.Context, oauthAppID, zoomUserID, callbackURL string) (bool, error) {
	if oauthAppID == "" || zoomUserID == "" || callbackURL == "" {
		return false, apperrors.InvalidArgument("oauth app, user id and callback url are required")
	}

	q := url.Values{}
	q.Set("oauth_app", oauthAppID)
	q.Set("user_id", zoomUserID)

	var existing credentialList
	if err := c.do(ctx, http.MethodGet, "/v2/zoom-oauth-credentials/?"+q.Encode(), nil, &existing); err != nil {
		return false, fmt.Errorf("failed to list zoom credentials: %w", err)
	}
	for _, cred := range existing.Results {
		if cred.Status == CredentialHealthy && cred.AccessTokenCallbackURL == callbackURL {
			return false, nil
		}
	}

	body := map[string]string{
		"oauth_app":                 oauthAppID,
		"access_token_callback_url": callbackURL,
	}
	var created ZoomCredential
	if err := c.do(ctx, http.MethodPost, "/v2/zoom-oauth-credentials/", body, &created); err != nil {
		return false, fmt.Errorf("failed to create zoom credential: %w", err)
	}
	c.logger.Info("zoom credential registered", slog.String("credential_id", created.ID), logging.UserHash(zoomUserID))
	return true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transport(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperrors.Upstream(serviceName, resp.StatusCode, errorDetail(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Upstream(serviceName, resp.StatusCode, "malformed response: "+err.Error())
	}
	return nil
}

func errorDetail(raw []byte) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

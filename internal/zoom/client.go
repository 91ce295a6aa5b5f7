package zoom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
)

const serviceName = instrumentation.ServiceZoom

// Meeting defaults applied by CreateMeeting.
const (
	DefaultMeetingTopic    = "Deposition Meeting"
	DefaultMeetingDuration = 60
	meetingTypeScheduled   = 2
)

// deeplinkAction opens the app's home page for the meeting owner.
const deeplinkAction = `{"url":"/","role_name":"Owner","verified":1,"role_id":0}`

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Config holds the Zoom App OAuth settings.
type Config struct {
	// Host is the Zoom web host, e.g. https://zoom.us.
	Host         string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// APIBase overrides the REST base derived from Host.
	APIBase string
}

// Client talks to the Zoom OAuth endpoints and REST API.
type Client struct {
	oauth   *oauth2.Config
	apiBase string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client. httpClient carries timeouts and tracing and
// is used for both OAuth and REST calls.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	host := strings.TrimRight(cfg.Host, "/")
	apiBase := strings.TrimRight(cfg.APIBase, "/")
	if apiBase == "" {
		var err error
		if apiBase, err = APIBaseFromHost(host); err != nil {
			return nil, err
		}
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   host + "/oauth/authorize",
				TokenURL:  host + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiBase: apiBase,
		http:    httpClient,
		logger:  logging.WithService(logging.OrDefault(logger), serviceName),
	}, nil
}

// APIBaseFromHost maps https://zoom.us to https://api.zoom.us/v2.
func APIBaseFromHost(host string) (string, error) {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid zoom host %q", host)
	}
	return u.Scheme + "://api." + u.Host + "/v2", nil
}

// InstallURL starts an authorization code flow with PKCE. The caller keeps
// State and Verifier (in the session) for the redirect back.
func (c *Client) InstallURL() (*InstallRequest, error) {
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	return &InstallRequest{
		URL:      c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:    state,
		Verifier: verifier,
	}, nil
}

// ExchangeCode trades an authorization code for tokens and resolves the
// user they belong to.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*Grant, error) {
	if code == "" {
		return nil, apperrors.InvalidArgument("authorization code is required")
	}
	if verifier == "" {
		return nil, apperrors.InvalidArgument("code verifier is required")
	}

	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", c.mapOAuthError(err))
	}

	user, err := c.GetUser(ctx, tok.AccessToken, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve authorized user: %w", err)
	}

	c.logger.Info("authorization code exchanged", logging.UserHash(user.ID))
	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    tok.ExpiresIn,
		UserID:       user.ID,
	}, nil
}

// Refresh exchanges a refresh token for a new access token. RefreshToken
// in the result is empty when Zoom did not rotate it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidArgument("refresh token is required")
	}

	// An expired token forces the source to hit the token endpoint.
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", c.mapOAuthError(err))
	}

	grant := &Grant{AccessToken: tok.AccessToken, ExpiresIn: tok.ExpiresIn}
	// The token source copies the old refresh token forward when the
	// response has none; report only a rotated one.
	if tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	return grant, nil
}

// GetUser returns the user identified by userID, or the token owner when
// userID is empty.
func (c *Client) GetUser(ctx context.Context, accessToken, userID string) (*User, error) {
	if accessToken == "" {
		return nil, &apperrors.Unauthorized{Reason: apperrors.ReasonInvalidToken, Message: "access token is required"}
	}
	if userID == "" {
		userID = "me"
	}

	var user User
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), accessToken, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DefaultMeetingSettings is the baseline applied to every created meeting.
func DefaultMeetingSettings() map[string]any {
	return map[string]any{
		"host_video":        true,
		"participant_video": true,
		"join_before_host":  false,
		"mute_upon_entry":   false,
		"waiting_room":      true,
		"auto_recording":    "cloud",
		"alternative_hosts": "",
	}
}

// CreateMeeting schedules a meeting on behalf of the token owner.
func (c *Client) CreateMeeting(ctx context.Context, opts MeetingOptions, accessToken string) (*Meeting, error) {
	if accessToken == "" {
		return nil, &apperrors.Unauthorized{Reason: apperrors.ReasonInvalidToken, Message: "access token is required"}
	}

	user, err := c.GetUser(ctx, accessToken, "")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve meeting host: %w", err)
	}

	topic := opts.Topic
	if topic == "" {
		topic = DefaultMeetingTopic
	}
	duration := opts.Duration
	if duration <= 0 {
		duration = DefaultMeetingDuration
	}
	settings := DefaultMeetingSettings()
	maps.Copy(settings, opts.Settings)

	body := map[string]any{
		"topic":      topic,
		"type":       meetingTypeScheduled,
		"start_time": opts.StartTime,
		"duration":   duration,
		"timezone":   "UTC",
		"password":   opts.Password,
		"agenda":     opts.Agenda,
		"settings":   settings,
	}
	headers := http.Header{"Zoom-SDK-Origin": []string{"developer"}}

	var meeting Meeting
	if err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(user.ID)+"/meetings", accessToken, headers, body, &meeting); err != nil {
		return nil, err
	}

	c.logger.Info("meeting created", logging.MeetingID(meeting.ID.String()), logging.UserHash(user.ID))
	return &meeting, nil
}

// GetDeeplink returns the URL that opens the app inside the Zoom client.
func (c *Client) GetDeeplink(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", &apperrors.Unauthorized{Reason: apperrors.ReasonInvalidToken, Message: "access token is required"}
	}

	var resp struct {
		Deeplink string `json:"deeplink"`
	}
	if err := c.do(ctx, http.MethodPost, "/zoomapp/deeplink", accessToken, nil, map[string]string{"action": deeplinkAction}, &resp); err != nil {
		return "", err
	}
	if resp.Deeplink == "" {
		return "", apperrors.Upstream(serviceName, http.StatusOK, "deeplink missing from response")
	}
	return resp.Deeplink, nil
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// do sends a JSON request to the REST API and decodes a JSON answer into
// out when it is non-nil.
func (c *Client) do(ctx context.Context, method, path, accessToken string, headers http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
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

// mapOAuthError converts token endpoint failures into UpstreamError.
func (c *Client) mapOAuthError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		detail := re.ErrorDescription
		if detail == "" {
			detail = re.ErrorCode
		}
		if detail == "" {
			detail = errorDetail(re.Body)
		}
		return &apperrors.UpstreamError{Service: serviceName, Status: status, Detail: detail, Err: err}
	}
	return apperrors.Transport(serviceName, err)
}

// errorDetail extracts a human-readable reason from a Zoom error body.
func errorDetail(raw []byte) string {
	var body struct {
		Message          string `json:"message"`
		Reason           string `json:"reason"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.Message, body.Reason, body.ErrorDescription, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

package deposition

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
	"github.com/teemow/depobot/internal/logging"
)

const serviceName = instrumentation.ServiceDeposition

// Retry defaults: three attempts five seconds apart.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

const maxResponseSize = 1 << 20

// Submission describes one deposition to create.
type Submission struct {
	CaseID       string
	UserID       string
	RemoteKey    string
	DeponentName string
	// Date is an ISO-8601 date or timestamp; only the day is sent.
	Date string
}

type depo struct {
	Date               string   `json:"date"`
	DeponentName       string   `json:"deponentName"`
	TranscriptFile     string   `json:"transcriptFile"`
	TranscriptFileName string   `json:"transcriptFileName"`
	VideoFileNames     []string `json:"videoFileNames"`
	VideoFiles         []string `json:"videoFiles"`
}

type bulkRequest struct {
	UserID string `json:"userId"`
	Depos  []depo `json:"depos"`
}

// Recorder receives per-attempt and per-submission outcomes.
type Recorder interface {
	RecordDepositionAttempt(ctx context.Context, statusCode int)
	RecordDepositionSubmitted(ctx context.Context, result string)
}

// Client submits depositions.
type Client struct {
	baseURL     string
	codes       CodeSource
	http        *http.Client
	logger      *slog.Logger
	metrics     Recorder
	maxAttempts uint
	retryDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithRetry overrides the attempt limit and the delay between attempts.
func WithRetry(maxAttempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.retryDelay = delay
	}
}

// WithMetrics records attempts and outcomes.
func WithMetrics(r Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient returns a client for the API at baseURL.
func NewClient(baseURL string, codes CodeSource, httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		codes:       codes,
		http:        httpClient,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(logging.OrDefault(c.logger), serviceName)
	return c
}

// Submit creates the deposition and returns the API response body.
func (c *Client) Submit(ctx context.Context, s Submission) (json.RawMessage, error) {
	if s.CaseID == "" || s.UserID == "" || s.RemoteKey == "" {
		return nil, apperrors.InvalidArgument("case id, user id and transcript key are required")
	}

	payload, err := json.Marshal(bulkRequest{
		UserID: s.UserID,
		Depos: []depo{{
			Date:               dayOf(s.Date),
			DeponentName:       s.DeponentName,
			TranscriptFile:     s.RemoteKey,
			TranscriptFileName: path.Base(s.RemoteKey),
			VideoFileNames:     []string{},
			VideoFiles:         []string{},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode deposition: %w", err)
	}
	endpoint := c.baseURL + "/cases/" + url.PathEscape(s.CaseID) + "/depos/bulk"

	attempts := 0
	operation := func() (json.RawMessage, error) {
		attempts++
		return c.attempt(ctx, endpoint, payload)
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Warn("deposition attempt rejected, retrying",
				slog.Int("attempt", attempts),
				slog.Duration("retry_in", next),
				logging.Err(err))
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		if attempts >= int(c.maxAttempts) && isRejectedCode(err) {
			err = &apperrors.RetryExhausted{Attempts: attempts, Last: err}
		}
		c.record(ctx, instrumentation.StatusError)
		return nil, fmt.Errorf("failed to create deposition for case %s: %w", s.CaseID, err)
	}

	c.record(ctx, instrumentation.StatusSuccess)
	c.logger.Info("deposition created", slog.String("case_id", s.CaseID), slog.Int("attempts", attempts))
	return body, nil
}

func (c *Client) attempt(ctx context.Context, endpoint string, payload []byte) (json.RawMessage, error) {
	code, err := c.codes.Code(ctx)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("x-totp-token", code)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordDepositionAttempt(ctx, 0)
		}
		return nil, backoff.Permanent(apperrors.Transport(serviceName, err))
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordDepositionAttempt(ctx, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, backoff.Permanent(apperrors.Transport(serviceName, err))
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(body), nil
	}

	upstream := apperrors.Upstream(serviceName, resp.StatusCode, errorDetail(body))
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, upstream
	}
	return nil, backoff.Permanent(upstream)
}

func (c *Client) record(ctx context.Context, result string) {
	if c.metrics != nil {
		c.metrics.RecordDepositionSubmitted(ctx, result)
	}
}

func isRejectedCode(err error) bool {
	return apperrors.StatusOf(err) == http.StatusUnauthorized
}

func dayOf(date string) string {
	day, _, _ := strings.Cut(date, "T")
	return day
}

func errorDetail(body []byte) string {
	var data struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &data); err == nil {
		if data.Error != "" {
			return data.Error
		}
		if data.Message != "" {
			return data.Message
		}
	}
	if detail := strings.TrimSpace(string(body)); detail != "" {
		return detail
	}
	return "API request failed"
}

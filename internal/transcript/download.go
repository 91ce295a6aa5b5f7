package transcript

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/teemow/depobot/internal/apperrors"
	"github.com/teemow/depobot/internal/instrumentation"
)

const serviceName = instrumentation.ServiceTranscript

// maxTranscriptSize bounds a downloaded transcript document.
const maxTranscriptSize = 64 << 20

// Downloader fetches transcript documents with the bot service API key.
type Downloader struct {
	apiKey string
	http   *http.Client
}

// NewDownloader returns a Downloader. A nil client uses http.DefaultClient.
func NewDownloader(apiKey string, httpClient *http.Client) *Downloader {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Downloader{apiKey: apiKey, http: httpClient}
}

// Download fetches and parses the transcript at url.
func (d *Downloader) Download(ctx context.Context, url string) (*Raw, error) {
	if url == "" {
		return nil, apperrors.InvalidArgument("transcript url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, apperrors.Transport(serviceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, apperrors.Upstream(serviceName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTranscriptSize+1))
	if err != nil {
		return nil, apperrors.Transport(serviceName, err)
	}
	if len(data) > maxTranscriptSize {
		return nil, apperrors.Upstream(serviceName, resp.StatusCode, "transcript exceeds size limit")
	}

	raw, err := Parse(data)
	if err != nil {
		return nil, apperrors.Upstream(serviceName, resp.StatusCode, err.Error())
	}
	return raw, nil
}

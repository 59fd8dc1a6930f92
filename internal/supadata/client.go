package supadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohamed-oubenma/smarTube/pkg/log"
)

// Config holds the Supadata client configuration.
type Config struct {
	BaseURL      string        // transcript endpoint, no trailing slash
	Timeout      int           // per-request timeout in seconds
	PollInterval time.Duration // delay between job-status polls
	MaxPolls     int           // poll ceiling before giving up on a job
}

// Validate checks the client configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.MaxPolls < 1 {
		return fmt.Errorf("max polls must be greater than 0")
	}
	return nil
}

// Client talks to the Supadata transcript API with a single credential per
// call. Credential selection and failover live in Fetcher.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a Supadata API client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Client{
		config:  config,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// RequestTranscript issues one transcript request with the given credential
// secret and returns the raw provider payload, polling the async job variant
// to completion when the provider answers 202. Failures come back as typed
// *FetchError values so the fetcher can decide whether to rotate credentials.
func (c *Client) RequestTranscript(ctx context.Context, videoURL, secret string) ([]byte, error) {
	requestURL := fmt.Sprintf("%s?url=%s&text=false", c.baseURL, url.QueryEscape(videoURL))

	status, body, err := c.doRequest(ctx, requestURL, secret)
	if err != nil {
		return nil, newErrorWithCause(ErrTransport, "transcript request failed", err)
	}

	if status < 200 || status >= 300 {
		detail := errorDetail(body, http.StatusText(status))
		if isRateLimitSignal(status, detail) {
			return nil, &FetchError{Type: ErrRateLimited, Message: detail, StatusCode: status}
		}
		return nil, &FetchError{
			Type:       ErrProvider,
			Message:    fmt.Sprintf("transcript request failed: %s", detail),
			StatusCode: status,
		}
	}

	if status == http.StatusAccepted {
		var accepted struct {
			JobID string `json:"jobId"`
		}
		if err := json.Unmarshal(body, &accepted); err != nil || strings.TrimSpace(accepted.JobID) == "" {
			return nil, newError(ErrProvider, "provider accepted transcript job but returned no jobId")
		}
		log.Info("Supadata transcript job queued (%s). Polling for completion...", accepted.JobID)
		return c.pollJob(ctx, accepted.JobID, secret)
	}

	return body, nil
}

// pollJob polls the job-status endpoint at the configured interval until the
// job completes, fails, or the poll ceiling is hit. The job is bound to the
// credential that created it, so every failure here is terminal.
func (c *Client) pollJob(ctx context.Context, jobID, secret string) ([]byte, error) {
	jobStatusURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(jobID))
	limiter := rate.NewLimiter(rate.Every(c.config.PollInterval), 1)

	for attempt := 1; attempt <= c.config.MaxPolls; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, newErrorWithCause(ErrJobPoll, "job polling interrupted", err)
		}

		status, body, err := c.doRequest(ctx, jobStatusURL, secret)
		if err != nil {
			return nil, newErrorWithCause(ErrJobPoll, fmt.Sprintf("polling job %s failed", jobID), err)
		}
		if status < 200 || status >= 300 {
			return nil, &FetchError{
				Type:       ErrJobPoll,
				Message:    fmt.Sprintf("polling job %s failed: %s", jobID, errorDetail(body, http.StatusText(status))),
				StatusCode: status,
			}
		}

		var probe struct {
			Status  string          `json:"status"`
			Message string          `json:"message"`
			Content json.RawMessage `json:"content"`
		}
		// Bodies that do not parse fall through to the retry path below.
		_ = json.Unmarshal(body, &probe)

		switch strings.ToLower(probe.Status) {
		case "completed":
			return body, nil
		case "failed":
			detail := probe.Message
			if detail == "" {
				detail = "unknown error"
			}
			return nil, newError(ErrJobFailed, fmt.Sprintf("transcript job %s failed: %s", jobID, detail))
		}

		// Some jobs deliver content without ever setting a status.
		if hasContentPayload(probe.Content) {
			return body, nil
		}
	}

	return nil, newError(ErrJobTimeout, fmt.Sprintf("transcript job %s timed out after %d polls", jobID, c.config.MaxPolls))
}

func (c *Client) doRequest(ctx context.Context, requestURL, secret string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// isRateLimitSignal matches HTTP 429 and the provider's textual rate-limit
// and quota messages.
func isRateLimitSignal(status int, detail string) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	lowered := strings.ToLower(detail)
	return strings.Contains(lowered, "rate limit") || strings.Contains(lowered, "quota exceeded")
}

// errorDetail extracts a human-readable message from a provider error body,
// accepting both {"message": ...} and {"error": {"message": ...}} shapes.
func errorDetail(body []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
	}
	return fallback
}

// hasContentPayload reports whether a raw content field holds one of the two
// accepted shapes (array or string).
func hasContentPayload(content json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(content))
	return strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, `"`)
}

package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.5-flash-lite"

	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 8192
)

// ErrEmptyResponse is returned when the provider answers 2xx but carries no
// candidate text.
var ErrEmptyResponse = errors.New("could not extract text from Gemini API response")

// APIError is a non-2xx answer from the Gemini API with the detail already
// mapped to a user-facing message.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Gemini API request failed (%d): %s", e.StatusCode, e.Detail)
}

// Config holds the Gemini API settings.
//
// BaseURL: API root, defaults to the public v1beta endpoint
// Model: model name used for generateContent calls
// Timeout: HTTP timeout in seconds
type Config struct {
	BaseURL string
	Model   string
	Timeout int
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 120
	}
	return nil
}

// GenerateOptions overrides the per-request generation settings. Zero values
// fall back to the defaults.
type GenerateOptions struct {
	Temperature     float64
	MaxOutputTokens int
}

// Client calls the Gemini generateContent API. Thread-safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

func (c *Client) Model() string {
	return c.config.Model
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Message string `json:"message"`
}

// GenerateContent sends a single-turn prompt and returns the first candidate's
// text. opts may be nil to use the default generation settings.
func (c *Client) GenerateContent(ctx context.Context, prompt, secret string, opts *GenerateOptions) (string, error) {
	temperature := DefaultTemperature
	maxTokens := DefaultMaxOutputTokens
	if opts != nil {
		if opts.Temperature > 0 {
			temperature = opts.Temperature
		}
		if opts.MaxOutputTokens > 0 {
			maxTokens = opts.MaxOutputTokens
		}
	}

	request := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf(
		"%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.config.BaseURL, "/"),
		c.config.Model,
		url.QueryEscape(secret),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Detail:     mapErrorDetail(resp.StatusCode, responseBody, resp.Status),
		}
	}

	var response generateResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Candidates) > 0 && len(response.Candidates[0].Content.Parts) > 0 {
		return response.Candidates[0].Content.Parts[0].Text, nil
	}
	if response.Error != nil && response.Error.Message != "" {
		return "", fmt.Errorf("Gemini API error: %s", response.Error.Message)
	}
	return "", ErrEmptyResponse
}

// mapErrorDetail rewrites well-known failure classes into stable messages the
// panel can show directly.
func mapErrorDetail(statusCode int, body []byte, fallback string) string {
	var parsed struct {
		Error *apiErrorBody `json:"error"`
	}
	detail := ""
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		detail = parsed.Error.Message
	}

	switch {
	case statusCode == http.StatusBadRequest && strings.Contains(detail, "API key not valid"):
		return "Invalid Gemini API Key."
	case statusCode == http.StatusTooManyRequests:
		return "Gemini API rate limit exceeded or quota finished."
	case statusCode >= 500:
		return "Gemini server error."
	}
	if detail == "" {
		return fallback
	}
	return detail
}

// Package provider talks to the BFL image-generation API: job submission,
// status polling, payload derivation per model variant, and normalization of
// the provider's status vocabulary onto the canonical task states.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const DefaultBaseURL = "https://api.bfl.ai"

// ErrUnreachable wraps network and timeout failures talking to the provider.
// Callers treat these as retryable: the task stays Pending.
var ErrUnreachable = errors.New("provider unreachable")

// RejectedError is a non-success provider response at submission time,
// carrying the upstream status and body.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("provider rejected request: status %d: %s", e.StatusCode, e.Body)
}

// JobStatus is one poll result from the provider.
type JobStatus struct {
	Status  string
	Result  json.RawMessage
	Details map[string]any
	Raw     json.RawMessage
}

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a provider client. The HTTP timeout bounds every call so
// a stalled provider cannot hang a poller indefinitely.
func NewClient(apiKey, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Submit posts a generation job and returns the provider's polling URL.
func (c *Client) Submit(ctx context.Context, model string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+EndpointFor(model), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RejectedError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out struct {
		PollingURL string `json:"polling_url"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.PollingURL == "" {
		return "", errors.New("no polling_url in provider response")
	}

	c.logger.Info("provider job submitted", "model", model)
	return out.PollingURL, nil
}

// Poll fetches the current job status from the provider's polling URL.
func (c *Client) Poll(ctx context.Context, pollingURL string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: poll status %d", ErrUnreachable, resp.StatusCode)
	}

	var parsed struct {
		Status  string          `json:"status"`
		Result  json.RawMessage `json:"result"`
		Details map[string]any  `json:"details"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode poll response: %w", err)
	}

	return &JobStatus{
		Status:  parsed.Status,
		Result:  parsed.Result,
		Details: parsed.Details,
		Raw:     respBody,
	}, nil
}

// Download streams a provider-hosted asset. Returns the body, content type
// and length; the caller owns closing the body.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("asset fetch failed: status %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return resp.Body, contentType, nil
}

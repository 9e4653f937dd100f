package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
)

// APIError is a non-2xx answer from the scan backend.
type APIError struct {
	StatusCode int
	// Detail is the backend's human-readable reason (FastAPI "detail"), if any.
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("scan backend error (%d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("scan backend returned %d", e.StatusCode)
}

// Client is a thin HTTP client for the scan backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client configured from cfg.
// baseURL defaults to config.DefaultBackendURL when cfg.URL is empty.
func New(cfg config.BackendConfig) *Client {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = config.DefaultBackendURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// ValidateScan submits a scan request. The backend validates it, starts the
// scan in the background and answers with the scan id.
func (c *Client) ValidateScan(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/scan/validate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out ValidateResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// Status returns the raw status document of a scan.
func (c *Client) Status(ctx context.Context, scanID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/scan/"+url.PathEscape(scanID)+"/status", nil)
}

// Results returns the raw results document of a scan.
func (c *Client) Results(ctx context.Context, scanID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/scan/"+url.PathEscape(scanID)+"/results", nil)
}

// SubmitDecision forwards a human-in-the-loop decision for a paused scan.
func (c *Client) SubmitDecision(ctx context.Context, scanID string, d HITLDecision) (json.RawMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/scan/"+url.PathEscape(scanID)+"/hitl-decision", bytes.NewReader(body))
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/health", nil)
	return err
}

// do executes an HTTP request and returns the response body.
// Non-2xx responses are converted to *APIError.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req) // #nosec G107 -- baseURL is operator configuration
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", c.baseURL+path, err)
	}
	defer res.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{StatusCode: res.StatusCode, Detail: errorDetail(b)}
	}
	return b, nil
}

// errorDetail extracts FastAPI's "detail" when it is a plain string.
// Validation errors carry a list there, which is not worth surfacing.
func errorDetail(b []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(b, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

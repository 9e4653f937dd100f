package scanflow

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

	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/urlcheck"
	"github.com/deplai/deplai-connector/models"
)

// GatewayError is a non-2xx answer from the gateway, carrying its {"error"} message.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway returned %d", e.StatusCode)
}

// HTTPBackend implements Backend against a running gateway, authenticating
// with a session token.
type HTTPBackend struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPBackend returns a client for the gateway at baseURL.
func NewHTTPBackend(baseURL, sessionToken string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   sessionToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// ValidateURL calls POST /api/validate-url. 400 answers still carry a
// {valid:false,error} body and are returned as a Result.
func (b *HTTPBackend) ValidateURL(ctx context.Context, rawURL string) (*urlcheck.Result, error) {
	status, body, err := b.do(ctx, http.MethodPost, "/api/validate-url", map[string]string{"url": rawURL})
	if err != nil {
		return nil, err
	}
	if status >= http.StatusInternalServerError {
		return nil, gatewayError(status, body)
	}
	var res urlcheck.Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding url validation: %w", err)
	}
	res.Status = status
	return &res, nil
}

// SubmitScan calls POST /api/scan/validate.
func (b *HTTPBackend) SubmitScan(ctx context.Context, req models.ScanRequest) (*backend.ValidateResponse, error) {
	var out backend.ValidateResponse
	if err := b.getJSON(ctx, http.MethodPost, "/api/scan/validate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanStatus calls GET /api/scan/status/{scanId}.
func (b *HTTPBackend) ScanStatus(ctx context.Context, scanID string) (*backend.StatusView, error) {
	var out backend.StatusView
	if err := b.getJSON(ctx, http.MethodGet, "/api/scan/status/"+url.PathEscape(scanID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanResults calls GET /api/scan/results/{scanId}.
func (b *HTTPBackend) ScanResults(ctx context.Context, scanID string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := b.getJSON(ctx, http.MethodGet, "/api/scan/results/"+url.PathEscape(scanID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) getJSON(ctx context.Context, method, path string, in, out any) error {
	status, body, err := b.do(ctx, method, path, in)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return gatewayError(status, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := b.http.Do(req) // #nosec G107 -- gateway URL is CLI configuration
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func gatewayError(status int, body []byte) error {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	return &GatewayError{StatusCode: status, Message: e.Error}
}

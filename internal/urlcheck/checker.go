// Package urlcheck decides whether a deployment URL is worth a DAST scan:
// well-formed, http(s), and answering at all.
package urlcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	UserAgent      = "DeplAI-Scanner/1.0"
	DefaultTimeout = 10 * time.Second

	ErrRequired    = "URL is required"
	ErrInvalid     = "Invalid URL format"
	ErrScheme      = "URL must use HTTP or HTTPS"
	ErrUnreachable = "URL is not reachable"
)

// ErrValidateFail is answered when the request itself cannot be read.
const ErrValidateFail = "Validation failed"

// Result is both the outcome and the HTTP response body of POST /api/validate-url.
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
	// Status is the HTTP status the endpoint should answer with.
	Status int `json:"-"`
}

// Checker probes URLs with HEAD, falling back to GET for servers that
// reject or drop HEAD. Each attempt is bounded by Timeout.
type Checker struct {
	client  *http.Client
	timeout time.Duration
}

// New returns a Checker. A zero timeout means DefaultTimeout.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		client: &http.Client{
			// Redirect targets count as reachable too; follow them like a browser would.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout: timeout,
	}
}

// Check validates raw and probes it. Any HTTP response, whatever its status
// code, counts as reachable; only transport failures do not.
func (c *Checker) Check(ctx context.Context, raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Result{Error: ErrRequired, Status: http.StatusBadRequest}
	}
	u, err := Parse(raw)
	if err != nil {
		return Result{Error: ErrInvalid, Status: http.StatusBadRequest}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Error: ErrScheme, Status: http.StatusBadRequest}
	}

	if err := c.probe(ctx, http.MethodHead, u.String()); err != nil {
		slog.Debug("urlcheck: HEAD failed, retrying with GET", "url", u.Redacted(), "error", err)
		if err := c.probe(ctx, http.MethodGet, u.String()); err != nil {
			slog.Debug("urlcheck: GET failed", "url", u.Redacted(), "error", err)
			return Result{Error: ErrUnreachable, Status: http.StatusOK}
		}
	}
	return Result{Valid: true, Status: http.StatusOK}
}

// Parse accepts only absolute URLs with a scheme and a host, which is what
// a browser URL constructor would accept for a deployment address.
func Parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("missing scheme in %q", raw)
	}
	if u.Opaque == "" && u.Host == "" && (u.Scheme == "http" || u.Scheme == "https") {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	return u, nil
}

func (c *Checker) probe(ctx context.Context, method, target string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.client.Do(req) // #nosec G107 -- probing user-supplied deployment URLs is the purpose of this package
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.Body.Close()
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deplai/deplai-connector/internal/auth"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/internal/repository"
)

const testSecret = "test-session-secret"

// fakeScanBackend emulates the scan backend and records what it received.
type fakeScanBackend struct {
	srv *httptest.Server

	mu        sync.Mutex
	validated []map[string]any
	decisions []map[string]any

	validateStatus int
	validateBody   string
	statusCode     int
	statusBody     string
	resultsCode    int
	resultsBody    string
}

func newFakeScanBackend(t *testing.T) *fakeScanBackend {
	t.Helper()
	f := &fakeScanBackend{
		validateStatus: http.StatusOK,
		validateBody: `{"success":true,"message":"Scan validation request received and scan started",
			"data":{"project_id":"p-1","project_name":"shop","project_type":"local","user_id":"u-1"},
			"scan_id":"scan-1","status":"started"}`,
		statusCode:  http.StatusOK,
		statusBody:  `{"status":"running","current_phase":"analysis","messages":[],"errors":[]}`,
		resultsCode: http.StatusOK,
		resultsBody: `{"scan_id":"scan-1","status":"completed","state":{"findings":[]}}`,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/scan/validate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.validated = append(f.validated, body)
		code, resp := f.validateStatus, f.validateBody
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, resp)
	})
	mux.HandleFunc("GET /scan/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code, resp := f.statusCode, f.statusBody
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, resp)
	})
	mux.HandleFunc("GET /scan/{id}/results", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		code, resp := f.resultsCode, f.resultsBody
		f.mu.Unlock()
		w.WriteHeader(code)
		_, _ = io.WriteString(w, resp)
	})
	mux.HandleFunc("POST /scan/{id}/hitl-decision", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.decisions = append(f.decisions, body)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"scan_id":"`+r.PathValue("id")+`","accepted":true,"decision":"approve"}`)
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"healthy"}`)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeScanBackend) set(fn func(f *fakeScanBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeScanBackend) validateCalls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.validated...)
}

// fakeInstallations is a scripted repository.Installations.
type fakeInstallations struct {
	actual    string
	verifyErr error
	token     string
	tokenErr  error
}

func (f *fakeInstallations) VerifyInstallation(_ context.Context, installationID, _, _ string) (*repository.InstallationCheck, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &repository.InstallationCheck{Matches: installationID == f.actual, Expected: installationID, Actual: f.actual}, nil
}

func (f *fakeInstallations) InstallationToken(context.Context, string) (string, error) {
	return f.token, f.tokenErr
}

func newTestGateway(t *testing.T) (*Gateway, *fakeScanBackend) {
	t.Helper()
	fb := newFakeScanBackend(t)
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "gateway.db")})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := &config.Config{
		Server:  config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Backend: config.BackendConfig{URL: fb.srv.URL, Timeout: 5 * time.Second},
		Auth:    config.AuthConfig{SessionSecret: testSecret, CookieName: "deplai_session"},
		Scan:    config.ScanConfig{ProbeTimeout: 2 * time.Second, SessionTTL: time.Hour},
	}
	return New(cfg, db), fb
}

func sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	s := auth.NewCookieSessions(config.AuthConfig{SessionSecret: testSecret})
	tok, err := s.IssueToken(auth.User{ID: userID}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &http.Cookie{Name: "deplai_session", Value: tok}
}

// do runs one request through the full handler chain.
func do(t *testing.T, gw *Gateway, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, code int, msg string) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("expected %d, got %d: %s", code, rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["error"]; got != msg {
		t.Fatalf("expected error %q, got %v", msg, got)
	}
}

func TestHealthReportsDatabaseAndBackend(t *testing.T) {
	gw, _ := newTestGateway(t)
	gw.monitor.check(context.Background())

	rr := do(t, gw, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var hs HealthStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &hs); err != nil {
		t.Fatal(err)
	}
	if hs.Status != "ok" || hs.Database != "ok" || hs.Backend != backendUp || hs.LastCheckedAt == nil {
		t.Fatalf("unexpected health: %+v", hs)
	}
}

func TestHealthDegradedWhenBackendDown(t *testing.T) {
	gw, fb := newTestGateway(t)
	fb.srv.Close()
	gw.monitor.check(context.Background())

	hs := gw.healthStatus(context.Background())
	if hs.Status != "degraded" || hs.Backend != backendDown || hs.BackendError == "" {
		t.Fatalf("unexpected health: %+v", hs)
	}
}

func TestMetricsEndpointExposesCounters(t *testing.T) {
	gw, _ := newTestGateway(t)
	do(t, gw, http.MethodPost, "/api/tickets", `{"fingerprint":"fp","project_id":"p"}`, nil)

	rr := do(t, gw, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`deplai_ticket_upserts_total{outcome="created"} 1`,
		`deplai_http_requests_total{code="200",method="post"} 1`,
		"deplai_tracked_scans 0",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestCORSPreflightAllowsDashboardOrigin(t *testing.T) {
	gw, _ := newTestGateway(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/scan/validate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin, got %q", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/scan/validate", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr = httptest.NewRecorder()
	buildHandler(gw).ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allowed origin %q", got)
	}
}

func TestEventsStreamsBroadcasts(t *testing.T) {
	gw, _ := newTestGateway(t)
	srv := httptest.NewServer(buildHandler(gw))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 4096)
	var got bytes.Buffer
	readUntil := func(marker string) {
		for !strings.Contains(got.String(), marker) {
			n, err := resp.Body.Read(buf)
			got.Write(buf[:n])
			if err != nil {
				t.Fatalf("reading stream (have %q): %v", got.String(), err)
			}
		}
	}
	readUntil("event: connected")

	for gw.broadcaster.subscribers() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	gw.broadcaster.send(SSEEvent{Type: "scan.completed", Payload: map[string]string{"scan_id": "s-1"}})
	readUntil(`"scan_id":"s-1"`)
	if !strings.Contains(got.String(), "event: scan.completed\n") {
		t.Fatalf("missing event line in %q", got.String())
	}
}

func TestRedactSecretsAtAnyDepth(t *testing.T) {
	in := json.RawMessage(`{"state":{"github_token":"ghs_x","nested":[{"github_token":"ghs_y","ok":1}]},"github_token":"ghs_z","a":"b"}`)
	out, err := redactSecrets(in)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(out, []byte("ghs_")) || bytes.Contains(out, []byte("github_token")) {
		t.Fatalf("token leaked: %s", out)
	}
	if !bytes.Contains(out, []byte(`"ok":1`)) || !bytes.Contains(out, []byte(`"a":"b"`)) {
		t.Fatalf("unrelated fields lost: %s", out)
	}

	same := json.RawMessage(`{"status":"running"}`)
	out, err = redactSecrets(same)
	if err != nil || string(out) != string(same) {
		t.Fatalf("clean document must pass through unchanged, got %s (%v)", out, err)
	}

	if _, err := redactSecrets(json.RawMessage(`<html>`)); err == nil {
		t.Fatal("expected error for non-JSON document")
	}
}

var errBoom = errors.New("boom")

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/notify"
	"github.com/deplai/deplai-connector/internal/repository"
	"github.com/deplai/deplai-connector/internal/urlcheck"
	"github.com/deplai/deplai-connector/models"
)

const (
	msgMissingGitHubContext = "Missing GitHub installation context (installation_id/owner/repo)"
	msgTokenEmpty           = "Failed to generate GitHub installation token"
	msgTokenUnavailable     = "Unable to verify installation or obtain GitHub installation token for this repository"
	msgValidateScanFailed   = "Failed to validate scan"
	msgStatusFailed         = "Failed to fetch scan status"
	msgResultsFailed        = "Failed to fetch scan results"
	msgDecisionFailed       = "Failed to submit decision"
)

// secretKeys are never relayed to callers, wherever they appear in a
// backend document.
var secretKeys = map[string]bool{"github_token": true}

// handleValidateURL implements POST /api/validate-url.
func (gw *Gateway) handleValidateURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL any `json:"url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		gw.metrics.urlChecks.WithLabelValues("error").Inc()
		writeJSON(w, http.StatusInternalServerError, urlcheck.Result{Error: urlcheck.ErrValidateFail})
		return
	}

	var res urlcheck.Result
	switch v := body.URL.(type) {
	case string:
		res = gw.checker.Check(r.Context(), v)
	case nil, bool, float64:
		// false and 0 count as missing, like null; true or any other number is
		// not a URL.
		if v == nil || v == false || v == float64(0) {
			res = gw.checker.Check(r.Context(), "")
		} else {
			res = urlcheck.Result{Error: urlcheck.ErrInvalid, Status: http.StatusBadRequest}
		}
	default:
		res = urlcheck.Result{Error: urlcheck.ErrInvalid, Status: http.StatusBadRequest}
	}

	outcome := "valid"
	switch {
	case res.Valid:
	case res.Error == urlcheck.ErrUnreachable:
		outcome = "unreachable"
	default:
		outcome = "invalid"
	}
	gw.metrics.urlChecks.WithLabelValues(outcome).Inc()
	writeJSON(w, res.Status, res)
}

// handleScanValidate implements POST /api/scan/validate: it authenticates
// the caller, exchanges GitHub installation context for a short-lived
// token and forwards the request to the scan backend.
func (gw *Gateway) handleScanValidate(w http.ResponseWriter, r *http.Request) {
	user, ok := gw.requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req models.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("gateway: scan validation body rejected", "error", err)
		gw.metrics.scans.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, msgValidateScanFailed)
		return
	}

	payload := backend.ValidateRequest{
		ProjectID:     req.ProjectID.String(),
		ProjectName:   req.ProjectName,
		ProjectType:   req.ProjectType,
		UserID:        user.ID,
		DeploymentURL: strings.TrimSpace(req.DeploymentURL),
	}

	if req.ProjectType == string(models.ProjectGitHub) {
		installationID := strings.TrimSpace(req.InstallationID.String())
		owner, repo := strings.TrimSpace(req.Owner), strings.TrimSpace(req.Repo)
		if installationID == "" || owner == "" || repo == "" {
			gw.metrics.scans.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, msgMissingGitHubContext)
			return
		}
		token, status, msg := gw.githubToken(ctx, installationID, owner, repo)
		if status != 0 {
			gw.metrics.scans.WithLabelValues("rejected").Inc()
			writeError(w, status, msg)
			return
		}
		payload.GitHubToken = token
		payload.RepositoryURL = repository.RepositoryURL(owner, repo)
	}

	resp, err := gw.backend.ValidateScan(ctx, payload)
	if err != nil {
		slog.Error("gateway: scan backend rejected submission",
			"project_id", payload.ProjectID, "user_id", user.ID, "error", err)
		gw.metrics.scans.WithLabelValues("failed").Inc()
		writeError(w, http.StatusInternalServerError, msgValidateScanFailed)
		return
	}
	gw.metrics.scans.WithLabelValues("submitted").Inc()

	if resp.ScanID != "" {
		now := time.Now().UTC()
		sess := models.ScanSession{
			ScanID:        resp.ScanID,
			UserID:        user.ID,
			ProjectID:     payload.ProjectID,
			ProjectName:   payload.ProjectName,
			ProjectType:   payload.ProjectType,
			DASTEnabled:   payload.DeploymentURL != "",
			DeploymentURL: payload.DeploymentURL,
			Status:        models.ScanRunning,
			SubmittedAt:   now,
			UpdatedAt:     now,
		}
		gw.sessions.put(sess)
		gw.broadcaster.send(SSEEvent{Type: notify.EventScanSubmitted, Payload: sess})
		slog.Info("gateway: scan submitted", "scan_id", resp.ScanID, "project_id", payload.ProjectID, "user_id", user.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// githubToken verifies the installation and mints a token. A non-zero
// status means the request must be answered with status and msg.
func (gw *Gateway) githubToken(ctx context.Context, installationID, owner, repo string) (string, int, string) {
	if gw.installations == nil {
		slog.Error("gateway: github submission without a configured GitHub App", "owner", owner, "repo", repo)
		return "", http.StatusBadGateway, msgTokenUnavailable
	}
	check, err := gw.installations.VerifyInstallation(ctx, installationID, owner, repo)
	if err != nil {
		slog.Error("gateway: verifying installation failed", "owner", owner, "repo", repo, "error", err)
		return "", http.StatusBadGateway, msgTokenUnavailable
	}
	if !check.Matches {
		return "", http.StatusConflict, fmt.Sprintf(
			"Installation mismatch for %s/%s. Expected installation %s, but repo is installed under %s.",
			owner, repo, check.Expected, check.Actual)
	}
	token, err := gw.installations.InstallationToken(ctx, installationID)
	if err != nil {
		slog.Error("gateway: creating installation token failed", "installation_id", installationID, "error", err)
		return "", http.StatusBadGateway, msgTokenUnavailable
	}
	if token == "" {
		return "", http.StatusBadGateway, msgTokenEmpty
	}
	return token, 0, ""
}

// handleScanStatus implements GET /api/scan/status/{scanId}.
func (gw *Gateway) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	scanID := r.PathValue("scanId")
	raw, ok := gw.proxy(w, "status", msgStatusFailed, func() (json.RawMessage, error) {
		return gw.backend.Status(r.Context(), scanID)
	})
	if !ok {
		return
	}
	var view backend.StatusView
	if err := json.Unmarshal(raw, &view); err == nil {
		gw.observeStatus(r.Context(), scanID, view)
	}
	writeRawJSON(w, http.StatusOK, raw)
}

// handleScanResults implements GET /api/scan/results/{scanId}.
func (gw *Gateway) handleScanResults(w http.ResponseWriter, r *http.Request) {
	scanID := r.PathValue("scanId")
	raw, ok := gw.proxy(w, "results", msgResultsFailed, func() (json.RawMessage, error) {
		return gw.backend.Results(r.Context(), scanID)
	})
	if !ok {
		return
	}
	writeRawJSON(w, http.StatusOK, raw)
}

// handleHITLDecision implements POST /api/scan/{scanId}/hitl-decision.
func (gw *Gateway) handleHITLDecision(w http.ResponseWriter, r *http.Request) {
	user, ok := gw.requireUser(w, r)
	if !ok {
		return
	}
	var body hitlDecisionRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	decision := strings.ToLower(strings.TrimSpace(body.Decision))
	if decision == "" {
		writeError(w, http.StatusBadRequest, "decision is required")
		return
	}
	scanID := r.PathValue("scanId")
	d := backend.HITLDecision{
		Decision: decision,
		Actor:    firstNonEmpty(strings.TrimSpace(body.Actor), user.ID),
		Reason:   strings.TrimSpace(body.Reason),
	}
	raw, ok := gw.proxy(w, "hitl-decision", msgDecisionFailed, func() (json.RawMessage, error) {
		return gw.backend.SubmitDecision(r.Context(), scanID, d)
	})
	if !ok {
		return
	}
	gw.broadcaster.send(SSEEvent{Type: "scan.hitl_decision", Payload: map[string]string{
		"scan_id": scanID, "decision": d.Decision, "actor": d.Actor,
	}})
	writeRawJSON(w, http.StatusOK, raw)
}

// handleListSessions implements GET /api/scan/sessions.
func (gw *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user, ok := gw.requireUser(w, r)
	if !ok {
		return
	}
	items := gw.sessions.forUser(user.ID)
	writeJSON(w, http.StatusOK, sessionsResponse{Items: items, Total: len(items)})
}

// proxy calls the backend and handles every failure path: non-2xx answers
// keep their status with the backend's detail (or fallback) as the error,
// anything else is a 500 with fallback. Secret fields are stripped from
// successful documents.
func (gw *Gateway) proxy(w http.ResponseWriter, endpoint, fallback string, call func() (json.RawMessage, error)) (json.RawMessage, bool) {
	raw, err := call()
	if err != nil {
		gw.metrics.proxyErrors.WithLabelValues(endpoint).Inc()
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) {
			writeError(w, apiErr.StatusCode, firstNonEmpty(apiErr.Detail, fallback))
			return nil, false
		}
		slog.Error("gateway: scan backend proxy failed", "endpoint", endpoint, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
		return nil, false
	}
	clean, err := redactSecrets(raw)
	if err != nil {
		gw.metrics.proxyErrors.WithLabelValues(endpoint).Inc()
		slog.Error("gateway: scan backend returned invalid JSON", "endpoint", endpoint, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
		return nil, false
	}
	return clean, true
}

// observeStatus refreshes a tracked session and announces terminal
// transitions exactly once.
func (gw *Gateway) observeStatus(ctx context.Context, scanID string, view backend.StatusView) {
	sess, becameTerminal, tracked := gw.sessions.update(scanID, models.ScanStatus(view.Status), view.CurrentPhase)
	if !tracked || !becameTerminal {
		return
	}
	evt := notify.Event{
		Type:      notify.EventScanCompleted,
		Level:     notify.LevelSuccess,
		Title:     "Scan completed",
		Body:      fmt.Sprintf("Scan of %s completed", sess.ProjectName),
		ScanID:    scanID,
		ProjectID: sess.ProjectID,
	}
	if sess.Status == models.ScanFailed {
		evt.Type, evt.Level, evt.Title = notify.EventScanFailed, notify.LevelError, "Scan failed"
		evt.Body = fmt.Sprintf("Scan of %s failed", sess.ProjectName)
	}
	gw.broadcaster.send(SSEEvent{Type: evt.Type, Payload: sess})
	// Webhook delivery must not hold up the status response.
	go gw.notifier.Notify(context.WithoutCancel(ctx), evt)
}

// redactSecrets drops secret keys from a JSON document at any depth. It
// also rejects documents that are not valid JSON.
func redactSecrets(raw json.RawMessage) (json.RawMessage, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if !stripKeys(doc) {
		return raw, nil
	}
	return json.Marshal(doc)
}

// stripKeys removes secretKeys in place and reports whether it removed any.
func stripKeys(v any) bool {
	removed := false
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if secretKeys[k] {
				delete(t, k)
				removed = true
				continue
			}
			if stripKeys(child) {
				removed = true
			}
		}
	case []any:
		for _, child := range t {
			if stripKeys(child) {
				removed = true
			}
		}
	}
	return removed
}

// Package backend is the client for the DeplAI scan backend (the agentic
// layer at AGENTIC_LAYER_URL). Only its documented HTTP contract is used.
package backend

import "encoding/json"

// ValidateRequest is sent to POST /api/scan/validate.
type ValidateRequest struct {
	ProjectID     string `json:"project_id"`
	ProjectName   string `json:"project_name"`
	ProjectType   string `json:"project_type"`
	UserID        string `json:"user_id"`
	DeploymentURL string `json:"deployment_url,omitempty"`
	// GitHubToken is a short-lived installation token. It only ever travels
	// towards the backend; no response type carries it.
	GitHubToken   string `json:"github_token,omitempty"` // #nosec G101 -- request field carrying a credential, not a hardcoded value
	RepositoryURL string `json:"repository_url,omitempty"`
}

// ValidateResponse is the caller-facing view of the backend's answer.
// It is decoded field by field, so anything the backend echoes back that
// is not listed here (tokens included) never reaches a caller.
type ValidateResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *ValidateData `json:"data,omitempty"`
	ScanID  string        `json:"scan_id,omitempty"`
	Status  string        `json:"status,omitempty"`
}

// ValidateData echoes the accepted request.
type ValidateData struct {
	ProjectID     string `json:"project_id"`
	ProjectName   string `json:"project_name"`
	ProjectType   string `json:"project_type"`
	UserID        string `json:"user_id,omitempty"`
	DeploymentURL string `json:"deployment_url,omitempty"`
	RepositoryURL string `json:"repository_url,omitempty"`
}

// StatusView is the subset of GET /scan/{id}/status the gateway reads for
// its own bookkeeping. Callers of the status proxy get the raw payload.
type StatusView struct {
	Status       string            `json:"status"`
	CurrentPhase string            `json:"current_phase,omitempty"`
	Messages     []json.RawMessage `json:"messages,omitempty"`
	Errors       []json.RawMessage `json:"errors,omitempty"`
}

// HITLDecision is sent to POST /scan/{id}/hitl-decision when a scan is
// waiting for a human to approve or reject its plan.
type HITLDecision struct {
	Decision string `json:"decision"`
	Actor    string `json:"actor"`
	Reason   string `json:"reason,omitempty"`
}

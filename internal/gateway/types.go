package gateway

import (
	"time"

	"github.com/deplai/deplai-connector/models"
)

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// HealthStatus is the body of GET /health and the payload of the
// "backend.health" SSE event.
type HealthStatus struct {
	Status        string     `json:"status"` // "ok" | "degraded"
	Database      string     `json:"database"`
	Backend       string     `json:"backend"` // "up" | "down" | "unknown"
	BackendURL    string     `json:"backend_url"`
	BackendError  string     `json:"backend_error,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
}

// hitlDecisionRequest is the body of POST /api/scan/{scanId}/hitl-decision.
type hitlDecisionRequest struct {
	Decision string `json:"decision"`
	Actor    string `json:"actor,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type sessionsResponse struct {
	Items []models.ScanSession `json:"items"`
	Total int                  `json:"total"`
}

package notify

import "context"

// Event types emitted by the gateway and the scan flow.
const (
	EventScanSubmitted    = "scan.submitted"
	EventScanCompleted    = "scan.completed"
	EventScanFailed       = "scan.failed"
	EventScanTimedOut     = "scan.timed_out"
	EventScanCancelled    = "scan.cancelled"
	EventSubmitFailed     = "scan.submit_failed"
	EventBackendUnhealthy = "backend.unhealthy"
)

// Levels decide how a notice is rendered.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// Event is a user-facing notice.
type Event struct {
	Type      string
	Level     string
	Title     string
	Body      string
	ScanID    string
	ProjectID string
	URL       string         // optional deep link (dashboard scan page)
	Metadata  map[string]any // extra structured data
}

// Channel is implemented by each notification provider.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}

// Notifier is what producers of events depend on.
type Notifier interface {
	Notify(ctx context.Context, evt Event)
}

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	backendUnknown = "unknown"
	backendUp      = "up"
	backendDown    = "down"

	healthProbeTimeout = 5 * time.Second
)

// HealthMonitor probes the scan backend on a cron schedule and remembers
// the outcome for GET /health. onChange runs whenever the state flips.
type HealthMonitor struct {
	cron     *cron.Cron
	expr     string
	probe    func(ctx context.Context) error
	onChange func(state, detail string)

	mu          sync.RWMutex
	state       string
	detail      string
	lastChecked time.Time
}

func newHealthMonitor(expr string, probe func(context.Context) error, onChange func(state, detail string)) *HealthMonitor {
	return &HealthMonitor{
		cron:     cron.New(),
		expr:     expr,
		probe:    probe,
		onChange: onChange,
		state:    backendUnknown,
	}
}

// Start registers the probe and starts the cron runner. An empty
// expression disables periodic probing.
func (h *HealthMonitor) Start(ctx context.Context) error {
	if h.expr == "" {
		slog.Info("gateway: backend health monitor disabled")
		return nil
	}
	if _, err := h.cron.AddFunc(h.expr, func() { h.check(ctx) }); err != nil {
		return fmt.Errorf("invalid monitor.health_expr %q: %w", h.expr, err)
	}
	h.cron.Start()
	go h.check(ctx)
	slog.Info("gateway: backend health monitor started", "expr", h.expr)
	return nil
}

// Stop halts the cron runner gracefully.
func (h *HealthMonitor) Stop() { <-h.cron.Stop().Done() }

// check runs one probe and records its outcome.
func (h *HealthMonitor) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	state, detail := backendUp, ""
	if err := h.probe(probeCtx); err != nil {
		state, detail = backendDown, err.Error()
	}

	h.mu.Lock()
	changed := state != h.state
	h.state, h.detail, h.lastChecked = state, detail, time.Now().UTC()
	h.mu.Unlock()

	if changed {
		slog.Info("gateway: scan backend health changed", "state", state, "error", detail)
		if h.onChange != nil {
			h.onChange(state, detail)
		}
	}
}

// snapshot returns the last probe outcome. lastChecked is zero before the first probe.
func (h *HealthMonitor) snapshot() (state, detail string, lastChecked time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.detail, h.lastChecked
}

package notify

import (
	"context"
	"log/slog"

	"github.com/deplai/deplai-connector/internal/config"
)

// Dispatcher fans out events to all configured channels.
type Dispatcher struct {
	configured []Channel       // built from cfg, subject to events
	extra      []Channel       // always receive every event
	events     map[string]bool // event types configured channels get (nil = all)
}

// NewDispatcher creates a Dispatcher from cfg plus any extra channels
// (the CLI passes its terminal channel here). cfg.Events only narrows the
// channels built from cfg; extra channels see every event.
// Only channels with IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig, extra ...Channel) *Dispatcher {
	d := &Dispatcher{}
	if len(cfg.Events) > 0 {
		d.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			d.events[e] = true
		}
	}

	d.configured = active(NewWebhook(cfg.Webhook))
	d.extra = active(extra...)
	return d
}

func active(channels ...Channel) []Channel {
	var out []Channel
	for _, ch := range channels {
		if ch != nil && ch.IsConfigured() {
			out = append(out, ch)
		}
	}
	return out
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.configured)+len(d.extra) > 0
}

// Notify sends evt to all configured channels. Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) {
	if d == nil {
		return
	}
	if d.events == nil || d.events[evt.Type] {
		d.send(ctx, d.configured, evt)
	}
	d.send(ctx, d.extra, evt)
}

func (d *Dispatcher) send(ctx context.Context, channels []Channel, evt Event) {
	for _, ch := range channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("notify: channel send failed", "channel", ch.Name(), "event", evt.Type, "error", err)
		}
	}
}

package scanflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/models"
)

const (
	DefaultPollAttempts = 30
	DefaultPollInterval = time.Second
)

// PollConfig bounds the status loop.
type PollConfig struct {
	Attempts int
	Interval time.Duration
}

// StatusSource is the part of Backend the poll loop uses.
type StatusSource interface {
	ScanStatus(ctx context.Context, scanID string) (*backend.StatusView, error)
	ScanResults(ctx context.Context, scanID string) (json.RawMessage, error)
}

// Result is the outcome of a poll loop.
type Result struct {
	ScanID string            `json:"scan_id"`
	Status models.ScanStatus `json:"status"`
	Phase  string            `json:"current_phase,omitempty"`
	Polls  int               `json:"polls"`
	// TimedOut is set when every attempt saw a non-terminal status.
	// Status is then the last status read, normally "running".
	TimedOut bool `json:"timed_out,omitempty"`
	// Inconclusive is set when a status request failed; Status keeps the
	// last successfully read value.
	Inconclusive bool            `json:"inconclusive,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	ResultsError string          `json:"results_error,omitempty"`
}

var errNotTerminal = errors.New("scan not in a terminal state")

// statusError marks a failed status request, which ends the loop early.
type statusError struct{ err error }

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// Poll reads the status of scanID once per interval, at most cfg.Attempts
// times, one request in flight at a time. It stops early on completed or
// failed, when a status request fails, or when ctx is done; only the last
// case returns an error. Results are fetched once when the scan completed.
func Poll(ctx context.Context, src StatusSource, scanID string, cfg PollConfig) (*Result, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultPollAttempts
	}
	if cfg.Interval < 0 {
		cfg.Interval = DefaultPollInterval
	}

	res := &Result{ScanID: scanID, Status: models.ScanRunning}
	op := func() (*backend.StatusView, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		res.Polls++
		view, err := src.ScanStatus(ctx, scanID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, backoff.Permanent(&statusError{err: err})
		}
		if view.Status != "" {
			res.Status = models.ScanStatus(view.Status)
		}
		res.Phase = view.CurrentPhase
		if !res.Status.Terminal() {
			return nil, errNotTerminal
		}
		return view, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.Interval)),
		backoff.WithMaxTries(uint(cfg.Attempts)),
		backoff.WithMaxElapsedTime(0),
	)

	var serr *statusError
	switch {
	case err == nil:
	case errors.As(err, &serr):
		slog.Warn("scanflow: status request failed, stopping poll", "scan_id", scanID, "polls", res.Polls, "error", serr.err)
		res.Inconclusive = true
		return res, nil
	case errors.Is(err, errNotTerminal):
		res.TimedOut = true
		return res, nil
	default:
		return res, err
	}

	if res.Status == models.ScanCompleted {
		results, err := src.ScanResults(ctx, scanID)
		if err != nil {
			slog.Warn("scanflow: fetching results failed", "scan_id", scanID, "error", err)
			res.ResultsError = err.Error()
		} else {
			res.Results = results
		}
	}
	return res, nil
}

// Package scanflow drives a scan request from the first question to a
// terminal backend status: dast -> dast-url -> security -> submitted|cancelled,
// then a bounded poll of the scan's status.
package scanflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/notify"
	"github.com/deplai/deplai-connector/internal/urlcheck"
	"github.com/deplai/deplai-connector/models"
)

// Step is a state of the flow.
type Step string

const (
	StepDAST      Step = "dast"
	StepDASTURL   Step = "dast-url"
	StepSecurity  Step = "security"
	StepSubmitted Step = "submitted"
	StepCancelled Step = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Step) Terminal() bool { return s == StepSubmitted || s == StepCancelled }

// Inline messages shown in the dast-url step.
const (
	MsgEnterURL       = "Please enter a URL"
	MsgInvalidURL     = "Please enter a valid URL"
	MsgValidateFailed = "Failed to validate URL"
	MsgUnreachable    = urlcheck.ErrUnreachable

	// MsgSubmitFailed is the notice shown when submission fails.
	MsgSubmitFailed = "Failed to connect to the backend. Please ensure the server is running."
)

var (
	// ErrSubmitFailed is returned by Confirm when the backend could not take
	// the scan. The flow has been reset by then.
	ErrSubmitFailed = errors.New("scan submission failed")
	// ErrInvalidTransition is returned when an action does not apply to the current step.
	ErrInvalidTransition = errors.New("invalid transition")
)

// URLError is a retryable, user-facing validation message for the
// deployment URL. The flow stays in the dast-url step.
type URLError struct {
	Msg string
}

func (e *URLError) Error() string { return e.Msg }

// Backend is what the flow needs from the gateway.
type Backend interface {
	ValidateURL(ctx context.Context, rawURL string) (*urlcheck.Result, error)
	SubmitScan(ctx context.Context, req models.ScanRequest) (*backend.ValidateResponse, error)
	ScanStatus(ctx context.Context, scanID string) (*backend.StatusView, error)
	ScanResults(ctx context.Context, scanID string) (json.RawMessage, error)
}

// Option configures a Flow.
type Option func(*Flow)

// WithNotifier routes user-facing notices to n.
func WithNotifier(n notify.Notifier) Option { return func(f *Flow) { f.notifier = n } }

// WithPollInterval sets the pause between status polls (default 1s).
func WithPollInterval(d time.Duration) Option { return func(f *Flow) { f.poll.Interval = d } }

// WithPollAttempts sets the maximum number of status polls (default 30).
func WithPollAttempts(n int) Option { return func(f *Flow) { f.poll.Attempts = n } }

// Flow is one scan request for one project. It is not safe for concurrent use.
type Flow struct {
	backend  Backend
	notifier notify.Notifier
	project  models.Project
	poll     PollConfig

	step        Step
	dastEnabled bool
	url         string
	urlErr      string
	session     *models.ScanSession
}

// New starts a flow for project at the dast step.
func New(b Backend, project models.Project, opts ...Option) *Flow {
	f := &Flow{
		backend: b,
		project: project,
		poll:    PollConfig{Attempts: DefaultPollAttempts, Interval: DefaultPollInterval},
		step:    StepDAST,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) Step() Step              { return f.step }
func (f *Flow) DASTEnabled() bool       { return f.dastEnabled }
func (f *Flow) URL() string             { return f.url }
func (f *Flow) URLError() string        { return f.urlErr }
func (f *Flow) Project() models.Project { return f.project }

// Session is the submitted scan, nil until Confirm succeeds.
func (f *Flow) Session() *models.ScanSession { return f.session }

// AnswerDAST records whether a live deployment exists.
func (f *Flow) AnswerDAST(hasDeployment bool) error {
	if err := f.expect(StepDAST); err != nil {
		return err
	}
	f.dastEnabled = hasDeployment
	if hasDeployment {
		f.step = StepDASTURL
	} else {
		f.step = StepSecurity
	}
	return nil
}

// SetURL stores the deployment URL typed by the user.
func (f *Flow) SetURL(raw string) error {
	if err := f.expect(StepDASTURL); err != nil {
		return err
	}
	f.url = raw
	return nil
}

// ValidateURL checks the stored URL locally, then asks the gateway to probe
// it. On success the flow advances to security; otherwise it stays in
// dast-url and returns a *URLError.
func (f *Flow) ValidateURL(ctx context.Context) error {
	if err := f.expect(StepDASTURL); err != nil {
		return err
	}
	if strings.TrimSpace(f.url) == "" {
		return f.failURL(MsgEnterURL)
	}
	if _, err := urlcheck.Parse(f.url); err != nil {
		return f.failURL(MsgInvalidURL)
	}

	f.urlErr = ""
	res, err := f.backend.ValidateURL(ctx, f.url)
	if err != nil {
		slog.Debug("scanflow: url validation request failed", "error", err)
		return f.failURL(MsgValidateFailed)
	}
	if !res.Valid {
		msg := res.Error
		if msg == "" {
			msg = MsgUnreachable
		}
		return f.failURL(msg)
	}
	f.step = StepSecurity
	return nil
}

// Retry clears the URL and its error so the user can type again.
func (f *Flow) Retry() error {
	if err := f.expect(StepDASTURL); err != nil {
		return err
	}
	f.url, f.urlErr = "", ""
	return nil
}

// SkipDAST gives up on the deployment URL and moves on without DAST.
func (f *Flow) SkipDAST() error {
	if err := f.expect(StepDASTURL); err != nil {
		return err
	}
	f.dastEnabled = false
	f.url, f.urlErr = "", ""
	f.step = StepSecurity
	return nil
}

// Back returns from dast-url to the dast question.
func (f *Flow) Back() error {
	if err := f.expect(StepDASTURL); err != nil {
		return err
	}
	f.urlErr = ""
	f.step = StepDAST
	return nil
}

// Decline answers "No" at the security step. Nothing is sent.
func (f *Flow) Decline() error {
	if err := f.expect(StepSecurity); err != nil {
		return err
	}
	f.step = StepCancelled
	return nil
}

// Cancel closes the flow from any non-terminal step without side effects.
func (f *Flow) Cancel() {
	if !f.step.Terminal() {
		f.step = StepCancelled
	}
}

// Reset discards all in-progress state and returns to the dast step.
func (f *Flow) Reset() {
	f.step = StepDAST
	f.dastEnabled = false
	f.url, f.urlErr = "", ""
	f.session = nil
}

// Request is the payload Confirm would submit in the current state.
func (f *Flow) Request() models.ScanRequest {
	var deployment string
	if f.dastEnabled {
		deployment = strings.TrimSpace(f.url)
	}
	return models.NewScanRequest(f.project, deployment)
}

// Confirm answers "Yes" at the security step and submits the scan.
// A failed submission notifies the user, resets the flow and returns
// ErrSubmitFailed.
func (f *Flow) Confirm(ctx context.Context) (*models.ScanSession, error) {
	if err := f.expect(StepSecurity); err != nil {
		return nil, err
	}
	req := f.Request()
	resp, err := f.backend.SubmitScan(ctx, req)
	if err != nil {
		slog.Warn("scanflow: scan submission failed", "project_id", f.project.ID, "error", err)
		f.notify(ctx, notify.Event{
			Type:      notify.EventSubmitFailed,
			Level:     notify.LevelError,
			Body:      MsgSubmitFailed,
			ProjectID: f.project.ID,
		})
		f.Reset()
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	now := time.Now().UTC()
	status := models.ScanNotStarted
	if resp.ScanID != "" {
		status = models.ScanRunning
	}
	f.session = &models.ScanSession{
		ScanID:        resp.ScanID,
		ProjectID:     f.project.ID,
		ProjectName:   req.ProjectName,
		ProjectType:   req.ProjectType,
		DASTEnabled:   req.DeploymentURL != "",
		DeploymentURL: req.DeploymentURL,
		Status:        status,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	f.step = StepSubmitted
	f.notify(ctx, notify.Event{
		Type:      notify.EventScanSubmitted,
		Level:     notify.LevelInfo,
		Body:      fmt.Sprintf("Scan submitted for %s", req.ProjectName),
		ScanID:    resp.ScanID,
		ProjectID: f.project.ID,
	})
	return f.session, nil
}

// Wait polls the submitted scan until it reaches a terminal status, the
// attempts run out, a status request fails or ctx is done. The session's
// status is updated from the outcome.
func (f *Flow) Wait(ctx context.Context) (*Result, error) {
	if f.step != StepSubmitted || f.session == nil {
		return nil, fmt.Errorf("%w: no submitted scan", ErrInvalidTransition)
	}
	if f.session.ScanID == "" {
		return &Result{Status: f.session.Status}, nil
	}
	res, err := Poll(ctx, f.backend, f.session.ScanID, f.poll)
	if res != nil {
		f.session.Status = res.Status
		f.session.Phase = res.Phase
		f.session.UpdatedAt = time.Now().UTC()
		f.notifyOutcome(ctx, res)
	}
	return res, err
}

func (f *Flow) notifyOutcome(ctx context.Context, res *Result) {
	evt := notify.Event{ScanID: res.ScanID, ProjectID: f.project.ID, Metadata: map[string]any{"polls": res.Polls}}
	switch {
	case res.Status == models.ScanCompleted:
		evt.Type, evt.Level, evt.Body = notify.EventScanCompleted, notify.LevelSuccess, "Scan completed"
	case res.Status == models.ScanFailed:
		evt.Type, evt.Level, evt.Body = notify.EventScanFailed, notify.LevelError, "Scan failed"
	case res.TimedOut:
		evt.Type, evt.Level, evt.Body = notify.EventScanTimedOut, notify.LevelInfo, "Scan is still running"
	default:
		return
	}
	f.notify(ctx, evt)
}

func (f *Flow) notify(ctx context.Context, evt notify.Event) {
	if f.notifier != nil {
		f.notifier.Notify(ctx, evt)
	}
}

func (f *Flow) failURL(msg string) error {
	f.urlErr = msg
	return &URLError{Msg: msg}
}

func (f *Flow) expect(s Step) error {
	if f.step != s {
		return fmt.Errorf("%w: in step %q, want %q", ErrInvalidTransition, f.step, s)
	}
	return nil
}

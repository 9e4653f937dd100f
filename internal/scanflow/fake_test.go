package scanflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/notify"
	"github.com/deplai/deplai-connector/internal/urlcheck"
	"github.com/deplai/deplai-connector/models"
)

// fakeBackend serves scripted answers. statuses[i] is returned for poll i+1;
// the last entry repeats once the script runs out.
type fakeBackend struct {
	mu sync.Mutex

	urlResult *urlcheck.Result
	urlErr    error
	urlCalls  []string

	submitResp *backend.ValidateResponse
	submitErr  error
	submitted  []models.ScanRequest

	statuses    []string
	statusErrAt int // 1-based poll that fails; 0 = never
	statusCalls int

	results      json.RawMessage
	resultsErr   error
	resultsCalls int

	onStatus func(call int)
}

func (f *fakeBackend) ValidateURL(_ context.Context, rawURL string) (*urlcheck.Result, error) {
	f.urlCalls = append(f.urlCalls, rawURL)
	if f.urlErr != nil {
		return nil, f.urlErr
	}
	if f.urlResult == nil {
		return &urlcheck.Result{Valid: true}, nil
	}
	return f.urlResult, nil
}

func (f *fakeBackend) SubmitScan(_ context.Context, req models.ScanRequest) (*backend.ValidateResponse, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitResp == nil {
		return &backend.ValidateResponse{Success: true, ScanID: "scan-1", Status: "running"}, nil
	}
	return f.submitResp, nil
}

func (f *fakeBackend) ScanStatus(_ context.Context, _ string) (*backend.StatusView, error) {
	f.mu.Lock()
	f.statusCalls++
	call := f.statusCalls
	f.mu.Unlock()
	if f.onStatus != nil {
		f.onStatus(call)
	}
	if f.statusErrAt != 0 && call == f.statusErrAt {
		return nil, errors.New("gateway returned 502")
	}
	idx := call - 1
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	return &backend.StatusView{Status: f.statuses[idx], CurrentPhase: "analysis"}, nil
}

func (f *fakeBackend) ScanResults(_ context.Context, _ string) (json.RawMessage, error) {
	f.resultsCalls++
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	return f.results, nil
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}

type recordingNotifier struct{ events []notify.Event }

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) {
	r.events = append(r.events, evt)
}

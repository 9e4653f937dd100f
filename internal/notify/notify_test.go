package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	name   string
	events []Event
	err    error
}

func (c *recordingChannel) Name() string       { return c.name }
func (c *recordingChannel) IsConfigured() bool { return true }
func (c *recordingChannel) Send(_ context.Context, evt Event) error {
	c.events = append(c.events, evt)
	return c.err
}

func TestDispatcherFiltersConfiguredChannelsOnly(t *testing.T) {
	var hooked []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type string `json:"type"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		hooked = append(hooked, body.Type)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	rec := &recordingChannel{name: "rec"}
	d := NewDispatcher(config.NotifyConfig{
		Events:  []string{EventScanCompleted},
		Webhook: config.WebhookNotifyConfig{URL: srv.URL},
	}, rec)
	require.True(t, d.IsAnyConfigured())

	d.Notify(context.Background(), Event{Type: EventScanCompleted})
	d.Notify(context.Background(), Event{Type: EventSubmitFailed})

	assert.Equal(t, []string{EventScanCompleted}, hooked)
	require.Len(t, rec.events, 2)
	assert.Equal(t, EventSubmitFailed, rec.events[1].Type)
}

func TestDispatcherEventFilterKeepsTerminalNotices(t *testing.T) {
	var out bytes.Buffer
	d := NewDispatcher(config.NotifyConfig{Events: []string{EventScanCompleted}}, NewTerminal(&out))

	d.Notify(context.Background(), Event{Type: EventSubmitFailed, Level: LevelError, Title: "Scan not started", Body: "submission failed"})
	assert.Contains(t, out.String(), "submission failed")
}

func TestDispatcherKeepsGoingAfterChannelError(t *testing.T) {
	bad := &recordingChannel{name: "bad", err: errors.New("boom")}
	good := &recordingChannel{name: "good"}
	d := NewDispatcher(config.NotifyConfig{}, bad, good)

	d.Notify(context.Background(), Event{Type: EventSubmitFailed})
	assert.Len(t, bad.events, 1)
	assert.Len(t, good.events, 1)
}

func TestDispatcherWithoutChannels(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{})
	assert.False(t, d.IsAnyConfigured())
	d.Notify(context.Background(), Event{Type: EventScanFailed})

	var nilDispatcher *Dispatcher
	nilDispatcher.Notify(context.Background(), Event{})
}

func TestWebhookSignsPayload(t *testing.T) {
	var got map[string]any
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		sig = r.Header.Get(SignatureHeader)
		assert.Equal(t, "sha256="+Sign("hush", body), sig)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: "hush"})
	w.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	err := w.Send(context.Background(), Event{
		Type: EventScanCompleted, Level: LevelSuccess, ScanID: "scan-1", ProjectID: "p-1",
		Metadata: map[string]any{"polls": 3},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, "scan.completed", got["type"])
	assert.Equal(t, "scan-1", got["scan_id"])
	assert.Equal(t, "2025-01-01T00:00:00Z", got["ts"])
	assert.Equal(t, map[string]any{"polls": float64(3)}, got["metadata"])
}

func TestWebhookReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL}).Send(context.Background(), Event{Type: EventScanFailed})
	assert.EqualError(t, err, "webhook returned 502")
}

func TestTerminalRendersNotice(t *testing.T) {
	var buf bytes.Buffer
	ch := NewTerminal(&buf)
	require.True(t, ch.IsConfigured())
	require.NoError(t, ch.Send(context.Background(), Event{
		Level: LevelError,
		Body:  "Failed to connect to the backend. Please ensure the server is running.",
	}))
	assert.True(t, strings.Contains(buf.String(), "Failed to connect to the backend."))
}

package gateway

import (
	"context"
	"errors"
	"testing"
)

func TestHealthMonitorReportsOnlyChanges(t *testing.T) {
	var probeErr error
	var changes []string
	m := newHealthMonitor("", func(context.Context) error { return probeErr },
		func(state, _ string) { changes = append(changes, state) })

	if state, _, last := m.snapshot(); state != backendUnknown || !last.IsZero() {
		t.Fatalf("expected unknown before first probe, got %s %v", state, last)
	}

	ctx := context.Background()
	m.check(ctx)
	m.check(ctx)
	probeErr = errors.New("connection refused")
	m.check(ctx)
	probeErr = nil
	m.check(ctx)

	want := []string{backendUp, backendDown, backendUp}
	if len(changes) != len(want) {
		t.Fatalf("expected %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, changes)
		}
	}
}

func TestHealthMonitorRecordsProbeError(t *testing.T) {
	m := newHealthMonitor("", func(context.Context) error { return errors.New("timeout") }, nil)
	m.check(context.Background())
	state, detail, last := m.snapshot()
	if state != backendDown || detail != "timeout" || last.IsZero() {
		t.Fatalf("unexpected snapshot: %s %q %v", state, detail, last)
	}
}

func TestHealthMonitorRejectsBadSchedule(t *testing.T) {
	m := newHealthMonitor("every now and then", func(context.Context) error { return nil }, nil)
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestHealthMonitorSkipsAfterCancel(t *testing.T) {
	called := false
	m := newHealthMonitor("", func(context.Context) error { called = true; return nil }, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.check(ctx)
	if called {
		t.Fatal("probe ran after cancellation")
	}
}

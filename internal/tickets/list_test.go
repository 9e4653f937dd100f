package tickets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	seed := []Report{
		{Fingerprint: "a", ProjectID: "p1", Severity: "HIGH", LastSeen: "2025-01-01T00:00:00Z"},
		{Fingerprint: "b", ProjectID: "p1", Severity: "low", LastSeen: "2025-01-03T00:00:00Z"},
		{Fingerprint: "c", ProjectID: "p1", Severity: "high", LastSeen: "2025-01-02T00:00:00Z"},
		{Fingerprint: "d", ProjectID: "p2", Severity: "high", LastSeen: "2025-01-04T00:00:00Z"},
	}
	for _, r := range seed {
		_, err := svc.Upsert(ctx, r)
		require.NoError(t, err)
	}

	items, total, err := svc.List(ctx, Filter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{items[0].Fingerprint, items[1].Fingerprint, items[2].Fingerprint})

	items, total, err = svc.List(ctx, Filter{ProjectID: "p1", Severity: "High"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = svc.List(ctx, Filter{Status: "open", Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Fingerprint)
}

func TestListMinSeverityNormalisesSpellings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for fp, sev := range map[string]string{"a": "CRITICAL", "b": "error", "c": "moderate", "d": "low", "e": "p0"} {
		_, err := svc.Upsert(ctx, Report{Fingerprint: fp, ProjectID: "p", Severity: sev})
		require.NoError(t, err)
	}

	_, total, err := svc.List(ctx, Filter{MinSeverity: "high"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, total, err = svc.List(ctx, Filter{MinSeverity: "Medium"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, total, err = svc.List(ctx, Filter{MinSeverity: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestGetUnknownTicket(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

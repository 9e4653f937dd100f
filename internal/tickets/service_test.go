package tickets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, database.DB) {
	t.Helper()
	db, err := database.NewSQLite(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "tickets.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return NewService(db), db
}

func fixedClock(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func countTickets(t *testing.T, db database.DB) int {
	t.Helper()
	var n struct {
		N int `db:"n"`
	}
	require.NoError(t, db.Get(context.Background(), &n, `SELECT COUNT(*) AS n FROM tickets`))
	return n.N
}

func TestUpsertCreatesOpenTicketWithEqualTimestamps(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Date(2025, 5, 4, 12, 30, 15, 0, time.UTC)
	svc.now = fixedClock(now)

	res, err := svc.Upsert(context.Background(), Report{
		Fingerprint: "fp-1", Title: "Hardcoded secret", Severity: "high",
		Category: "secrets", Location: "config.py:12", ProjectID: "proj-1", RepositoryID: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, MessageCreated, res.Message)
	assert.True(t, res.Created)
	require.NotEmpty(t, res.TicketID)

	got, err := svc.Get(context.Background(), res.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketOpen, got.Status)
	assert.True(t, got.FirstSeen.Equal(got.LastSeen), "first_seen %s != last_seen %s", got.FirstSeen, got.LastSeen)
	assert.True(t, got.FirstSeen.Equal(now))
	assert.Equal(t, "42", got.RepositoryID)
	assert.Equal(t, 1, countTickets(t, db))
}

func TestUpsertRepeatOnlyRefreshesLastSeenAndReopens(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	first, err := svc.Upsert(ctx, Report{
		Fingerprint: "fp-1", Title: "SQL injection", Severity: "critical",
		Category: "sast", Location: "db.go:10", ProjectID: "proj-1",
		FirstSeen: "2025-01-01T00:00:00Z", LastSeen: "2025-01-01T00:00:00Z",
	})
	require.NoError(t, err)

	_, err = db.Exec(ctx, `UPDATE tickets SET status = 'RESOLVED' WHERE id = ?`, first.TicketID)
	require.NoError(t, err)

	second, err := svc.Upsert(ctx, Report{
		Fingerprint: "fp-1", Title: "different title", Severity: "low",
		Category: "other", Location: "elsewhere", ProjectID: "proj-1",
		FirstSeen: "2025-02-01T00:00:00Z", LastSeen: "2025-02-02T08:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, MessageUpdated, second.Message)
	assert.False(t, second.Created)
	assert.Equal(t, first.TicketID, second.TicketID)

	got, err := svc.Get(ctx, first.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketOpen, got.Status)
	assert.Equal(t, "SQL injection", got.Title)
	assert.Equal(t, "critical", got.Severity)
	assert.Equal(t, "sast", got.Category)
	assert.Equal(t, "db.go:10", got.Location)
	assert.True(t, got.FirstSeen.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, got.LastSeen.Equal(time.Date(2025, 2, 2, 8, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, countTickets(t, db))
}

func TestUpsertSameReportTwiceKeepsOneRow(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	report := Report{Fingerprint: "fp-dup", Title: "XSS", ProjectID: "proj-9"}
	a, err := svc.Upsert(ctx, report)
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	b, err := svc.Upsert(ctx, report)
	require.NoError(t, err)

	assert.Equal(t, a.TicketID, b.TicketID)
	assert.Equal(t, 1, countTickets(t, db))

	got, err := svc.Get(ctx, a.TicketID)
	require.NoError(t, err)
	assert.True(t, got.LastSeen.After(got.FirstSeen), "last_seen should advance")
}

func TestUpsertEntityIDIsFingerprintAlias(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Upsert(ctx, Report{EntityID: "legacy-1", ProjectID: "p"})
	require.NoError(t, err)
	b, err := svc.Upsert(ctx, Report{Fingerprint: "legacy-1", ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, a.TicketID, b.TicketID)
	assert.Equal(t, MessageUpdated, b.Message)

	// fingerprint wins when both are present
	c, err := svc.Upsert(ctx, Report{Fingerprint: "new-fp", EntityID: "legacy-1", ProjectID: "p"})
	require.NoError(t, err)
	assert.Equal(t, MessageCreated, c.Message)
}

func TestUpsertSameFingerprintDifferentProjectsAreDistinct(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	_, err := svc.Upsert(ctx, Report{Fingerprint: "fp", ProjectID: "a"})
	require.NoError(t, err)
	res, err := svc.Upsert(ctx, Report{Fingerprint: "fp", ProjectID: "b"})
	require.NoError(t, err)
	assert.Equal(t, MessageCreated, res.Message)
	assert.Equal(t, 2, countTickets(t, db))
}

// storageTrap fails on any storage call; validation must happen first.
type storageTrap struct{ database.DB }

func TestUpsertValidationDoesNotTouchStorage(t *testing.T) {
	svc := NewService(storageTrap{})
	cases := []Report{
		{ProjectID: "p"},
		{Fingerprint: "fp"},
		{Fingerprint: "   ", EntityID: "", ProjectID: "p"},
		{Fingerprint: "fp", ProjectID: "p", FirstSeen: "yesterday"},
		{Fingerprint: "fp", ProjectID: "p", LastSeen: "13/45/2025"},
	}
	for i, r := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := svc.Upsert(context.Background(), r)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
		})
	}
	_, err := svc.Upsert(context.Background(), Report{})
	assert.EqualError(t, err, "fingerprint (or entity_id) and project_id are required")
}

func TestUpsertConcurrentReportsCreateOneTicket(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	results := make([]*UpsertResult, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Upsert(ctx, Report{Fingerprint: "race", ProjectID: "p"})
		}(i)
	}
	wg.Wait()

	created := 0
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].TicketID, results[i].TicketID)
		if results[i].Created {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countTickets(t, db))
}

func TestParseTimestampLayouts(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)
	for raw, want := range map[string]time.Time{
		"":                          now.Truncate(time.Second),
		"2025-03-04T05:06:07Z":      time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		"2025-03-04T07:06:07+02:00": time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		"2025-03-04T05:06:07.123":   time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		"2025-03-04 05:06:07":       time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC),
		"2025-03-04":                time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
	} {
		got, err := parseTimestamp(raw, now)
		require.NoError(t, err, raw)
		assert.True(t, got.Equal(want), "%q: got %s want %s", raw, got, want)
	}
}

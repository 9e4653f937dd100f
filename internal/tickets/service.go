// Package tickets deduplicates finding reports into tickets keyed by
// (project_id, fingerprint).
package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/models"
	"github.com/google/uuid"
)

const (
	MessageCreated = "Ticket created"
	MessageUpdated = "Ticket updated"

	table = "tickets"
)

var dedupKey = []string{"project_id", "fingerprint"}

// ErrNotFound is returned by Get for unknown ticket ids.
var ErrNotFound = errors.New("ticket not found")

// ValidationError is returned before any storage access when a report is
// missing required fields or carries malformed values.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Report is a single finding observation as posted by scanners.
type Report struct {
	Fingerprint  string            `json:"fingerprint"`
	EntityID     string            `json:"entity_id"` // legacy name for fingerprint
	Title        string            `json:"title"`
	Severity     string            `json:"severity"`
	Category     string            `json:"category"`
	Location     string            `json:"location"`
	ProjectID    models.FlexString `json:"project_id"`
	RepositoryID models.FlexString `json:"repository_id"`
	FirstSeen    string            `json:"first_seen,omitempty"`
	LastSeen     string            `json:"last_seen,omitempty"`
}

// Key returns the dedup fingerprint, preferring fingerprint over entity_id.
func (r Report) Key() string {
	if fp := strings.TrimSpace(r.Fingerprint); fp != "" {
		return fp
	}
	return strings.TrimSpace(r.EntityID)
}

// UpsertResult is the response body of POST /api/tickets.
type UpsertResult struct {
	Message  string `json:"message"`
	TicketID string `json:"ticket_id"`
	Created  bool   `json:"-"`
}

// Service owns the tickets table.
type Service struct {
	db    database.DB
	now   func() time.Time
	newID func() string
}

// NewService returns a Service writing to db.
func NewService(db database.DB) *Service {
	return &Service{db: db, now: time.Now, newID: uuid.NewString}
}

// Upsert records one observation of a finding. A new (project_id, key) pair
// creates an OPEN ticket; a known pair only refreshes last_seen and reopens.
//
// The existence check is the insert itself (ON CONFLICT DO NOTHING), so two
// concurrent reports for the same key can never produce two rows.
func (s *Service) Upsert(ctx context.Context, r Report) (*UpsertResult, error) {
	key := r.Key()
	projectID := strings.TrimSpace(r.ProjectID.String())
	if key == "" || projectID == "" {
		return nil, &ValidationError{Msg: "fingerprint (or entity_id) and project_id are required"}
	}

	now := s.now()
	firstSeen, err := parseTimestamp(r.FirstSeen, now)
	if err != nil {
		return nil, &ValidationError{Msg: "invalid first_seen timestamp"}
	}
	lastSeen, err := parseTimestamp(r.LastSeen, now)
	if err != nil {
		return nil, &ValidationError{Msg: "invalid last_seen timestamp"}
	}

	t := models.Ticket{
		ID:           s.newID(),
		Fingerprint:  key,
		Title:        r.Title,
		Severity:     r.Severity,
		Status:       models.TicketOpen,
		Category:     r.Category,
		Location:     r.Location,
		ProjectID:    projectID,
		RepositoryID: strings.TrimSpace(r.RepositoryID.String()),
		FirstSeen:    firstSeen,
		LastSeen:     lastSeen,
	}
	inserted, err := s.db.InsertIfAbsent(ctx, table, t, dedupKey)
	if err != nil {
		return nil, fmt.Errorf("inserting ticket: %w", err)
	}
	if inserted {
		return &UpsertResult{Message: MessageCreated, TicketID: t.ID, Created: true}, nil
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE tickets SET last_seen = ?, status = ? WHERE project_id = ? AND fingerprint = ?`,
		lastSeen, string(models.TicketOpen), projectID, key,
	); err != nil {
		return nil, fmt.Errorf("updating ticket: %w", err)
	}

	var row struct {
		ID string `db:"id"`
	}
	if err := s.db.Get(ctx, &row,
		`SELECT id FROM tickets WHERE project_id = ? AND fingerprint = ?`, projectID, key,
	); err != nil {
		return nil, fmt.Errorf("loading ticket id: %w", err)
	}
	return &UpsertResult{Message: MessageUpdated, TicketID: row.ID}, nil
}

// Get returns a single ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Ticket, error) {
	var t models.Ticket
	err := s.db.Get(ctx, &t, `SELECT `+models.TicketColumns+` FROM tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading ticket %s: %w", id, err)
	}
	return &t, nil
}

// parseTimestamp accepts the formats scanners actually send. Empty means now.
// Values are normalised to UTC seconds so every driver stores the same thing.
func parseTimestamp(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC().Truncate(time.Second), nil
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

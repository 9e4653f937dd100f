package models

import "time"

// TicketStatus is the lifecycle state of a ticket. Ingestion only ever
// writes TicketOpen; the other states are set by triage tooling.
type TicketStatus string

const (
	TicketOpen     TicketStatus = "OPEN"
	TicketResolved TicketStatus = "RESOLVED"
	TicketIgnored  TicketStatus = "IGNORED"
)

// Ticket is a deduplicated finding, unique per (project_id, fingerprint).
type Ticket struct {
	ID           string       `json:"id"            db:"id"`
	Fingerprint  string       `json:"fingerprint"   db:"fingerprint"`
	Title        string       `json:"title"         db:"title"`
	Severity     string       `json:"severity"      db:"severity"`
	Status       TicketStatus `json:"status"        db:"status"`
	Category     string       `json:"category"      db:"category"`
	Location     string       `json:"location"      db:"location"`
	ProjectID    string       `json:"project_id"    db:"project_id"`
	RepositoryID string       `json:"repository_id" db:"repository_id"`
	FirstSeen    time.Time    `json:"first_seen"    db:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"     db:"last_seen"`
}

// TicketColumns lists the tickets table columns in Ticket field order.
// Single-row reads scan positionally, so SELECTs must use this order.
const TicketColumns = "id, fingerprint, title, severity, status, category, location, project_id, repository_id, first_seen, last_seen"

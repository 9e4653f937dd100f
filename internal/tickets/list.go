package tickets

import (
	"context"
	"fmt"
	"strings"

	"github.com/deplai/deplai-connector/models"
)

// Filter narrows List results. Zero values match everything.
type Filter struct {
	ProjectID string
	Status    string
	Severity  string
	// MinSeverity keeps tickets at or above this level, whatever spelling
	// the scanner used (see models.MapSeverity).
	MinSeverity string
	Limit       int
	Offset      int
}

func (f Filter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if v := strings.TrimSpace(f.ProjectID); v != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(f.Status); v != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, strings.ToUpper(v))
	}
	if v := strings.TrimSpace(f.Severity); v != "" {
		clauses = append(clauses, "LOWER(severity) = ?")
		args = append(args, strings.ToLower(v))
	}
	if v := strings.TrimSpace(f.MinSeverity); v != "" {
		levels := models.SeveritiesAtLeast(models.MapSeverity(v))
		if len(levels) == 0 {
			clauses = append(clauses, "1 = 0")
		} else {
			clauses = append(clauses, "LOWER(severity) IN (?"+strings.Repeat(", ?", len(levels)-1)+")")
			for _, l := range levels {
				args = append(args, l)
			}
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns tickets matching f, most recently seen first, plus the total
// number of matches ignoring Limit/Offset.
func (s *Service) List(ctx context.Context, f Filter) ([]models.Ticket, int, error) {
	where, args := f.where()

	var total struct {
		N int `db:"n"`
	}
	if err := s.db.Get(ctx, &total, `SELECT COUNT(*) AS n FROM tickets`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("counting tickets: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + models.TicketColumns + ` FROM tickets` + where +
		` ORDER BY last_seen DESC, id ASC LIMIT ? OFFSET ?`
	out := make([]models.Ticket, 0, limit)
	if err := s.db.Select(ctx, &out, query, append(args, limit, f.Offset)...); err != nil {
		return nil, 0, fmt.Errorf("listing tickets: %w", err)
	}
	return out, total.N, nil
}

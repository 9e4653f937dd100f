package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/deplai/deplai-connector/internal/tickets"
	"github.com/deplai/deplai-connector/models"
)

const (
	ticketsDefaultPageSize = 50
	ticketsMaxPageSize     = 500
)

// handleUpsertTicket implements POST /api/tickets.
func (gw *Gateway) handleUpsertTicket(w http.ResponseWriter, r *http.Request) {
	var report tickets.Report
	if err := decodeJSON(r, &report); err != nil {
		gw.metrics.tickets.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	res, err := gw.tickets.Upsert(r.Context(), report)
	if err != nil {
		var verr *tickets.ValidationError
		if errors.As(err, &verr) {
			gw.metrics.tickets.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, verr.Msg)
			return
		}
		gw.metrics.tickets.WithLabelValues("error").Inc()
		slog.Error("gateway: ticket upsert failed",
			"project_id", report.ProjectID.String(), "fingerprint", report.Key(), "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	outcome := "updated"
	if res.Created {
		outcome = "created"
	}
	gw.metrics.tickets.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusOK, res)
}

// handleListTickets implements GET /api/tickets.
func (gw *Gateway) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := parsePaginationParams(r, ticketsDefaultPageSize, ticketsMaxPageSize)
	minSeverity := strings.TrimSpace(q.Get("min_severity"))
	if minSeverity != "" && models.MapSeverity(minSeverity) == models.SeverityUnknown {
		writeError(w, http.StatusBadRequest, "invalid min_severity")
		return
	}
	items, total, err := gw.tickets.List(r.Context(), tickets.Filter{
		ProjectID:   q.Get("project_id"),
		Status:      q.Get("status"),
		Severity:    q.Get("severity"),
		MinSeverity: minSeverity,
		Limit:       p.PageSize,
		Offset:      p.Offset,
	})
	if err != nil {
		slog.Error("gateway: listing tickets failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, newPaginationResult[models.Ticket](items, p, total))
}

// handleGetTicket implements GET /api/tickets/{id}.
func (gw *Gateway) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	t, err := gw.tickets.Get(r.Context(), id)
	if errors.Is(err, tickets.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Ticket not found")
		return
	}
	if err != nil {
		slog.Error("gateway: loading ticket failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

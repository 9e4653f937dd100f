package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
)

// buildHandler wires all REST and SSE routes onto a new ServeMux, wrapped
// in session resolution, request metrics and CORS for the dashboard origins.
// Uses Go 1.22+ method-prefixed patterns ("GET /path", "POST /path").
func buildHandler(gw *Gateway) http.Handler {
	mux := http.NewServeMux()

	// Root / health / metrics
	mux.HandleFunc("GET /{$}", gw.handleRoot)
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.Handle("GET /metrics", gw.metrics.handler())

	// Tickets
	mux.HandleFunc("POST /api/tickets", gw.handleUpsertTicket)
	mux.HandleFunc("GET /api/tickets", gw.handleListTickets)
	mux.HandleFunc("GET /api/tickets/{id}", gw.handleGetTicket)

	// Scan orchestration
	mux.HandleFunc("POST /api/validate-url", gw.handleValidateURL)
	mux.HandleFunc("POST /api/scan/validate", gw.handleScanValidate)
	mux.HandleFunc("GET /api/scan/status/{scanId}", gw.handleScanStatus)
	mux.HandleFunc("GET /api/scan/results/{scanId}", gw.handleScanResults)
	mux.HandleFunc("POST /api/scan/{scanId}/hitl-decision", gw.handleHITLDecision)
	mux.HandleFunc("GET /api/scan/sessions", gw.handleListSessions)

	// Server-Sent Events stream
	mux.HandleFunc("GET /events", gw.handleEvents)

	c := cors.New(cors.Options{
		AllowedOrigins:   gw.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(gw.metrics.instrument(gw.authenticate(mux)))
}

func (gw *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "deplai gateway",
		"status": "running",
		"endpoints": []string{
			"GET /health",
			"GET /metrics",
			"POST /api/tickets",
			"GET /api/tickets",
			"GET /api/tickets/{id}",
			"POST /api/validate-url",
			"POST /api/scan/validate",
			"GET /api/scan/status/{scanId}",
			"GET /api/scan/results/{scanId}",
			"POST /api/scan/{scanId}/hitl-decision",
			"GET /api/scan/sessions",
			"GET /events",
		},
	})
}

func (gw *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs := gw.healthStatus(r.Context())
	status := http.StatusOK
	if hs.Database != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, hs)
}

func (gw *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if behind a proxy

	ch := gw.broadcaster.subscribe()
	defer gw.broadcaster.unsubscribe(ch)

	// Send initial connected event with current health.
	connected, _ := json.Marshal(SSEEvent{Type: "connected", Payload: gw.healthStatus(r.Context())})
	// SSE endpoint writes JSON event frames, not HTML.
	// nosemgrep: go.lang.security.audit.xss.no-fprintf-to-responsewriter.no-fprintf-to-responsewriter
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			// nosemgrep: go.lang.security.audit.xss.no-direct-write-to-responsewriter.no-direct-write-to-responsewriter
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

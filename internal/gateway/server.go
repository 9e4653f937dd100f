package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/deplai/deplai-connector/internal/auth"
	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/internal/notify"
	"github.com/deplai/deplai-connector/internal/repository"
	"github.com/deplai/deplai-connector/internal/tickets"
	"github.com/deplai/deplai-connector/internal/urlcheck"
)

// Gateway is the DeplAI backend-for-frontend. It combines:
//   - the ticket upsert service (relational store)
//   - the scan submission path and status/results proxies to the scan backend
//   - a REST + SSE HTTP server for the dashboard
//   - a cron-driven health monitor for the scan backend
type Gateway struct {
	cfg           *config.Config
	db            database.DB
	tickets       *tickets.Service
	checker       *urlcheck.Checker
	backend       *backend.Client
	installations repository.Installations
	auth          auth.Resolver
	notifier      notify.Notifier
	sessions      *sessionRegistry
	broadcaster   *Broadcaster
	monitor       *HealthMonitor
	metrics       *metrics
	startedAt     time.Time
}

// New creates a Gateway. Call Start() to begin serving.
// GitHub submissions are rejected with 502 until SetInstallations is
// called with a configured GitHub App.
func New(cfg *config.Config, db database.DB) *Gateway {
	gw := &Gateway{
		cfg:         cfg,
		db:          db,
		tickets:     tickets.NewService(db),
		checker:     urlcheck.New(cfg.Scan.ProbeTimeout),
		backend:     backend.New(cfg.Backend),
		auth:        auth.NewCookieSessions(cfg.Auth),
		notifier:    notify.NewDispatcher(cfg.Notify),
		sessions:    newSessionRegistry(cfg.Scan.SessionTTL),
		broadcaster: newBroadcaster(),
		startedAt:   time.Now(),
	}
	gw.metrics = newMetrics(gw)
	gw.monitor = newHealthMonitor(cfg.Monitor.HealthExpr, gw.backend.Health, gw.onBackendHealth)
	return gw
}

// SetInstallations wires the GitHub App used for github-type submissions.
func (gw *Gateway) SetInstallations(i repository.Installations) { gw.installations = i }

// SetAuth replaces the session resolver.
func (gw *Gateway) SetAuth(r auth.Resolver) { gw.auth = r }

// SetNotifier replaces the notification dispatcher.
func (gw *Gateway) SetNotifier(n notify.Notifier) { gw.notifier = n }

// Start runs the gateway until ctx is cancelled. It:
//  1. Starts the backend health monitor
//  2. Binds the HTTP server (blocks until shutdown)
func (gw *Gateway) Start(ctx context.Context) error {
	port := gw.cfg.Server.Port
	if port == 0 {
		port = 3000
	}
	host := gw.cfg.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	if err := gw.monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting health monitor: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           buildHandler(gw),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down HTTP server when ctx is cancelled.
	go func() {
		<-ctx.Done()
		gw.monitor.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway: listening", "addr", "http://"+addr, "backend", gw.backend.BaseURL())
	gw.broadcaster.send(SSEEvent{
		Type:    "gateway.started",
		Payload: map[string]string{"addr": "http://" + addr},
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (gw *Gateway) onBackendHealth(state, detail string) {
	if state == backendUp {
		gw.metrics.backendUp.Set(1)
	} else {
		gw.metrics.backendUp.Set(0)
	}
	gw.broadcaster.send(SSEEvent{Type: "backend.health", Payload: map[string]string{"state": state, "error": detail}})
	if state == backendDown {
		gw.notifier.Notify(context.Background(), notify.Event{
			Type:  notify.EventBackendUnhealthy,
			Level: notify.LevelError,
			Title: "Scan backend unreachable",
			Body:  detail,
			URL:   gw.backend.BaseURL(),
		})
	}
}

// healthStatus combines a database ping with the monitor's last probe.
func (gw *Gateway) healthStatus(ctx context.Context) HealthStatus {
	hs := HealthStatus{
		Status:        "ok",
		Database:      "ok",
		BackendURL:    gw.backend.BaseURL(),
		UptimeSeconds: int64(time.Since(gw.startedAt).Seconds()),
	}
	if err := gw.db.Ping(ctx); err != nil {
		slog.Warn("gateway: database ping failed", "error", err)
		hs.Status, hs.Database = "degraded", "unavailable"
	}
	state, detail, checked := gw.monitor.snapshot()
	hs.Backend, hs.BackendError = state, detail
	if !checked.IsZero() {
		hs.LastCheckedAt = &checked
	}
	if state == backendDown {
		hs.Status = "degraded"
	}
	return hs
}

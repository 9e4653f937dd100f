package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/internal/gateway"
	"github.com/deplai/deplai-connector/internal/repository"
	"github.com/spf13/cobra"
)

var (
	servePort   int
	serveLogDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DeplAI gateway",
	Long: `Starts the DeplAI backend-for-frontend: a long-running HTTP server the
dashboard talks to. The scan backend is reached at AGENTIC_LAYER_URL
(default: http://localhost:8000).

API reference:
  GET  /health                          database + scan backend health
  GET  /metrics                         Prometheus metrics
  POST /api/tickets                     upsert a finding into a ticket
  GET  /api/tickets                     list tickets (?project_id=&status=&severity=)
  GET  /api/tickets/{id}                get one ticket
  POST /api/validate-url                check a deployment URL is reachable
  POST /api/scan/validate               submit a scan (session required)
  GET  /api/scan/status/{scanId}        proxy scan status
  GET  /api/scan/results/{scanId}       proxy scan results
  POST /api/scan/{scanId}/hitl-decision approve or reject a paused scan
  GET  /api/scan/sessions               scans submitted by the caller
  GET  /events                          SSE stream of live events`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"HTTP port to listen on (default 3000, overrides config)")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "logs",
		"directory to write gateway logs for later inspection")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := cmd.OutOrStdout()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Fprintln(out, "\nShutting down gateway gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logFilePath, closeLog, err := setupServeFileLogger(serveLogDir)
	if err != nil {
		return fmt.Errorf("initialising gateway logger: %w", err)
	}
	defer closeLog()

	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Auth.SessionSecret == "" {
		slog.Warn("auth.session_secret is empty; every authenticated route will answer 401")
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	gw := gateway.New(cfg, db)
	app, err := repository.NewGitHubApp(cfg.GitHub)
	switch {
	case err == nil:
		gw.SetInstallations(app)
	case errors.Is(err, repository.ErrNotConfigured):
		slog.Warn("GitHub App not configured; github project scans will be rejected")
	default:
		return fmt.Errorf("configuring GitHub App: %w", err)
	}

	fmt.Fprintln(out, "deplai gateway starting")
	fmt.Fprintf(out, "  Database   : %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  Backend    : %s\n", cfg.Backend.URL)
	fmt.Fprintf(out, "  API        : http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Events     : http://%s:%d/events\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Fprintf(out, "  Logs       : %s\n\n", logFilePath)
	fmt.Fprintln(out, "Press Ctrl+C to stop gracefully.")
	fmt.Fprintln(out)

	slog.Info("gateway logger initialised", "file", logFilePath)
	return gw.Start(ctx)
}

func setupServeFileLogger(logDir string) (string, func(), error) {
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating log dir %s: %w", logDir, err)
	}

	ts := time.Now().UTC().Format("20060102-150405")
	runLogPath := filepath.Join(logDir, fmt.Sprintf("deplai-%s.log", ts))
	runFile, err := os.OpenFile(runLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("opening run log file: %w", err)
	}

	latestPath := filepath.Join(logDir, "deplai.log")
	latestFile, err := os.OpenFile(latestPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		_ = runFile.Close()
		return "", nil, fmt.Errorf("opening latest log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, runFile, latestFile), &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(handler))
	slog.SetLogLoggerLevel(level)

	cleanup := func() {
		_ = latestFile.Close()
		_ = runFile.Close()
	}
	return runLogPath, cleanup, nil
}

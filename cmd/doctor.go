package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deplai/deplai-connector/internal/backend"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/internal/repository"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Verify configuration, database and scan backend",
	Long: `Checks that the database can be reached, the scan backend answers
its health endpoint, and the GitHub App and session secret are set.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	allOK := true

	fmt.Fprintln(out, "=== deplai doctor ===")
	fmt.Fprintln(out)

	fmt.Fprint(out, "Database ................. ")
	db, err := database.New(cfg.Database)
	if err != nil {
		fmt.Fprintf(out, "FAIL (%s)\n", err)
		allOK = false
	} else {
		if err := db.Ping(ctx); err != nil {
			fmt.Fprintf(out, "FAIL (%s)\n", err)
			allOK = false
		} else {
			fmt.Fprintf(out, "OK (%s)\n", db.Driver())
		}
		db.Close()
	}

	fmt.Fprint(out, "Scan backend ............. ")
	client := backend.New(cfg.Backend)
	if err := client.Health(ctx); err != nil {
		fmt.Fprintf(out, "FAIL (%s)\n", err)
		allOK = false
	} else {
		fmt.Fprintf(out, "OK (%s)\n", client.BaseURL())
	}

	fmt.Fprint(out, "GitHub App ............... ")
	_, err = repository.NewGitHubApp(cfg.GitHub)
	switch {
	case err == nil:
		fmt.Fprintf(out, "OK (app %s)\n", cfg.GitHub.AppID)
	case errors.Is(err, repository.ErrNotConfigured):
		fmt.Fprintln(out, "WARN (not configured; github project scans will be rejected)")
		allOK = false
	default:
		fmt.Fprintf(out, "FAIL (%s)\n", err)
		allOK = false
	}

	fmt.Fprint(out, "Session secret ........... ")
	if cfg.Auth.SessionSecret == "" {
		fmt.Fprintln(out, "WARN (auth.session_secret empty; authenticated routes answer 401)")
		allOK = false
	} else {
		fmt.Fprintln(out, "OK")
	}

	fmt.Fprint(out, "Webhook notifications .... ")
	if cfg.Notify.Webhook.URL == "" {
		fmt.Fprintln(out, "disabled")
	} else {
		fmt.Fprintf(out, "OK (%s)\n", cfg.Notify.Webhook.URL)
	}

	fmt.Fprintln(out)
	if allOK {
		fmt.Fprintln(out, successStyle.Render("All checks passed; deplai is ready."))
	} else {
		fmt.Fprintln(out, warnStyle.Render("Some checks failed; see above."))
	}
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/notify"
	"github.com/deplai/deplai-connector/internal/scanflow"
	"github.com/deplai/deplai-connector/models"
	"github.com/spf13/cobra"
)

var (
	scanProjectID      string
	scanProjectName    string
	scanProjectType    string
	scanInstallationID string
	scanOwner          string
	scanRepo           string
	scanDeploymentURL  string
	scanYes            bool
	scanWait           bool
	scanGateway        string
	scanToken          string
	scanOutputFmt      string
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Request a security scan for a project",
	Long: `Walks through the scan request: optional DAST against a deployed URL,
confirmation, submission to the gateway, then polls the scan status.

Without --yes the questions are asked interactively; with --yes the
answers come from flags.

Examples:
  deplai scan --project-id 42 --project-name shop
  deplai scan --project-id 7 --type github --installation-id 123 --owner acme --repo web
  deplai scan --project-id 42 --url https://shop.example.com --yes --output json`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanProjectID, "project-id", "", "Project id (required)")
	f.StringVar(&scanProjectName, "project-name", "", "Project name")
	f.StringVar(&scanProjectType, "type", string(models.ProjectLocal), "Project type: local|github")
	f.StringVar(&scanInstallationID, "installation-id", "", "GitHub App installation id (github projects)")
	f.StringVar(&scanOwner, "owner", "", "Repository owner (github projects)")
	f.StringVar(&scanRepo, "repo", "", "Repository name (github projects)")
	f.StringVar(&scanDeploymentURL, "url", "", "Deployed URL for DAST (with --yes)")
	f.BoolVarP(&scanYes, "yes", "y", false, "Do not ask; take answers from flags and submit")
	f.BoolVar(&scanWait, "wait", true, "Poll the scan until it finishes")
	f.StringVar(&scanGateway, "gateway", "", "Gateway base URL (overrides client.base_url)")
	f.StringVar(&scanToken, "token", "", "Session token (overrides client.session_token)")
	f.StringVar(&scanOutputFmt, "output", "text", "Output format: text|json|yaml")
	_ = scanCmd.MarkFlagRequired("project-id")
}

// scanReport is what --output json|yaml prints.
type scanReport struct {
	Step    scanflow.Step       `json:"step"`
	Session *models.ScanSession `json:"session,omitempty"`
	Result  *scanflow.Result    `json:"result,omitempty"`
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	project := models.Project{
		ID:             scanProjectID,
		Name:           scanProjectName,
		Type:           models.ProjectType(scanProjectType),
		InstallationID: scanInstallationID,
		Owner:          scanOwner,
		Repo:           scanRepo,
	}
	switch project.Type {
	case models.ProjectLocal:
	case models.ProjectGitHub:
		if project.InstallationID == "" || project.Owner == "" || project.Repo == "" {
			return fmt.Errorf("github projects need --installation-id, --owner and --repo")
		}
	default:
		return fmt.Errorf("invalid project type %q (valid: local, github)", project.Type)
	}

	out := cmd.OutOrStdout()
	// Notices go to stderr so structured output on stdout stays parseable.
	notifier := notify.NewDispatcher(cfg.Notify, notify.NewTerminal(cmd.ErrOrStderr()))
	flow := scanflow.New(newScanBackend(cfg), project,
		scanflow.WithNotifier(notifier),
		scanflow.WithPollAttempts(cfg.Scan.PollAttempts),
		scanflow.WithPollInterval(cfg.Scan.PollInterval),
	)

	if scanYes {
		err = driveFromFlags(ctx, flow)
	} else {
		fmt.Fprintln(out, headerStyle.Render("Security scan for "+project.DisplayName()))
		err = driveInteractive(ctx, flow, cmd.ErrOrStderr())
	}
	if err != nil {
		return err
	}

	report := scanReport{Step: flow.Step(), Session: flow.Session()}
	if flow.Step() == scanflow.StepSubmitted && scanWait {
		res, err := flow.Wait(ctx)
		report.Result = res
		if err != nil && res == nil {
			return err
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("Stopped waiting: "+err.Error()))
		}
	}

	if done, err := writeStructured(out, scanOutputFmt, report); done {
		return err
	}
	printScanReport(out, report)
	return nil
}

func newScanBackend(cfg *config.Config) *scanflow.HTTPBackend {
	base := cfg.Client.BaseURL
	if scanGateway != "" {
		base = scanGateway
	}
	token := cfg.Client.SessionToken
	if scanToken != "" {
		token = scanToken
	}
	return scanflow.NewHTTPBackend(base, token, cfg.Backend.Timeout)
}

// driveFromFlags answers every step from flags. A rejected URL is an error
// rather than a retry prompt.
func driveFromFlags(ctx context.Context, flow *scanflow.Flow) error {
	if err := flow.AnswerDAST(scanDeploymentURL != ""); err != nil {
		return err
	}
	if flow.Step() == scanflow.StepDASTURL {
		if err := flow.SetURL(scanDeploymentURL); err != nil {
			return err
		}
		if err := flow.ValidateURL(ctx); err != nil {
			return fmt.Errorf("deployment URL rejected: %w", err)
		}
	}
	_, err := flow.Confirm(ctx)
	return err
}

// driveInteractive asks one question per step until the flow is submitted
// or cancelled. A failed submission restarts from the first question.
func driveInteractive(ctx context.Context, flow *scanflow.Flow, status io.Writer) error {
	for !flow.Step().Terminal() {
		var err error
		switch flow.Step() {
		case scanflow.StepDAST:
			err = askDAST(ctx, flow)
		case scanflow.StepDASTURL:
			err = askURL(ctx, flow, status)
		case scanflow.StepSecurity:
			err = askSecurity(ctx, flow)
		}
		switch {
		case err == nil:
		case errors.Is(err, huh.ErrUserAborted):
			flow.Cancel()
		case errors.Is(err, scanflow.ErrSubmitFailed):
			// The notice is already shown and the flow reset; ask again.
		default:
			return err
		}
	}
	return nil
}

func askDAST(ctx context.Context, flow *scanflow.Flow) error {
	hasURL := false
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Do you have a deployed URL?").
			Description("A reachable deployment enables dynamic application security testing (DAST).").
			Affirmative("Yes").
			Negative("No").
			Value(&hasURL),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	return flow.AnswerDAST(hasURL)
}

func askURL(ctx context.Context, flow *scanflow.Flow, status io.Writer) error {
	raw := flow.URL()
	desc := "e.g. https://app.example.com"
	if msg := flow.URLError(); msg != "" {
		desc = msg
	}
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Deployed URL").
			Description(desc).
			Placeholder("https://").
			Value(&raw),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	if err := flow.SetURL(raw); err != nil {
		return err
	}

	fmt.Fprintln(status, dimStyle.Render("Checking "+raw+" ..."))
	var urlErr *scanflow.URLError
	err = flow.ValidateURL(ctx)
	if !errors.As(err, &urlErr) {
		return err
	}

	choice := "retry"
	err = huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title(urlErr.Msg).
			Options(
				huh.NewOption("Try another URL", "retry"),
				huh.NewOption("Continue without DAST", "skip"),
				huh.NewOption("Back", "back"),
			).
			Value(&choice),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	switch choice {
	case "skip":
		return flow.SkipDAST()
	case "back":
		return flow.Back()
	default:
		return flow.Retry()
	}
}

func askSecurity(ctx context.Context, flow *scanflow.Flow) error {
	req := flow.Request()
	desc := "Static analysis only"
	if req.DeploymentURL != "" {
		desc = "Static analysis plus DAST against " + req.DeploymentURL
	}
	run := true
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Run security analysis on " + req.ProjectName + "?").
			Description(desc).
			Affirmative("Yes").
			Negative("No").
			Value(&run),
	)).RunWithContext(ctx)
	if err != nil {
		return err
	}
	if !run {
		return flow.Decline()
	}
	_, err = flow.Confirm(ctx)
	return err
}

func printScanReport(w io.Writer, r scanReport) {
	if r.Step == scanflow.StepCancelled {
		fmt.Fprintln(w, dimStyle.Render("Scan request cancelled; nothing was submitted."))
		return
	}
	if r.Session == nil {
		return
	}
	s := r.Session
	if s.ScanID == "" {
		fmt.Fprintln(w, warnStyle.Render("Scan submitted but the backend returned no scan id."))
		return
	}
	fmt.Fprintf(w, "Scan id : %s\n", s.ScanID)
	fmt.Fprintf(w, "Project : %s (%s)\n", s.ProjectName, s.ProjectType)
	if s.DASTEnabled {
		fmt.Fprintf(w, "DAST    : %s\n", s.DeploymentURL)
	}
	if r.Result == nil {
		fmt.Fprintln(w, dimStyle.Render("Not waiting for completion; check /api/scan/status/"+s.ScanID))
		return
	}

	res := r.Result
	switch {
	case res.Status == models.ScanCompleted:
		fmt.Fprintln(w, successStyle.Render(fmt.Sprintf("Completed after %d polls.", res.Polls)))
		if res.ResultsError != "" {
			fmt.Fprintln(w, warnStyle.Render("Results unavailable: "+res.ResultsError))
		} else if len(res.Results) > 0 {
			fmt.Fprintln(w, dimStyle.Render("Results: deplai scan --output json, or GET /api/scan/results/"+s.ScanID))
		}
	case res.Status == models.ScanFailed:
		fmt.Fprintln(w, warnStyle.Render("Scan failed."))
	case res.TimedOut:
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Still %s (poll limit of %d reached).", res.Status, res.Polls)))
	case res.Inconclusive:
		fmt.Fprintln(w, warnStyle.Render("Status unknown: the status request failed."))
	default:
		fmt.Fprintf(w, "Status  : %s\n", res.Status)
	}
}

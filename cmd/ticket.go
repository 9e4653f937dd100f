package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/deplai/deplai-connector/internal/tickets"
	"github.com/deplai/deplai-connector/models"
	"github.com/spf13/cobra"
)

var (
	ticketFile      string
	ticketProject   string
	ticketStatus    string
	ticketSeverity  string
	ticketMinSev    string
	ticketLimit     int
	ticketOutputFmt string
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Upsert or list finding tickets",
	Long: `Works directly against the configured database, with the same
deduplication rules as POST /api/tickets.`,
}

var ticketUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Upsert finding reports from a JSON file",
	Long: `Reads one report object, or an array of them, and upserts each into
a ticket keyed by (project_id, fingerprint).

Examples:
  deplai ticket upsert --file report.json
  scanner --json | deplai ticket upsert --file -`,
	RunE: runTicketUpsert,
}

var ticketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets, most recently seen first",
	RunE:  runTicketList,
}

func init() {
	ticketUpsertCmd.Flags().StringVarP(&ticketFile, "file", "f", "", "JSON report file, - for stdin (required)")
	_ = ticketUpsertCmd.MarkFlagRequired("file")

	ticketListCmd.Flags().StringVar(&ticketProject, "project", "", "Filter by project id")
	ticketListCmd.Flags().StringVar(&ticketStatus, "status", "", "Filter by status (open|resolved|ignored)")
	ticketListCmd.Flags().StringVar(&ticketSeverity, "severity", "", "Filter by severity")
	ticketListCmd.Flags().StringVar(&ticketMinSev, "min-severity", "", "Only tickets at or above this severity")
	ticketListCmd.Flags().IntVar(&ticketLimit, "limit", 50, "Maximum number of tickets")
	ticketListCmd.Flags().StringVar(&ticketOutputFmt, "output", "table", "Output format: table|json|yaml")

	ticketCmd.AddCommand(ticketUpsertCmd, ticketListCmd)
}

func openTicketService(ctx context.Context) (*tickets.Service, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	return tickets.NewService(db), func() { _ = db.Close() }, nil
}

func runTicketUpsert(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var raw []byte
	var err error
	if ticketFile == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(ticketFile)
	}
	if err != nil {
		return fmt.Errorf("reading reports: %w", err)
	}
	reports, err := decodeReports(raw)
	if err != nil {
		return err
	}

	svc, closeDB, err := openTicketService(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	out := cmd.OutOrStdout()
	failed := 0
	for i, r := range reports {
		res, err := svc.Upsert(ctx, r)
		if err != nil {
			failed++
			fmt.Fprintf(out, "[%d] error: %v\n", i, err)
			continue
		}
		fmt.Fprintf(out, "[%d] %s %s\n", i, res.Message, res.TicketID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(reports))
	}
	return nil
}

// decodeReports accepts a single report object or an array of reports.
func decodeReports(raw []byte) ([]tickets.Report, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var many []tickets.Report
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, fmt.Errorf("parsing reports: %w", err)
		}
		return many, nil
	}
	var one tickets.Report
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return []tickets.Report{one}, nil
}

func runTicketList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	svc, closeDB, err := openTicketService(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	items, total, err := svc.List(ctx, tickets.Filter{
		ProjectID:   ticketProject,
		Status:      ticketStatus,
		Severity:    ticketSeverity,
		MinSeverity: ticketMinSev,
		Limit:       ticketLimit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if done, err := writeStructured(out, ticketOutputFmt, items); done {
		return err
	}

	fmt.Fprintln(out, renderTicketTable(items))
	fmt.Fprintf(out, "\n%d of %d tickets\n", len(items), total)
	return nil
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func renderTicketTable(items []models.Ticket) string {
	rows := make([][]string, 0, len(items))
	for _, t := range items {
		rows = append(rows, []string{
			t.ID, string(t.Status), t.Severity, t.ProjectID, t.Title, t.LastSeen.Format("2006-01-02 15:04:05"),
		})
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("ID", "STATUS", "SEVERITY", "PROJECT", "TITLE", "LAST SEEN").
		Rows(rows...).
		String()
}

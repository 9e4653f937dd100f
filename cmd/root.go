package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "deplai",
	Short: "DeplAI backend-for-frontend and scan client",
	Long: `deplai sits between the DeplAI dashboard and the scan backend. It
deduplicates findings into tickets, validates deployment URLs, exchanges
GitHub App installations for short-lived tokens, and proxies scan status
and results.

Get started:
  deplai serve           Start the HTTP gateway
  deplai migrate         Apply database migrations
  deplai scan            Request a security scan for a project
  deplai ticket          Upsert or list tickets
  deplai session-token   Mint a session token for local development
  deplai doctor          Verify configuration, database and scan backend`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.deplai/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		serveCmd,
		migrateCmd,
		scanCmd,
		ticketCmd,
		sessionTokenCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}

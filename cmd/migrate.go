package cmd

import (
	"context"
	"fmt"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/deplai/deplai-connector/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Creates or upgrades the tickets schema in the configured database
(sqlite by default, mysql or postgres via database.driver).`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied (%s).\n", cfg.Database.Driver)
	return nil
}

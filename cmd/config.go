package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View deplai configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		redactConfig(cfg)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the path to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := config.ConfigPath(cfgFile)
		if err != nil {
			return err
		}
		editor := os.Getenv("EDITOR")
		if editor == "" {
			editor = "nano"
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Opening %s with %s...\n", p, editor)
		c := exec.Command(editor, p) // #nosec G204 -- editor is from $EDITOR env var, intentional user-controlled binary
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		return c.Run()
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configPathCmd, configEditCmd)
}

func redactConfig(cfg *config.Config) {
	// DSNs carry credentials.
	if cfg.Database.DSN != "" {
		cfg.Database.DSN = "***"
	}
	if cfg.GitHub.PrivateKey != "" {
		cfg.GitHub.PrivateKey = "-----REDACTED-----"
	}
	if cfg.Auth.SessionSecret != "" {
		cfg.Auth.SessionSecret = "***"
	}
	if cfg.Notify.Webhook.Secret != "" {
		cfg.Notify.Webhook.Secret = "***"
	}
	if cfg.Client.SessionToken != "" {
		cfg.Client.SessionToken = "***"
	}
}

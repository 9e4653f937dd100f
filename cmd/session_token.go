package cmd

import (
	"fmt"
	"time"

	"github.com/deplai/deplai-connector/internal/auth"
	"github.com/deplai/deplai-connector/internal/config"
	"github.com/spf13/cobra"
)

var (
	tokenUserID string
	tokenEmail  string
	tokenName   string
	tokenTTL    time.Duration
)

var sessionTokenCmd = &cobra.Command{
	Use:   "session-token",
	Short: "Mint a session token for local development",
	Long: `Signs a session token with auth.session_secret. Use it as the
deplai_session cookie, as "Authorization: Bearer <token>", or as
client.session_token for 'deplai scan'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Auth.SessionSecret == "" {
			return fmt.Errorf("auth.session_secret is not set (DEPLAI_AUTH_SESSION_SECRET)")
		}
		tok, err := auth.NewCookieSessions(cfg.Auth).IssueToken(auth.User{
			ID:    tokenUserID,
			Email: tokenEmail,
			Name:  tokenName,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	sessionTokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User id (required)")
	sessionTokenCmd.Flags().StringVar(&tokenEmail, "email", "", "User email")
	sessionTokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name")
	sessionTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = sessionTokenCmd.MarkFlagRequired("user")
}

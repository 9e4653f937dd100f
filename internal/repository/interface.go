package repository

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotConfigured is returned when no GitHub App credentials are configured.
var ErrNotConfigured = errors.New("github app is not configured")

// Installations verifies GitHub App installations and exchanges them for
// short-lived repository tokens.
type Installations interface {
	// VerifyInstallation reports whether owner/repo is installed under
	// installationID. A repo the app is not installed on is a mismatch, not an error.
	VerifyInstallation(ctx context.Context, installationID, owner, repo string) (*InstallationCheck, error)

	// InstallationToken mints an installation access token (valid ~1h).
	InstallationToken(ctx context.Context, installationID string) (string, error)
}

// InstallationCheck is the outcome of VerifyInstallation.
type InstallationCheck struct {
	Matches  bool
	Expected string
	// Actual is the installation the repo really belongs to, "none" if the
	// app is not installed on it.
	Actual string
}

// RepositoryURL is the clone URL handed to the scan backend.
func RepositoryURL(owner, repo string) string {
	return fmt.Sprintf("https://github.com/%s/%s", owner, repo)
}

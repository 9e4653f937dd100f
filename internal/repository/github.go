package repository

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deplai/deplai-connector/internal/config"
	"github.com/golang-jwt/jwt/v4"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

// GitHubApp implements Installations for a GitHub App on github.com or
// GitHub Enterprise.
type GitHubApp struct {
	appID  string
	key    *rsa.PrivateKey
	apiURL string
	now    func() time.Time
}

// NewGitHubApp creates a GitHubApp from the given configuration.
func NewGitHubApp(cfg config.GitHubConfig) (*GitHubApp, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, ErrNotConfigured
	}
	pemData := strings.ReplaceAll(cfg.PrivateKey, `\n`, "\n")
	if strings.TrimSpace(pemData) == "" {
		if cfg.PrivateKeyPath == "" {
			return nil, fmt.Errorf("%w: private_key or private_key_path is required", ErrNotConfigured)
		}
		b, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading GitHub App private key: %w", err)
		}
		pemData = string(b)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
	if err != nil {
		return nil, fmt.Errorf("parsing GitHub App private key: %w", err)
	}

	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL != "" && !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	return &GitHubApp{appID: cfg.AppID, key: key, apiURL: apiURL, now: time.Now}, nil
}

// VerifyInstallation looks up which installation owns owner/repo and
// compares it with installationID.
func (g *GitHubApp) VerifyInstallation(ctx context.Context, installationID, owner, repo string) (*InstallationCheck, error) {
	client, err := g.appClient(ctx)
	if err != nil {
		return nil, err
	}
	check := &InstallationCheck{Expected: installationID, Actual: "none"}
	inst, resp, err := client.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return check, nil
		}
		return nil, fmt.Errorf("finding GitHub installation for %s/%s: %w", owner, repo, err)
	}
	check.Actual = strconv.FormatInt(inst.GetID(), 10)
	check.Matches = check.Actual == strings.TrimSpace(installationID)
	return check, nil
}

// InstallationToken creates an installation access token.
func (g *GitHubApp) InstallationToken(ctx context.Context, installationID string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(installationID), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid installation id %q", installationID)
	}
	client, err := g.appClient(ctx)
	if err != nil {
		return "", err
	}
	tok, _, err := client.Apps.CreateInstallationToken(ctx, id, nil)
	if err != nil {
		return "", fmt.Errorf("creating installation token for %d: %w", id, err)
	}
	return tok.GetToken(), nil
}

// appClient returns a go-github client authenticated as the app itself.
func (g *GitHubApp) appClient(ctx context.Context) (*gogithub.Client, error) {
	signed, err := g.appJWT()
	if err != nil {
		return nil, err
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: signed, TokenType: "Bearer"})
	client := gogithub.NewClient(oauth2.NewClient(ctx, ts))

	// Support GitHub Enterprise by overriding the base URL.
	if g.apiURL != "" {
		client, err = client.WithEnterpriseURLs(g.apiURL, g.apiURL)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}
	return client, nil
}

// appJWT signs the short-lived RS256 token GitHub requires for app endpoints.
// iat is backdated a minute to tolerate clock drift.
func (g *GitHubApp) appJWT() (string, error) {
	now := g.now()
	claims := jwt.RegisteredClaims{
		Issuer:    g.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("signing GitHub App JWT: %w", err)
	}
	return signed, nil
}

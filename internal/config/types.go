package config

import "time"

// Config is the root configuration structure for deplai.
// Read from ~/.deplai/config.json, DEPLAI_* environment variables and .env.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   json:"server"`
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Backend  BackendConfig  `mapstructure:"backend"  json:"backend"`
	GitHub   GitHubConfig   `mapstructure:"github"   json:"github"`
	Auth     AuthConfig     `mapstructure:"auth"     json:"auth"`
	Scan     ScanConfig     `mapstructure:"scan"     json:"scan"`
	Monitor  MonitorConfig  `mapstructure:"monitor"  json:"monitor"`
	Notify   NotifyConfig   `mapstructure:"notify"   json:"notify"`
	Client   ClientConfig   `mapstructure:"client"   json:"client"`
}

// ServerConfig controls the HTTP listener of `deplai serve`.
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	// Port is the HTTP port (default: 3000).
	Port int `mapstructure:"port" json:"port"`
	// AllowedOrigins are the dashboard origins permitted by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins"`
}

// DatabaseConfig controls the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" (default), "mysql" or "postgres".
	Driver string `mapstructure:"driver" json:"driver"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL/PostgreSQL data source name.
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// BackendConfig points at the scan backend (the agentic layer).
type BackendConfig struct {
	URL     string        `mapstructure:"url"     json:"url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// GitHubConfig holds the GitHub App credentials used to mint installation tokens.
type GitHubConfig struct {
	AppID string `mapstructure:"app_id" json:"app_id"`
	// PrivateKey is the PEM-encoded app key. PrivateKeyPath is read when empty.
	PrivateKey     string `mapstructure:"private_key"      json:"private_key"`
	PrivateKeyPath string `mapstructure:"private_key_path" json:"private_key_path"`
	// APIURL overrides https://api.github.com/ (GitHub Enterprise).
	APIURL string `mapstructure:"api_url" json:"api_url"`
}

// AuthConfig controls dashboard session validation.
type AuthConfig struct {
	SessionSecret string `mapstructure:"session_secret" json:"session_secret"`
	CookieName    string `mapstructure:"cookie_name"    json:"cookie_name"`
}

// ScanConfig tunes the scan orchestration flow.
type ScanConfig struct {
	PollAttempts int           `mapstructure:"poll_attempts" json:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" json:"probe_timeout"`
	// SessionTTL bounds how long the gateway remembers submitted scans.
	SessionTTL time.Duration `mapstructure:"session_ttl" json:"session_ttl"`
}

// MonitorConfig controls the periodic backend health probe.
type MonitorConfig struct {
	// HealthExpr is a cron expression; empty disables the probe.
	HealthExpr string `mapstructure:"health_expr" json:"health_expr"`
}

// NotifyConfig holds notification channel configuration.
type NotifyConfig struct {
	Webhook WebhookNotifyConfig `mapstructure:"webhook" json:"webhook"`
	// Events limits which event types are sent (empty = all scan events).
	Events []string `mapstructure:"events" json:"events"`
}

// WebhookNotifyConfig configures a generic JSON webhook.
type WebhookNotifyConfig struct {
	URL    string `mapstructure:"url"    json:"url"`
	Secret string `mapstructure:"secret" json:"secret"`
}

// ClientConfig is used by CLI commands that talk to a running gateway.
type ClientConfig struct {
	BaseURL      string `mapstructure:"base_url"      json:"base_url"`
	SessionToken string `mapstructure:"session_token" json:"session_token"`
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultConfigDir  = ".deplai"
	DefaultConfigFile = "config.json"
	DefaultDBFile     = ".deplai/deplai.db"
	DefaultBackendURL = "http://localhost:8000"
	EnvPrefix         = "DEPLAI"
)

// Load reads .env, the optional config file, and the environment, and returns
// a populated Config. The configPath flag may override the default location.
func Load(configPath string) (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The backend URL keeps the name every DeplAI deployment already sets.
	if err := v.BindEnv("backend.url", EnvPrefix+"_BACKEND_URL", "AGENTIC_LAYER_URL"); err != nil {
		return nil, fmt.Errorf("binding backend url: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join(home, DefaultConfigDir))
	}

	setDefaults(v, home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	expandPaths(&cfg, home)
	cfg.Backend.URL = strings.TrimRight(cfg.Backend.URL, "/")
	return &cfg, nil
}

// ConfigPath returns the effective config file path.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultConfigDir, DefaultConfigFile), nil
}

// setDefaults populates viper with out-of-the-box values.
// Every key needs a default so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(home, DefaultDBFile))
	v.SetDefault("database.dsn", "")

	v.SetDefault("backend.url", DefaultBackendURL)
	v.SetDefault("backend.timeout", 10*time.Second)

	v.SetDefault("github.app_id", "")
	v.SetDefault("github.private_key", "")
	v.SetDefault("github.private_key_path", "")
	v.SetDefault("github.api_url", "")

	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.cookie_name", "deplai_session")

	v.SetDefault("scan.poll_attempts", 30)
	v.SetDefault("scan.poll_interval", time.Second)
	v.SetDefault("scan.probe_timeout", 10*time.Second)
	v.SetDefault("scan.session_ttl", time.Hour)

	v.SetDefault("monitor.health_expr", "@every 30s")

	v.SetDefault("notify.webhook.url", "")
	v.SetDefault("notify.webhook.secret", "")
	v.SetDefault("notify.events", []string{})

	v.SetDefault("client.base_url", "http://127.0.0.1:3000")
	v.SetDefault("client.session_token", "")
}

// expandPaths resolves ~ in configured paths.
func expandPaths(cfg *Config, home string) {
	cfg.Database.Path = expandHome(cfg.Database.Path, home)
	cfg.GitHub.PrivateKeyPath = expandHome(cfg.GitHub.PrivateKeyPath, home)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file")
}

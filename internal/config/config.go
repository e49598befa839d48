// Package config loads coordinator configuration from a TOML file with
// environment-variable overrides.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// GitAccount is a stored git provider credential.
type GitAccount struct {
	Domain   string `toml:"domain"` // e.g. github.com
	Username string `toml:"username"`
	Token    string `toml:"token"`
}

// RegistryAccount is a stored docker registry credential.
type RegistryAccount struct {
	Domain   string `toml:"domain"` // e.g. docker.io
	Username string `toml:"username"`
	Token    string `toml:"token"`
}

// OAuthProvider holds one OAuth client registration.
type OAuthProvider struct {
	Enabled      bool   `toml:"enabled"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// Config holds all coordinator configuration.
type Config struct {
	// HTTP surface.
	BindAddr string `toml:"bind_addr"`
	Port     int    `toml:"port"`
	Host     string `toml:"host"` // external URL the OAuth callback redirects to

	// Storage.
	DBPath   string `toml:"db_path"`
	RepoDir  string `toml:"repo_dir"`  // ephemeral clones for syncs
	StackDir string `toml:"stack_dir"` // stack-owned clones

	// Auth.
	JWTValid        time.Duration `toml:"jwt_valid_duration"`
	LocalAuth       bool          `toml:"local_auth"`
	NewUsersEnabled bool          `toml:"enable_new_users"`
	GithubOAuth     OAuthProvider `toml:"github_oauth"`
	GoogleOAuth     OAuthProvider `toml:"google_oauth"`

	// Webhooks. The global secret is the fallback for resources without
	// their own.
	WebhookSecret string `toml:"webhook_secret"`

	// Monitoring.
	MonitoringInterval time.Duration `toml:"monitoring_interval"`
	KeepStatsForDays   int           `toml:"keep_stats_for_days"`
	KeepAlertsForDays  int           `toml:"keep_alerts_for_days"`

	// Provider credentials.
	GitAccounts      []GitAccount      `toml:"git_accounts"`
	RegistryAccounts []RegistryAccount `toml:"registry_accounts"`

	// Logging.
	LogJSON  bool   `toml:"log_json"`
	LogLevel string `toml:"log_level"`
}

// Defaults returns a Config populated with default values; the TOML file
// and env overrides are applied on top.
func Defaults() *Config {
	return &Config{
		BindAddr:           "0.0.0.0",
		Port:               9120,
		Host:               "http://localhost:9120",
		DBPath:             "/data/convoy.db",
		RepoDir:            "/data/repos",
		StackDir:           "/data/stacks",
		JWTValid:           24 * time.Hour,
		LocalAuth:          true,
		NewUsersEnabled:    false,
		MonitoringInterval: 15 * time.Second,
		KeepStatsForDays:   14,
		KeepAlertsForDays:  14,
		LogJSON:            true,
		LogLevel:           "info",
	}
}

// Load reads configuration from the TOML file at path (empty path skips the
// file layer), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	cfg.BindAddr = envStr("CONVOY_BIND_ADDR", cfg.BindAddr)
	cfg.Port = envInt("CONVOY_PORT", cfg.Port)
	cfg.Host = envStr("CONVOY_HOST", cfg.Host)
	cfg.DBPath = envStr("CONVOY_DB_PATH", cfg.DBPath)
	cfg.RepoDir = envStr("CONVOY_REPO_DIR", cfg.RepoDir)
	cfg.StackDir = envStr("CONVOY_STACK_DIR", cfg.StackDir)
	cfg.JWTValid = envDuration("CONVOY_JWT_VALID", cfg.JWTValid)
	cfg.LocalAuth = envBool("CONVOY_LOCAL_AUTH", cfg.LocalAuth)
	cfg.NewUsersEnabled = envBool("CONVOY_ENABLE_NEW_USERS", cfg.NewUsersEnabled)
	cfg.WebhookSecret = envStr("CONVOY_WEBHOOK_SECRET", cfg.WebhookSecret)
	cfg.MonitoringInterval = envDuration("CONVOY_MONITORING_INTERVAL", cfg.MonitoringInterval)
	cfg.KeepStatsForDays = envInt("CONVOY_KEEP_STATS_FOR_DAYS", cfg.KeepStatsForDays)
	cfg.KeepAlertsForDays = envInt("CONVOY_KEEP_ALERTS_FOR_DAYS", cfg.KeepAlertsForDays)
	cfg.LogJSON = envBool("CONVOY_LOG_JSON", cfg.LogJSON)
	cfg.LogLevel = envStr("CONVOY_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// ConfigPath resolves the config file path from --config-path or
// CONVOY_CONFIG_PATH. Empty means no file layer.
func ConfigPath(fs *flag.FlagSet, args []string) (string, error) {
	path := fs.String("config-path", "", "path to the TOML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *path != "" {
		return *path, nil
	}
	return os.Getenv("CONVOY_CONFIG_PATH"), nil
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be 1-65535, got %d", c.Port))
	}
	if c.MonitoringInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitoring_interval must be > 0, got %s", c.MonitoringInterval))
	}
	if c.JWTValid <= 0 {
		errs = append(errs, fmt.Errorf("jwt_valid_duration must be > 0, got %s", c.JWTValid))
	}
	if c.KeepStatsForDays < 0 {
		errs = append(errs, fmt.Errorf("keep_stats_for_days must be >= 0, got %d", c.KeepStatsForDays))
	}
	if c.KeepAlertsForDays < 0 {
		errs = append(errs, fmt.Errorf("keep_alerts_for_days must be >= 0, got %d", c.KeepAlertsForDays))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	return errors.Join(errs...)
}

// RegistryToken returns the stored token for a registry domain/account pair.
func (c *Config) RegistryToken(domain, username string) (string, bool) {
	for _, a := range c.RegistryAccounts {
		if a.Domain == domain && a.Username == username {
			return a.Token, true
		}
	}
	return "", false
}

// GitToken returns the stored token for a git domain/account pair.
func (c *Config) GitToken(domain, username string) (string, bool) {
	for _, a := range c.GitAccounts {
		if a.Domain == domain && a.Username == username {
			return a.Token, true
		}
	}
	return "", false
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Auth       AuthConfig       `json:"auth"`
	Slack      SlackConfig      `json:"slack"`
	GitHub     GitHubConfig     `json:"github"`
	ToolServer ToolServerConfig `json:"tool_server"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Janitor    JanitorConfig    `json:"janitor"`
}

type ServerConfig struct {
	HTTPAddr            string  `json:"http_addr"`
	RateLimitPerSec     float64 `json:"rate_limit_per_sec"`
	RateLimitBurst      int     `json:"rate_limit_burst"`
	EnableTestEndpoints bool    `json:"enable_test_endpoints"`
}

type StorageConfig struct {
	PostgresDSN string `json:"postgres_dsn"`
}

type AuthConfig struct {
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
	TokenSecret   string `json:"token_secret"`
	TokenMaxAge   int    `json:"token_max_age_secs"`
	ServiceToken  string `json:"service_token"`
}

type SlackConfig struct {
	SigningSecret string `json:"signing_secret"`
}

type GitHubConfig struct {
	WebhookSecret string `json:"webhook_secret"`
}

type ToolServerConfig struct {
	HTTPAddr     string `json:"http_addr"`
	SharedSecret string `json:"shared_secret"`
}

type SupervisorConfig struct {
	ConfirmTokenTTLSecs int    `json:"confirm_token_ttl_secs"`
	DefaultLanguage     string `json:"default_language"`
	AllowForceStatus    bool   `json:"allow_force_status"`
}

type JanitorConfig struct {
	Enabled               bool   `json:"enabled"`
	Schedule              string `json:"schedule"`
	WebhookRetentionSecs  int    `json:"webhook_retention_secs"`
	FreshnessWindowSecs   int    `json:"freshness_window_secs"`
}

const (
	defaultConfirmTokenTTL  = 5 * time.Minute
	defaultFreshnessWindow  = 5 * time.Minute
	defaultWebhookRetention = time.Hour
)

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		return errors.New("server.http_addr required")
	}
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return errors.New("auth.token_secret required")
	}
	if strings.TrimSpace(c.ToolServer.HTTPAddr) != "" && strings.TrimSpace(c.ToolServer.SharedSecret) == "" {
		return errors.New("tool_server.shared_secret required when tool_server.http_addr is set")
	}
	if c.Janitor.Enabled && strings.TrimSpace(c.Janitor.Schedule) == "" {
		return errors.New("janitor.schedule required when janitor.enabled is true")
	}
	// The dedup retention must outlive the signature freshness window or a
	// replayed event could be re-accepted after its record expires.
	if c.WebhookRetention() <= c.FreshnessWindow() {
		return errors.New("janitor.webhook_retention_secs must exceed janitor.freshness_window_secs")
	}
	return nil
}

// ConfirmTokenTTL returns the confirm token lifetime, defaulting to 5 minutes.
func (c Config) ConfirmTokenTTL() time.Duration {
	if c.Supervisor.ConfirmTokenTTLSecs > 0 {
		return time.Duration(c.Supervisor.ConfirmTokenTTLSecs) * time.Second
	}
	return defaultConfirmTokenTTL
}

// FreshnessWindow returns the maximum accepted webhook timestamp skew.
func (c Config) FreshnessWindow() time.Duration {
	if c.Janitor.FreshnessWindowSecs > 0 {
		return time.Duration(c.Janitor.FreshnessWindowSecs) * time.Second
	}
	return defaultFreshnessWindow
}

// WebhookRetention returns how long dedup records are kept.
func (c Config) WebhookRetention() time.Duration {
	if c.Janitor.WebhookRetentionSecs > 0 {
		return time.Duration(c.Janitor.WebhookRetentionSecs) * time.Second
	}
	return defaultWebhookRetention
}

// TokenMaxAge returns the actor token lifetime, defaulting to 7 days.
func (c Config) TokenMaxAge() time.Duration {
	if c.Auth.TokenMaxAge > 0 {
		return time.Duration(c.Auth.TokenMaxAge) * time.Second
	}
	return 7 * 24 * time.Hour
}

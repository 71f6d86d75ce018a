// Package config loads the application configuration from a YAML file
// with environment-variable overrides. Credentials are never read from the
// YAML file; they come from the environment or the secret store.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/earnbot/pkg/bitget"
	"github.com/betbot/earnbot/pkg/logger"
)

// Config is the full application configuration.
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange" json:"exchange"`
	Workflow WorkflowConfig `yaml:"workflow" json:"workflow"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	Secrets  SecretsConfig  `yaml:"secrets" json:"secrets"`
	Log      logger.Config  `yaml:"log" json:"log"`
}

// ExchangeConfig tunes the request layer.
type ExchangeConfig struct {
	Host            string `yaml:"host" json:"host"`
	TimeoutMs       int    `yaml:"timeoutMs" json:"timeoutMs"`
	RateLimitPerSec int    `yaml:"rateLimitPerSec" json:"rateLimitPerSec"`
	Locale          string `yaml:"locale" json:"locale"`
}

// WorkflowConfig tunes saga execution.
type WorkflowConfig struct {
	SettleIntervalMs int    `yaml:"settleIntervalMs" json:"settleIntervalMs"`
	SettleTimeoutMs  int    `yaml:"settleTimeoutMs" json:"settleTimeoutMs"`
	MarginMode       string `yaml:"marginMode" json:"marginMode"`
	MarginCoin       string `yaml:"marginCoin" json:"marginCoin"`
}

// JournalConfig locates the workflow audit store.
type JournalConfig struct {
	Path     string `yaml:"path" json:"path"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
}

// SecretsConfig locates the credential store. KeyEnv names the environment
// variable holding the store's 32-byte encryption key.
type SecretsConfig struct {
	Path   string `yaml:"path" json:"path"`
	KeyEnv string `yaml:"keyEnv" json:"keyEnv"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Host:            bitget.DefaultHost,
			TimeoutMs:       10_000,
			RateLimitPerSec: bitget.DefaultRateLimit,
			Locale:          "en-US",
		},
		Workflow: WorkflowConfig{
			SettleIntervalMs: 500,
			SettleTimeoutMs:  20_000,
			MarginMode:       "isolated",
			MarginCoin:       "USDT",
		},
		Journal: JournalConfig{Path: "data/journal"},
		Secrets: SecretsConfig{KeyEnv: "EARNBOT_SECRET_KEY"},
		Log: logger.Config{
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
		},
	}
}

// Load reads path, applies environment overrides and validates. A missing
// file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "read config")
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(err, "parse config")
			}
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Environment variable format: EARNBOT_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("EARNBOT_EXCHANGE_HOST"); val != "" {
		cfg.Exchange.Host = val
	}
	if val := os.Getenv("EARNBOT_EXCHANGE_TIMEOUT_MS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Exchange.TimeoutMs = i
		}
	}
	if val := os.Getenv("EARNBOT_EXCHANGE_RATE_LIMIT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Exchange.RateLimitPerSec = i
		}
	}
	if val := os.Getenv("EARNBOT_WORKFLOW_SETTLE_TIMEOUT_MS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Workflow.SettleTimeoutMs = i
		}
	}
	if val := os.Getenv("EARNBOT_JOURNAL_PATH"); val != "" {
		cfg.Journal.Path = val
	}
	if val := os.Getenv("EARNBOT_LOG_LEVEL"); val != "" {
		cfg.Log.Level = val
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.Exchange.Host == "" {
		return errors.New("exchange.host must not be empty")
	}
	if c.Exchange.TimeoutMs <= 0 {
		return errors.Errorf("exchange.timeoutMs must be positive, got %d", c.Exchange.TimeoutMs)
	}
	if c.Exchange.RateLimitPerSec <= 0 {
		return errors.Errorf("exchange.rateLimitPerSec must be positive, got %d", c.Exchange.RateLimitPerSec)
	}
	if c.Workflow.SettleIntervalMs <= 0 {
		return errors.Errorf("workflow.settleIntervalMs must be positive, got %d", c.Workflow.SettleIntervalMs)
	}
	if c.Workflow.SettleTimeoutMs < c.Workflow.SettleIntervalMs {
		return errors.Errorf("workflow.settleTimeoutMs (%d) must be at least settleIntervalMs (%d)",
			c.Workflow.SettleTimeoutMs, c.Workflow.SettleIntervalMs)
	}
	if !c.Journal.Disabled && c.Journal.Path == "" {
		return errors.New("journal.path must be set unless journal is disabled")
	}
	return nil
}

// Timeout returns the request timeout as a duration.
func (c *ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// SettleInterval returns the settlement poll interval as a duration.
func (c *WorkflowConfig) SettleInterval() time.Duration {
	return time.Duration(c.SettleIntervalMs) * time.Millisecond
}

// SettleTimeout returns the settlement bound as a duration.
func (c *WorkflowConfig) SettleTimeout() time.Duration {
	return time.Duration(c.SettleTimeoutMs) * time.Millisecond
}

// CredentialsFromEnv reads Bitget credentials from BITGET_API_KEY,
// BITGET_API_SECRET and BITGET_PASSPHRASE. Returns false when any are
// unset, so the caller can fall back to the secret store.
func CredentialsFromEnv() (bitget.Credentials, bool) {
	creds := bitget.Credentials{
		APIKey:     os.Getenv("BITGET_API_KEY"),
		APISecret:  os.Getenv("BITGET_API_SECRET"),
		Passphrase: os.Getenv("BITGET_PASSPHRASE"),
	}
	if creds.APIKey == "" || creds.APISecret == "" || creds.Passphrase == "" {
		return bitget.Credentials{}, false
	}
	return creds, true
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig               `yaml:"hue"`
	Log             LogConfig               `yaml:"log"`
	Database        DatabaseConfig          `yaml:"database"`
	Ledger          LedgerConfig            `yaml:"ledger"`
	Reconciler      ReconcilerConfig        `yaml:"reconciler"`
	Healthcheck     HealthcheckConfig       `yaml:"healthcheck"`
	Switches        map[string]SwitchConfig `yaml:"switches"`
	ShutdownTimeout Duration                `yaml:"shutdown_timeout"`
}

// HueConfig contains Hue bridge connection settings
type HueConfig struct {
	Host    string   `yaml:"host"`
	Token   string   `yaml:"token"`
	Timeout Duration `yaml:"timeout"` // HTTP timeout for Hue API requests
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// DatabaseConfig contains transition ledger settings.
// An empty path disables the ledger entirely.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains transition ledger retention settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// ReconcilerConfig contains switch reconciler timing settings
type ReconcilerConfig struct {
	OnPollInterval  Duration `yaml:"on_poll_interval"`  // poll pace while the switch is inferred on
	OffPollInterval Duration `yaml:"off_poll_interval"` // poll pace while the switch is inferred off
	SettleDelay     Duration `yaml:"settle_delay"`      // wait between a write and its verify read
	RetryAttempts   int      `yaml:"retry_attempts"`
	BackoffUnit     Duration `yaml:"backoff_unit"`
	RateLimitRPS    float64  `yaml:"rate_limit_rps"`
}

// SwitchConfig defines one dumb switch shim
type SwitchConfig struct {
	TriggerLightIDs []int `yaml:"trigger_light_ids"`
	TargetLightIDs  []int `yaml:"target_light_ids"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	if cfg.Hue.Host == "" {
		return nil, fmt.Errorf("hue.host is required")
	}
	if cfg.Hue.Token == "" {
		return nil, fmt.Errorf("hue.token is required")
	}
	if len(cfg.Switches) == 0 {
		return nil, fmt.Errorf("at least one switch must be configured")
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Hue defaults
	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(30 * time.Second)
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Reconciler defaults
	if cfg.Reconciler.OnPollInterval == 0 {
		cfg.Reconciler.OnPollInterval = Duration(30 * time.Second)
	}
	if cfg.Reconciler.OffPollInterval == 0 {
		cfg.Reconciler.OffPollInterval = Duration(5 * time.Second)
	}
	if cfg.Reconciler.SettleDelay == 0 {
		cfg.Reconciler.SettleDelay = Duration(30 * time.Second)
	}
	if cfg.Reconciler.RetryAttempts == 0 {
		cfg.Reconciler.RetryAttempts = 3
	}
	if cfg.Reconciler.BackoffUnit == 0 {
		cfg.Reconciler.BackoffUnit = Duration(1 * time.Second)
	}
	if cfg.Reconciler.RateLimitRPS == 0 {
		cfg.Reconciler.RateLimitRPS = 10.0
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration. Values come from defaults, an
// optional config file and WAGATE_* environment variables, in that order.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	// DatabaseDSN holds accounts, templates and the delivery log.
	DatabaseDSN    string `mapstructure:"database_dsn"`
	DatabaseDriver string `mapstructure:"database_driver"`

	// SessionDSN holds the encrypted WhatsApp device credentials. Kept
	// separate so wiping the app database never logs anyone out.
	SessionDSN string `mapstructure:"session_dsn"`

	// DefaultCountryCode is prepended to phone numbers that arrive without
	// one, e.g. "62".
	DefaultCountryCode string `mapstructure:"default_country_code"`

	LogLevel       string   `mapstructure:"log_level"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
}

// ReconnectConfig bounds the automatic reconnection loop after an
// unexpected disconnect.
type ReconnectConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// BulkConfig paces bulk sends.
type BulkConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// Load reads configuration from the given file (may be empty) and the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("database_driver", "sqlite3")
	v.SetDefault("database_dsn", "file:wagate.db?_foreign_keys=on")
	v.SetDefault("session_dsn", "file:wagate-sessions.db?_foreign_keys=on")
	v.SetDefault("default_country_code", "62")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("reconnect.max_attempts", 10)
	v.SetDefault("reconnect.initial_backoff", 5*time.Second)
	v.SetDefault("reconnect.max_backoff", 5*time.Minute)
	v.SetDefault("bulk.concurrency", 3)
	v.SetDefault("bulk.min_delay", 500*time.Millisecond)
	v.SetDefault("bulk.max_delay", 2*time.Second)

	v.SetEnvPrefix("WAGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database_dsn is required")
	}
	if c.SessionDSN == "" {
		return fmt.Errorf("session_dsn is required")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must not be negative")
	}
	if c.Bulk.Concurrency <= 0 {
		return fmt.Errorf("bulk.concurrency must be positive")
	}
	if c.Bulk.MaxDelay < c.Bulk.MinDelay {
		return fmt.Errorf("bulk.max_delay must not be below bulk.min_delay")
	}
	return nil
}

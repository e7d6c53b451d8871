package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	DiscordToken string `env:"DISCORD_BOT_TOKEN"`
	GuildID      string `env:"GUILD_ID"`

	BackendURL     string        `env:"BACKEND_URL" envDefault:"http://localhost:8080"`
	BotSyncKey     string        `env:"BOT_SYNC_KEY"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"5s"`

	RewardChannelID string   `env:"REWARD_CHANNEL_ID"`
	AllowedForums   []string `env:"REWARD_CHANNELS" envSeparator:","`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	BoltPath    string `env:"BOLT_PATH" envDefault:"caosbot.db"`

	Port                  string        `env:"PORT" envDefault:"3005"`
	ConfigRefreshInterval time.Duration `env:"CONFIG_REFRESH_INTERVAL" envDefault:"30s"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env file is optional, continue with environment variables
	_ = godotenv.Load()

	return Parse()
}

// Parse reads the process environment into a Config and validates it
func Parse() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	config.AllowedForums = compact(config.AllowedForums)

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.DiscordToken == "" {
		return &ConfigError{Field: "DISCORD_BOT_TOKEN", Message: "DISCORD_BOT_TOKEN is required"}
	}

	switch c.StoreDriver {
	case DriverPostgres, DriverSQLite:
		if c.DatabaseDSN == "" {
			return &ConfigError{Field: "DATABASE_DSN", Message: "DATABASE_DSN is required for the " + c.StoreDriver + " store"}
		}
	case DriverBolt:
		if c.BoltPath == "" {
			return &ConfigError{Field: "BOLT_PATH", Message: "BOLT_PATH is required for the bolt store"}
		}
	case DriverMemory:
	default:
		return &ConfigError{Field: "STORE_DRIVER", Message: fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver)}
	}

	if c.BackendTimeout <= 0 {
		return &ConfigError{Field: "BACKEND_TIMEOUT", Message: "BACKEND_TIMEOUT must be positive"}
	}
	if c.ConfigRefreshInterval <= 0 {
		return &ConfigError{Field: "CONFIG_REFRESH_INTERVAL", Message: "CONFIG_REFRESH_INTERVAL must be positive"}
	}
	return nil
}

// compact trims ids and drops the blanks left by doubled separators
func compact(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

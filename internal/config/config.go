// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Session   SessionConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// StorageConfig holds database and recording storage configuration.
type StorageConfig struct {
	DBPath       string `envconfig:"DB_PATH" default:"data/sessions.db"`
	RecordingDir string `envconfig:"RECORDING_DIR" default:"data/recordings"`
}

// SessionConfig holds terminal session limits and defaults.
type SessionConfig struct {
	MaxPerUser     int           `envconfig:"MAX_SESSIONS_PER_USER" default:"10"`
	IdleTimeout    time.Duration `envconfig:"SESSION_IDLE_TIMEOUT" default:"30m"`
	RingBufferSize int           `envconfig:"RING_BUFFER_SIZE" default:"65536"`
	DefaultShell   string        `envconfig:"DEFAULT_SHELL" default:""`
	HistoryLimit   int           `envconfig:"HISTORY_LIMIT" default:"2000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting for the one-shot exec endpoint.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"EXEC_RATE_LIMIT_RPS" default:"5"`
	Burst             int     `envconfig:"EXEC_RATE_LIMIT_BURST" default:"10"`
	Enabled           bool    `envconfig:"EXEC_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			DBPath:       "data/sessions.db",
			RecordingDir: "data/recordings",
		},
		Session: SessionConfig{
			MaxPerUser:     10,
			IdleTimeout:    30 * time.Minute,
			RingBufferSize: 64 * 1024,
			HistoryLimit:   2000,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
	}
}

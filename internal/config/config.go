package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	// Presence timing.
	GracePeriod       time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
	StoreTimeout      time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`

	// WebSocket transport.
	MaxMessageBytes    int64    `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	EventBuffer        int      `mapstructure:"event_buffer" yaml:"event_buffer"`
	MaxEventsPerMinute int      `mapstructure:"max_events_per_minute" yaml:"max_events_per_minute"`
	AllowedOrigins     []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`

	// Optional token auth. Empty secret disables it.
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	Replies RepliesConfig `mapstructure:"replies" yaml:"replies"`
}

// RepliesConfig configures bot reply generation.
type RepliesConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	OllamaURL    string        `mapstructure:"ollama_url" yaml:"ollama_url"`
	Model        string        `mapstructure:"model" yaml:"model"`
	HistoryLimit int           `mapstructure:"history_limit" yaml:"history_limit"`
	MaxTokens    int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature  float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "presence.db",
		GracePeriod:        5 * time.Second,
		ReconcileInterval:  30 * time.Second,
		StoreTimeout:       5 * time.Second,
		MaxMessageBytes:    1 << 16,
		EventBuffer:        64,
		MaxEventsPerMinute: 600,
		AllowedOrigins:     []string{"localhost:3000", "localhost:3003"},
		JWTIssuer:          "presence-gateway",
		JWTAudience:        "presence-clients",
		Replies: RepliesConfig{
			Enabled:      false,
			OllamaURL:    "http://localhost:11434",
			Model:        "llama3.2",
			HistoryLimit: 10,
			MaxTokens:    150,
			Temperature:  0.8,
			Timeout:      30 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.GracePeriod != 0 {
		c.GracePeriod = other.GracePeriod
	}
	if other.ReconcileInterval != 0 {
		c.ReconcileInterval = other.ReconcileInterval
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}

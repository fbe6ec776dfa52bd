package main

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all relay settings. Values come from the environment (and an
// optional .env file); every field has a documented default.
type Config struct {
	Host    string `env:"HOST" envDefault:""`
	Port    int    `env:"PORT" envDefault:"8080"`
	TLSCert string `env:"TLS_CERT" envDefault:""`
	TLSKey  string `env:"TLS_KEY" envDefault:""`

	// Per-connection message limit: RateLimitMessages per RateLimitWindow.
	RateLimitMessages int           `env:"RATE_LIMIT_MESSAGES" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`

	// Upgrade attempts per second per client IP. 0 disables the check.
	HandshakeRatePerIP float64 `env:"HANDSHAKE_RATE_PER_IP" envDefault:"10"`

	// Admission caps checked before the upgrade. 0 means unlimited.
	MaxRooms          int `env:"MAX_ROOMS" envDefault:"0"`
	MaxClientsPerRoom int `env:"MAX_CLIENTS_PER_ROOM" envDefault:"0"`

	RoomTTL         time.Duration `env:"ROOM_TTL" envDefault:"24h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE" envDefault:"1048576"`
	SendBufferSize int   `env:"SEND_BUFFER_SIZE" envDefault:"256"`

	// Optional separate listener for /metrics, e.g. ":9090".
	MetricsAddr string `env:"METRICS_ADDR" envDefault:""`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// LoadConfig reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}
	if c.RateLimitMessages < 1 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES must be > 0, got %d", c.RateLimitMessages)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0, got %s", c.RateLimitWindow)
	}
	if c.HandshakeRatePerIP < 0 {
		return fmt.Errorf("HANDSHAKE_RATE_PER_IP must be >= 0, got %.1f", c.HandshakeRatePerIP)
	}
	if c.MaxRooms < 0 {
		return fmt.Errorf("MAX_ROOMS must be >= 0, got %d", c.MaxRooms)
	}
	if c.MaxClientsPerRoom < 0 {
		return fmt.Errorf("MAX_CLIENTS_PER_ROOM must be >= 0, got %d", c.MaxClientsPerRoom)
	}
	if c.RoomTTL <= 0 {
		return fmt.Errorf("ROOM_TTL must be > 0, got %s", c.RoomTTL)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be > 0, got %s", c.CleanupInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be > 0, got %s", c.ShutdownTimeout)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("MAX_MESSAGE_SIZE must be > 0, got %d", c.MaxMessageSize)
	}
	if c.SendBufferSize < 1 {
		return fmt.Errorf("SEND_BUFFER_SIZE must be > 0, got %d", c.SendBufferSize)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Addr is the listen address built from HOST and PORT.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TLSEnabled reports whether a certificate pair is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// LogConfig logs configuration using structured logging
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("addr", c.Addr()).
		Bool("tls", c.TLSEnabled()).
		Int("rate_limit_messages", c.RateLimitMessages).
		Dur("rate_limit_window", c.RateLimitWindow).
		Float64("handshake_rate_per_ip", c.HandshakeRatePerIP).
		Int("max_rooms", c.MaxRooms).
		Int("max_clients_per_room", c.MaxClientsPerRoom).
		Str("metrics_addr", c.MetricsAddr).
		Dur("room_ttl", c.RoomTTL).
		Dur("cleanup_interval", c.CleanupInterval).
		Dur("shutdown_timeout", c.ShutdownTimeout).
		Int64("max_message_size", c.MaxMessageSize).
		Int("send_buffer_size", c.SendBufferSize).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Relay configuration loaded")
}

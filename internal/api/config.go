// Package api serves the capture state to presentation clients: session and
// statistics snapshots, the latest result with overlay boxes mapped to the
// caller's view, an event stream and capture start/stop control.
package api

import (
	"fmt"
	"time"

	"github.com/tphakala/emotion-go/internal/conf"
)

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultHeartbeat       = 30 * time.Second
	DefaultBodyLimit       = "64K"
	DefaultMaxConnections  = 64
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen         string
	AllowedOrigins []string

	// Timeouts. There is no write timeout because the event stream stays
	// open.
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Heartbeat       time.Duration

	BodyLimit string
	// MaxConnections caps open client connections. Every event stream
	// holds one for its lifetime. Zero disables the cap.
	MaxConnections int
	Debug          bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8080",
		ReadTimeout:     DefaultReadTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		Heartbeat:       DefaultHeartbeat,
		BodyLimit:       DefaultBodyLimit,
		MaxConnections:  DefaultMaxConnections,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	cfg.AllowedOrigins = settings.WebServer.AllowedOrigins
	cfg.MaxConnections = settings.WebServer.MaxConnections
	cfg.Debug = settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	return nil
}

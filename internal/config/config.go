// Package config provides configuration loading for the finview client.
//
// Values come from a YAML file and FINVIEW_* environment variables, see
// LoadWithFile. Defaults target a Project Service running on localhost:3000,
// which is where the web frontend expects it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Config holds the complete finview client configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Session   SessionConfig   `koanf:"session"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	DevServer DevServerConfig `koanf:"devserver"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig describes the remote Project Service.
type ServerConfig struct {
	BaseURL string   `koanf:"base_url"`
	Timeout Duration `koanf:"timeout"`
	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// SessionConfig carries the ambient session cookie.
type SessionConfig struct {
	CookieName string `koanf:"cookie_name"`
	Cookie     Secret `koanf:"cookie"`
}

// LoggingConfig selects level and encoder for internal/logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// File receives logs when set. The TUI discards logs without it.
	File string `koanf:"file"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// TelemetryConfig controls trace export for Project Service calls.
type TelemetryConfig struct {
	Enabled bool `koanf:"enabled"`
	// Endpoint is an OTLP/HTTP collector, host:port.
	Endpoint        string   `koanf:"endpoint"`
	Insecure        bool     `koanf:"insecure"`
	SampleRate      float64  `koanf:"sample_rate"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// DevServerConfig configures `finview devserver`.
type DevServerConfig struct {
	Host  string `koanf:"host"`
	Port  int    `koanf:"port"`
	Token Secret `koanf:"token"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server base url must be http or https, got %q", c.Server.BaseURL)
	}
	if c.Server.Timeout.Duration() <= 0 {
		return errors.New("server timeout must be positive")
	}
	if c.Server.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative: %v", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst < 1 {
		return fmt.Errorf("burst must be >= 1 when pacing is enabled, got %d", c.Server.Burst)
	}
	if c.Session.CookieName == "" {
		return errors.New("session cookie name is required")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.DevServer.Port < 1 || c.DevServer.Port > 65535 {
		return fmt.Errorf("invalid devserver port: %d (must be 1-65535)", c.DevServer.Port)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:3000"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = Duration(30 * time.Second)
	}
	if cfg.Server.RequestsPerSecond > 0 && cfg.Server.Burst == 0 {
		cfg.Server.Burst = 1
	}

	// The backend issues its JWT in a cookie literally named Authorization.
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "Authorization"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.DevServer.Host == "" {
		cfg.DevServer.Host = "localhost"
	}
	if cfg.DevServer.Port == 0 {
		cfg.DevServer.Port = 3000
	}
	if !cfg.DevServer.Token.IsSet() {
		cfg.DevServer.Token = "dev-session"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4318"
		cfg.Telemetry.Insecure = true
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1
	}
	if cfg.Telemetry.ShutdownTimeout == 0 {
		cfg.Telemetry.ShutdownTimeout = Duration(5 * time.Second)
	}
}

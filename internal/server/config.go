// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the line relay.
package server

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the TCP port the relay listens on when none is configured.
	DefaultPort = 12345

	defaultMaxLineSize     = 64 * 1024
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// RateLimitConfig defines the parameters for per-connection line rate limiting.
// A Burst of zero or less disables limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Enabled reports whether lines are subject to rate limiting.
func (r RateLimitConfig) Enabled() bool {
	return r.Burst > 0
}

// Config holds the relay configuration.
type Config struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	MaxLineSize     int             `yaml:"max_line_size"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	WebSocketAddr   string          `yaml:"websocket_addr"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	LogFormat       string          `yaml:"log_format"`
	LogLevel        string          `yaml:"log_level"`
}

func defaultConfig() Config {
	return Config{
		Port:            DefaultPort,
		MaxLineSize:     defaultMaxLineSize,
		WriteTimeout:    defaultWriteTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		LogFormat: "text",
		LogLevel:  "info",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()
	cfg.ApplyEnv()
	return cfg
}

// LoadConfigFile reads a YAML configuration file on top of the defaults.
// Keys missing from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	sanitized := cfg.Sanitize()
	return &sanitized, nil
}

// ApplyEnv overrides fields from CHAT_* environment variables. Unparsable
// values are ignored.
func (c *Config) ApplyEnv() {
	if host, ok := os.LookupEnv("CHAT_HOST"); ok {
		c.Host = host
	}

	if port := os.Getenv("CHAT_PORT"); port != "" {
		c.Port = parseIntValue(port, c.Port)
	}

	if size := os.Getenv("CHAT_MAX_LINE_SIZE"); size != "" {
		c.MaxLineSize = parseIntValue(size, c.MaxLineSize)
	}

	if timeout := os.Getenv("CHAT_WRITE_TIMEOUT"); timeout != "" {
		c.WriteTimeout = parseNonNegativeSeconds(timeout, c.WriteTimeout)
	}

	if timeout := os.Getenv("CHAT_SHUTDOWN_TIMEOUT"); timeout != "" {
		c.ShutdownTimeout = parseSeconds(timeout, c.ShutdownTimeout)
	}

	if burst := os.Getenv("CHAT_RATE_LIMIT_BURST"); burst != "" {
		c.RateLimit.Burst = parseIntValue(burst, c.RateLimit.Burst)
	}

	if interval := os.Getenv("CHAT_RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.RateLimit.RefillInterval = parseSeconds(interval, c.RateLimit.RefillInterval)
	}

	if addr, ok := os.LookupEnv("CHAT_WS_ADDR"); ok {
		c.WebSocketAddr = addr
	}

	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = ParseOrigins(origins)
	}

	if format := os.Getenv("CHAT_LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}

	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// Sanitize returns a copy of the configuration with invalid values replaced
// by their defaults.
func (c Config) Sanitize() Config {
	defaults := defaultConfig()

	if c.Port < 0 || c.Port > 65535 {
		c.Port = defaults.Port
	}

	if c.MaxLineSize <= 0 {
		c.MaxLineSize = defaults.MaxLineSize
	}

	if c.WriteTimeout < 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}

	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	normalized, allowAll := normalizeOrigins(c.AllowedOrigins)
	if allowAll {
		normalized = append(normalized, "*")
	}
	c.AllowedOrigins = normalized

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		c.LogFormat = defaults.LogFormat
	}

	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}

	return c
}

// Addr returns the host:port the TCP relay listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseOrigins splits a comma separated origin list.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseNonNegativeSeconds accepts zero, which disables the timeout.
func parseNonNegativeSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Package conf loads the server's YAML configuration.
package conf

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"go.yaml.in/yaml/v2"
)

const (
	defaultListen        = ":8443"
	defaultMaxHandshakes = 256
)

type Config struct {
	// Listen address (e.g., ":8443" or "0.0.0.0:8443")
	Listen string `yaml:"listen"`

	// TLS configuration
	TLS TLSConfig `yaml:"tls"`

	// Timeouts configuration
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// Security configuration (optional)
	Security *SecurityConfig `yaml:"security,omitempty"`

	// MaxHandshakes bounds the number of handshakes in flight at once
	MaxHandshakes int `yaml:"max_handshakes"`

	// Log configuration
	Log LogConfig `yaml:"log"`
}

// TimeoutConfig represents HTTP timeout settings. The handshake timeout
// lives in TLSConfig.
type TimeoutConfig struct {
	// ReadHeader timeout for reading request headers
	ReadHeader time.Duration `yaml:"read_header"`

	// Read timeout for reading a whole request
	Read time.Duration `yaml:"read"`

	// Write timeout for writing a response
	Write time.Duration `yaml:"write"`

	// Idle timeout for keep-alive connections
	Idle time.Duration `yaml:"idle"`

	// Shutdown is how long a graceful shutdown may take
	Shutdown time.Duration `yaml:"shutdown"`
}

// SecurityConfig represents connection admission settings
type SecurityConfig struct {
	// RateLimit configuration
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`

	// FailureThreshold handshake failures in a row block the peer IP
	FailureThreshold int `yaml:"failure_threshold"`

	// BlockDuration is how long a peer stays blocked
	BlockDuration time.Duration `yaml:"block_duration"`

	// FailureWindow forgets a peer's failures after this long without a new one
	FailureWindow time.Duration `yaml:"failure_window,omitempty"`

	// Deny lists IPs that are always refused
	Deny []string `yaml:"deny,omitempty"`
}

// RateLimitConfig represents per-IP connection rate limiting
type RateLimitConfig struct {
	// ConnectionsPerSecond refill rate of the token bucket
	ConnectionsPerSecond float64 `yaml:"connections_per_second"`

	// BurstSize for token bucket (max tokens)
	BurstSize int64 `yaml:"burst_size,omitempty"`
}

type LogConfig struct {
	// Level: debug, info, warn or error
	Level string `yaml:"level"`

	// Format: text or json
	Format string `yaml:"format"`
}

// Load reads the YAML file at path and fills in defaults. When validate is
// set the result is validated as well.
func Load(path string, validate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	return cfg, nil
}

// Parse decodes a YAML document and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.MaxHandshakes == 0 {
		c.MaxHandshakes = defaultMaxHandshakes
	}
	if c.Timeouts.ReadHeader == 0 {
		c.Timeouts.ReadHeader = 10 * time.Second
	}
	if c.Timeouts.Idle == 0 {
		c.Timeouts.Idle = 90 * time.Second
	}
	if c.Timeouts.Shutdown == 0 {
		c.Timeouts.Shutdown = 30 * time.Second
	}
	if c.TLS.HandshakeTimeout == 0 {
		c.TLS.HandshakeTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}

	if c.MaxHandshakes < 0 {
		errs = append(errs, fmt.Errorf("max_handshakes must not be negative: %d", c.MaxHandshakes))
	}

	if err := c.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}

	if s := c.Security; s != nil {
		if s.FailureThreshold < 0 {
			errs = append(errs, fmt.Errorf("security.failure_threshold must not be negative"))
		}
		if s.FailureThreshold > 0 && s.BlockDuration <= 0 {
			errs = append(errs, fmt.Errorf("security.block_duration is required with failure_threshold"))
		}
		if s.RateLimit != nil && s.RateLimit.ConnectionsPerSecond <= 0 {
			errs = append(errs, fmt.Errorf("security.rate_limit.connections_per_second must be positive"))
		}
		if s.FailureWindow < 0 {
			errs = append(errs, fmt.Errorf("security.failure_window must not be negative"))
		}
		for _, ip := range s.Deny {
			if net.ParseIP(ip) == nil {
				errs = append(errs, fmt.Errorf("security.deny: invalid IP address %q", ip))
			}
		}
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", c.Log.Format))
	}

	return errors.Join(errs...)
}

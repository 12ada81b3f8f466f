package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/utkarsh5026/httpsfront/pkg/engine"
)

type TLSVersion uint16

const (
	// TLS versions
	VersionTLS10 TLSVersion = tls.VersionTLS10
	VersionTLS11 TLSVersion = tls.VersionTLS11
	VersionTLS12 TLSVersion = tls.VersionTLS12
	VersionTLS13 TLSVersion = tls.VersionTLS13
)

var (
	ErrUnsupportedTLSVersion = errors.New("unsupported TLS version")
	ErrUnknownCipherSuite    = errors.New("unknown cipher suite")
)

func (v TLSVersion) String() string {
	if v == 0 {
		return "default"
	}
	return tls.VersionName(uint16(v))
}

// Config holds the protocol knobs of the server side of a handshake. Key
// material, client auth and ALPN are set by the Negotiator.
type Config struct {
	// MinVersion is the minimum TLS version to accept (0 means runtime default)
	MinVersion TLSVersion

	// MaxVersion is the maximum TLS version to accept (0 means use latest)
	MaxVersion TLSVersion

	// CipherSuites is the list of enabled TLS 1.2 cipher suites (nil means use defaults)
	CipherSuites []uint16

	// SessionTicketsDisabled disables session ticket (resumption) support
	SessionTicketsDisabled bool

	// SessionTicketKey is used to encrypt session tickets (optional)
	SessionTicketKey [32]byte
}

// DefaultConfig returns a secure default TLS configuration
func DefaultConfig() *Config {
	return &Config{
		MinVersion:   VersionTLS12,
		MaxVersion:   VersionTLS13,
		CipherSuites: engine.SecureCipherSuites(),
	}
}

// ParseTLSVersion parses a string TLS version to TLSVersion
func ParseTLSVersion(version string) (TLSVersion, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(version)), "tls") {
	case "1.0", "v1.0":
		return VersionTLS10, nil
	case "1.1", "v1.1":
		return VersionTLS11, nil
	case "1.2", "v1.2":
		return VersionTLS12, nil
	case "1.3", "v1.3":
		return VersionTLS13, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedTLSVersion, version)
	}
}

// ParseCipherSuites converts IANA cipher suite names to their IDs. Suites
// crypto/tls lists as insecure are rejected.
func ParseCipherSuites(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}

	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := known[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCipherSuite, name)
		}
		suites = append(suites, id)
	}

	if len(suites) == 0 {
		return nil, fmt.Errorf("no valid cipher suites specified")
	}

	return suites, nil
}

// ToStdConfig converts our TLS config to crypto/tls.Config
func (c *Config) ToStdConfig() *tls.Config {
	cfg := &tls.Config{
		MinVersion:             uint16(c.MinVersion),
		MaxVersion:             uint16(c.MaxVersion),
		CipherSuites:           slices.Clone(c.CipherSuites),
		SessionTicketsDisabled: c.SessionTicketsDisabled,
	}

	if !c.SessionTicketsDisabled && c.SessionTicketKey != [32]byte{} {
		cfg.SetSessionTicketKeys([][32]byte{c.SessionTicketKey})
	}

	return cfg
}

// Validate validates the TLS configuration
func (c *Config) Validate() error {
	if c.MinVersion != 0 && (c.MinVersion < VersionTLS10 || c.MinVersion > VersionTLS13) {
		return fmt.Errorf("invalid minimum TLS version: %d", c.MinVersion)
	}

	if c.MaxVersion != 0 && (c.MaxVersion < VersionTLS10 || c.MaxVersion > VersionTLS13) {
		return fmt.Errorf("invalid maximum TLS version: %d", c.MaxVersion)
	}

	if c.MaxVersion != 0 && c.MinVersion > c.MaxVersion {
		return fmt.Errorf("minimum TLS version (%s) cannot be greater than maximum version (%s)", c.MinVersion, c.MaxVersion)
	}

	if c.MinVersion != 0 && c.MinVersion < VersionTLS12 {
		slog.Warn("TLS versions below 1.2 are considered insecure and not recommended")
	}

	return nil
}

func (c *Config) Clone() *Config {
	clone := *c
	clone.CipherSuites = slices.Clone(c.CipherSuites)
	return &clone
}

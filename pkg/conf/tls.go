package conf

import (
	"errors"
	"fmt"
	"time"

	"github.com/utkarsh5026/httpsfront/pkg/credential"
	"github.com/utkarsh5026/httpsfront/pkg/engine"
	"github.com/utkarsh5026/httpsfront/pkg/session"
	"github.com/utkarsh5026/httpsfront/pkg/transport"
)

// TLSConfig represents TLS/SSL configuration
type TLSConfig struct {
	// Enabled enables TLS; without it the server speaks plaintext
	Enabled bool `yaml:"enabled"`

	// ALPN lets the peer choose between HTTP/2 and HTTP/1.1
	ALPN bool `yaml:"alpn"`

	// ClientAuth determines the server's policy for client certificates
	// Options: "none", "requested", "required"
	ClientAuth string `yaml:"client_auth,omitempty"`

	// Engine selects the TLS backend: "default", "native" or "managed"
	Engine string `yaml:"engine,omitempty"`

	// Protocol is the HTTP version spoken when ALPN is off ("1.1" or "2")
	Protocol string `yaml:"protocol,omitempty"`

	// KeyStore holds the server key and certificate chain
	KeyStore *StoreConfig `yaml:"key_store,omitempty"`

	// TrustStore holds the CAs client certificates are verified against
	TrustStore *StoreConfig `yaml:"trust_store,omitempty"`

	// CertFile path to certificate file, used instead of KeyStore
	CertFile string `yaml:"cert_file,omitempty"`

	// KeyFile path to private key file, used instead of KeyStore
	KeyFile string `yaml:"key_file,omitempty"`

	// HandshakeTimeout bounds every handshake
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// MinVersion minimum TLS version (e.g., "1.2", "1.3")
	MinVersion string `yaml:"min_version,omitempty"`

	// MaxVersion maximum TLS version (e.g., "1.3")
	MaxVersion string `yaml:"max_version,omitempty"`

	// CipherSuites is a list of enabled cipher suites (empty = use secure defaults)
	CipherSuites []string `yaml:"cipher_suites,omitempty"`

	// SessionTicketsDisabled disables session ticket (resumption) support
	SessionTicketsDisabled bool `yaml:"session_tickets_disabled"`
}

// StoreConfig points at a key or trust store
type StoreConfig struct {
	// Type: "PKCS12", "JKS" or, for trust stores only, "PEM"
	Type string `yaml:"type"`

	Path     string `yaml:"path"`
	Password string `yaml:"password,omitempty"`
}

func (s *StoreConfig) spec() (*credential.StoreSpec, error) {
	if s == nil {
		return nil, nil
	}

	typ, err := credential.ParseStoreType(s.Type)
	if err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, errors.New("path is required")
	}

	return &credential.StoreSpec{Type: typ, Path: s.Path, Password: s.Password}, nil
}

// Validate checks everything that can be checked without reading files.
func (t *TLSConfig) Validate() error {
	if !t.Enabled {
		if _, err := session.ParseProtocol(t.Protocol); err != nil {
			return fmt.Errorf("tls.protocol: %w", err)
		}
		return nil
	}

	_, err := t.negotiation()
	return err
}

// CredentialSpec describes where the key and trust material live.
func (t *TLSConfig) CredentialSpec() (credential.Spec, error) {
	keyStore, err := t.KeyStore.spec()
	if err != nil {
		return credential.Spec{}, fmt.Errorf("tls.key_store: %w", err)
	}

	trustStore, err := t.TrustStore.spec()
	if err != nil {
		return credential.Spec{}, fmt.Errorf("tls.trust_store: %w", err)
	}

	spec := credential.Spec{
		KeyStore:   keyStore,
		KeyFile:    t.KeyFile,
		CertFile:   t.CertFile,
		TrustStore: trustStore,
	}

	switch {
	case keyStore != nil && (t.KeyFile != "" || t.CertFile != ""):
		return spec, fmt.Errorf("tls: %w", credential.ErrAmbiguousSource)
	case keyStore == nil && (t.KeyFile == "" || t.CertFile == ""):
		return spec, fmt.Errorf("tls: %w", credential.ErrNoKeyMaterial)
	}

	return spec, nil
}

// negotiation converts everything except the credentials.
func (t *TLSConfig) negotiation() (transport.NegotiationConfig, error) {
	var errs []error

	protocol, err := session.ParseProtocol(t.Protocol)
	if err != nil {
		errs = append(errs, fmt.Errorf("tls.protocol: %w", err))
	}

	clientAuth, err := transport.ParseClientAuth(t.ClientAuth)
	if err != nil {
		errs = append(errs, fmt.Errorf("tls.client_auth: %w", err))
	}

	kind, err := engine.ParseKind(t.Engine)
	if err != nil {
		errs = append(errs, fmt.Errorf("tls.engine: %w", err))
	}

	if t.HandshakeTimeout < 0 {
		errs = append(errs, fmt.Errorf("tls.handshake_timeout must not be negative"))
	}

	spec, err := t.CredentialSpec()
	if err != nil {
		errs = append(errs, err)
	}
	if clientAuth == transport.ClientAuthRequired && spec.TrustStore == nil {
		errs = append(errs, fmt.Errorf("tls.trust_store is required with client_auth %q: %w", t.ClientAuth, credential.ErrNoTrustMaterial))
	}

	tlsCfg, err := t.transportConfig()
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return transport.NegotiationConfig{}, errors.Join(errs...)
	}

	return transport.NegotiationConfig{
		TLSEnabled:       true,
		ALPNEnabled:      t.ALPN,
		ClientAuth:       clientAuth,
		Engine:           kind,
		Protocol:         protocol,
		HandshakeTimeout: t.HandshakeTimeout,
		TLS:              tlsCfg,
	}, nil
}

// transportConfig converts the version and cipher settings
func (t *TLSConfig) transportConfig() (*transport.Config, error) {
	cfg := transport.DefaultConfig()

	if t.MinVersion != "" {
		minVer, err := transport.ParseTLSVersion(t.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid min_version '%s': %w", t.MinVersion, err)
		}
		cfg.MinVersion = minVer
	}

	if t.MaxVersion != "" {
		maxVer, err := transport.ParseTLSVersion(t.MaxVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid max_version '%s': %w", t.MaxVersion, err)
		}
		cfg.MaxVersion = maxVer
	}

	if len(t.CipherSuites) > 0 {
		suites, err := transport.ParseCipherSuites(t.CipherSuites)
		if err != nil {
			return nil, fmt.Errorf("invalid cipher_suites: %w", err)
		}
		cfg.CipherSuites = suites
	}

	cfg.SessionTicketsDisabled = t.SessionTicketsDisabled

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	return cfg, nil
}

// NegotiationConfig resolves credentials through store and returns the
// configuration a server is built from.
func (t *TLSConfig) NegotiationConfig(store *credential.Store) (transport.NegotiationConfig, error) {
	if !t.Enabled {
		protocol, err := session.ParseProtocol(t.Protocol)
		if err != nil {
			return transport.NegotiationConfig{}, fmt.Errorf("tls.protocol: %w", err)
		}
		return transport.NegotiationConfig{Protocol: protocol, HandshakeTimeout: t.HandshakeTimeout}, nil
	}

	cfg, err := t.negotiation()
	if err != nil {
		return transport.NegotiationConfig{}, err
	}

	spec, err := t.CredentialSpec()
	if err != nil {
		return transport.NegotiationConfig{}, err
	}

	if store == nil {
		store = credential.NewStore(nil)
	}
	bundle, err := store.Resolve(spec)
	if err != nil {
		return transport.NegotiationConfig{}, err
	}
	cfg.Credentials = bundle

	return cfg, nil
}

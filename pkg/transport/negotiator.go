// Package transport turns accepted connections into established sessions.
//
// A Negotiator is built once from an immutable NegotiationConfig. All the
// checks that can fail without a peer (engine availability, ALPN
// capability, credentials, trust) run in NewNegotiator so that a server
// never binds with a configuration it cannot serve.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/utkarsh5026/httpsfront/pkg/credential"
	"github.com/utkarsh5026/httpsfront/pkg/engine"
	"github.com/utkarsh5026/httpsfront/pkg/session"
)

// DefaultHandshakeTimeout bounds a handshake when the config leaves it unset.
const DefaultHandshakeTimeout = 10 * time.Second

// State is the position of one connection in the negotiation.
type State int

const (
	StateAccepted State = iota
	StateHandshaking
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAccepted:
		return "ACCEPTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// NegotiationConfig is everything the server decides about a connection
// before it sees one. It is not modified after NewNegotiator.
type NegotiationConfig struct {
	TLSEnabled  bool
	ALPNEnabled bool
	ClientAuth  ClientAuth
	Engine      engine.Kind

	// Protocol is used when ALPN is disabled or TLS is off.
	Protocol session.Protocol

	Credentials *credential.Bundle

	// HandshakeTimeout bounds every handshake; 0 means DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// TLS holds version and cipher settings; nil means runtime defaults.
	TLS *Config
}

// NegotiatorOption configures a Negotiator.
type NegotiatorOption func(*Negotiator)

func WithNegotiatorLogger(logger *slog.Logger) NegotiatorOption {
	return func(n *Negotiator) {
		n.logger = logger
	}
}

// WithStateHook registers fn to observe every state transition. Every
// connection starts in StateAccepted; fn is called synchronously.
func WithStateHook(fn func(conn net.Conn, from, to State)) NegotiatorOption {
	return func(n *Negotiator) {
		n.onState = fn
	}
}

type Negotiator struct {
	cfg        NegotiationConfig
	timeout    time.Duration
	engine     engine.Engine
	handshaker engine.Handshaker
	logger     *slog.Logger
	onState    func(conn net.Conn, from, to State)
}

// NewNegotiator validates cfg and prepares the engine. provider may be nil,
// in which case the engines compiled into this binary are used.
func NewNegotiator(cfg NegotiationConfig, provider *engine.Provider, opts ...NegotiatorOption) (*Negotiator, error) {
	n := &Negotiator{
		cfg:     cfg,
		timeout: cfg.HandshakeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}

	if n.timeout < 0 {
		return nil, fmt.Errorf("handshake timeout must not be negative: %s", n.timeout)
	}
	if n.timeout == 0 {
		n.timeout = DefaultHandshakeTimeout
	}

	if cfg.Protocol != session.HTTP11 && cfg.Protocol != session.HTTP2 {
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}

	if !cfg.TLSEnabled {
		if cfg.ALPNEnabled {
			n.logger.Warn("ALPN has no effect without TLS", "protocol", cfg.Protocol.String())
		}
		return n, nil
	}

	if provider == nil {
		provider = engine.NewProvider()
	}

	if cfg.ALPNEnabled {
		alpn, err := provider.SupportsALPN(cfg.Engine)
		if err != nil {
			return nil, err
		}
		if !alpn {
			return nil, fmt.Errorf("%w: %s", ErrALPNUnsupported, cfg.Engine)
		}
	}

	eng, err := provider.Get(cfg.Engine)
	if err != nil {
		return nil, err
	}
	if cfg.ALPNEnabled && !eng.SupportsALPN() {
		return nil, fmt.Errorf("%w: %s", ErrALPNUnsupported, eng.Kind())
	}
	if cfg.ClientAuth == ClientAuthRequested && !eng.SupportsOptionalClientAuth() {
		return nil, fmt.Errorf("%w: %s engine cannot request a certificate without requiring one",
			ErrClientAuthUnsupported, eng.Kind())
	}

	if err := cfg.Credentials.Validate(cfg.ClientAuth == ClientAuthRequired); err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	if cfg.Credentials.ExpiresWithin(credential.ExpiryWarning) {
		n.logger.Warn("certificate is expiring soon",
			"not_after", cfg.Credentials.Identity.NotAfter,
			"source", cfg.Credentials.KeySource)
	}

	tlsCfg := &Config{}
	if cfg.TLS != nil {
		tlsCfg = cfg.TLS.Clone()
	}
	if err := tlsCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	params := engine.ServerParams{
		TLS:         n.stdConfig(tlsCfg),
		Certificate: cfg.Credentials.Identity.TLSCert,
	}
	if cfg.ClientAuth == ClientAuthRequired {
		params.ClientCAs = cfg.Credentials.Trusted
	}

	handshaker, err := eng.Server(params)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare %s engine: %w", eng.Kind(), err)
	}

	n.engine = eng
	n.handshaker = handshaker

	n.logger.Info("negotiator ready",
		"engine", eng.Kind().String(),
		"alpn", cfg.ALPNEnabled,
		"client_auth", cfg.ClientAuth.String(),
		"protocol", cfg.Protocol.String(),
		"min_version", tlsCfg.MinVersion.String(),
		"handshake_timeout", n.timeout)

	return n, nil
}

func (n *Negotiator) stdConfig(c *Config) *tls.Config {
	std := c.ToStdConfig()
	std.Certificates = []tls.Certificate{n.cfg.Credentials.Identity.TLSCert}

	switch n.cfg.ClientAuth {
	case ClientAuthRequired:
		// a missing certificate is rejected in VerifyConnection so that it
		// can be told apart from an untrusted one
		std.ClientAuth = tls.VerifyClientCertIfGiven
		std.ClientCAs = n.cfg.Credentials.TrustAnchors
		std.VerifyConnection = requirePeerCertificate
	case ClientAuthRequested:
		if n.cfg.Credentials.HasTrust() {
			std.ClientAuth = tls.VerifyClientCertIfGiven
			std.ClientCAs = n.cfg.Credentials.TrustAnchors
		} else {
			std.ClientAuth = tls.RequestClientCert
		}
	default:
		std.ClientAuth = tls.NoClientCert
	}

	if n.cfg.ALPNEnabled {
		std.NextProtos = []string{session.ALPNHTTP2, session.ALPNHTTP11}
	}

	return std
}

func requirePeerCertificate(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return errNoPeerCertificate
	}
	return nil
}

// Config returns the configuration the negotiator was built with.
func (n *Negotiator) Config() NegotiationConfig {
	return n.cfg
}

// HandshakeTimeout returns the effective per-handshake bound.
func (n *Negotiator) HandshakeTimeout() time.Duration {
	return n.timeout
}

// Engine returns the selected engine, nil when TLS is disabled.
func (n *Negotiator) Engine() engine.Engine {
	return n.engine
}

// Negotiate runs the handshake on conn exactly once. On success it returns
// the session snapshot and the connection to serve HTTP on; the caller owns
// both. On failure it returns a *HandshakeError and the caller must close
// conn without dispatching anything to it.
func (n *Negotiator) Negotiate(ctx context.Context, conn net.Conn) (*session.Context, net.Conn, error) {
	remote := conn.RemoteAddr().String()

	if !n.cfg.TLSEnabled {
		sess := session.New(uuid.NewString(), remote, n.cfg.Protocol, nil)
		n.transition(conn, StateAccepted, StateEstablished)
		return sess, conn, nil
	}

	n.transition(conn, StateAccepted, StateHandshaking)

	hsCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	// the deadline is what bounds engines that ignore ctx
	if deadline, ok := hsCtx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, nil, n.fail(conn, remote, fmt.Errorf("set handshake deadline: %w", err))
		}
	}

	tlsConn, err := n.handshaker.Handshake(hsCtx, conn)
	if err != nil {
		if hsCtx.Err() != nil && !errors.Is(err, errNoPeerCertificate) {
			err = fmt.Errorf("%w: %w", hsCtx.Err(), err)
		}
		return nil, nil, n.fail(conn, remote, err)
	}

	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		n.logger.Debug("failed to clear handshake deadline", "remote", remote, "error", err)
	}

	state := tlsConn.ConnectionState()
	protocol := n.cfg.Protocol
	if n.cfg.ALPNEnabled {
		protocol = session.HTTP11
		if state.NegotiatedProtocol == session.ALPNHTTP2 {
			protocol = session.HTTP2
		}
	}

	sess := session.New(uuid.NewString(), remote, protocol, &state)
	n.transition(conn, StateHandshaking, StateEstablished)

	n.logger.Debug("handshake complete",
		"session", sess.ID,
		"remote", remote,
		"protocol", protocol.String(),
		"tls_version", sess.TLSVersionName(),
		"peer_cert", sess.HasPeerCertificate())

	return sess, tlsConn, nil
}

func (n *Negotiator) fail(conn net.Conn, remote string, err error) *HandshakeError {
	he := &HandshakeError{Reason: classify(err), Remote: remote, Err: err}
	n.transition(conn, StateHandshaking, StateFailed)
	n.logger.Debug("handshake failed", "remote", remote, "reason", he.Reason.String(), "error", err)
	return he
}

func (n *Negotiator) transition(conn net.Conn, from, to State) {
	if n.onState != nil {
		n.onState(conn, from, to)
	}
}

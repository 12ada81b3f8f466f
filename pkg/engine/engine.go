// Package engine selects the backend that performs TLS handshakes.
//
// Every backend satisfies the same capability set: it can report whether it
// negotiates ALPN and it can prepare a server-side Handshaker from the
// server's key material. Which backends exist is decided when the binary is
// built, so availability never has to be probed at runtime.
package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind identifies a TLS engine backend.
type Kind int

const (
	// KindDefault is the runtime's own TLS stack with its default policy.
	KindDefault Kind = iota
	// KindNative is an accelerated native TLS library.
	KindNative
	// KindManaged is the runtime TLS stack with an explicitly pinned policy.
	KindManaged
)

var ErrEngineUnavailable = errors.New("tls engine unavailable")

var ErrUnknownKind = errors.New("unknown tls engine")

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindNative:
		return "native"
	case KindManaged:
		return "managed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind parses an engine name. "openssl" and "jdk" are accepted as
// aliases for the native and managed engines.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "none":
		return KindDefault, nil
	case "native", "openssl", "accelerated":
		return KindNative, nil
	case "managed", "jdk", "runtime":
		return KindManaged, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// UnavailableError reports an engine that cannot be used in this build.
type UnavailableError struct {
	Kind   Kind
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tls engine %s unavailable: %s", e.Kind, e.Reason)
}

func (e *UnavailableError) Unwrap() error {
	return ErrEngineUnavailable
}

// ServerParams is the material an engine needs to act as a TLS server.
// TLS carries the policy (versions, client auth, ALPN) for engines built on
// crypto/tls; native engines read the key pair and client CAs directly.
// ClientCAs is only set when every peer must present a certificate.
type ServerParams struct {
	TLS         *tls.Config
	Certificate tls.Certificate
	ClientCAs   []*x509.Certificate
}

// Conn is an established TLS connection.
type Conn interface {
	net.Conn
	ConnectionState() tls.ConnectionState
}

// Handshaker runs server handshakes on accepted connections.
type Handshaker interface {
	Handshake(ctx context.Context, conn net.Conn) (Conn, error)
}

// Engine is a TLS backend.
type Engine interface {
	Kind() Kind
	// SupportsALPN reports whether the engine can negotiate an application
	// protocol during the handshake. It never touches the network.
	SupportsALPN() bool
	// SupportsOptionalClientAuth reports whether the engine can ask for a
	// client certificate without rejecting peers that send none.
	SupportsOptionalClientAuth() bool
	// Server prepares a Handshaker. Engines fail here, at startup, rather
	// than on the first connection.
	Server(params ServerParams) (Handshaker, error)
}

// SecureCipherSuites returns the TLS 1.2 AEAD suites used by pinned
// policies. TLS 1.3 suites are not configurable.
func SecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

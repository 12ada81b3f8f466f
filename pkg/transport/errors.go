package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// Reason classifies a failed handshake.
type Reason int

const (
	ReasonNoPeerCert Reason = iota + 1
	ReasonUntrustedPeer
	ReasonProtocolMismatch
	ReasonTimeout
)

// Reasons lists every Reason in declaration order.
func Reasons() []Reason {
	return []Reason{ReasonNoPeerCert, ReasonUntrustedPeer, ReasonProtocolMismatch, ReasonTimeout}
}

func (r Reason) String() string {
	switch r {
	case ReasonNoPeerCert:
		return "NO_PEER_CERT"
	case ReasonUntrustedPeer:
		return "UNTRUSTED_PEER"
	case ReasonProtocolMismatch:
		return "PROTOCOL_MISMATCH"
	case ReasonTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(r))
	}
}

var (
	ErrHandshakeFailed = errors.New("tls handshake failed")
	ErrALPNUnsupported = errors.New("tls engine cannot negotiate ALPN")

	// ErrClientAuthUnsupported is returned for a client auth policy the
	// engine cannot enforce as configured.
	ErrClientAuthUnsupported = errors.New("tls engine cannot apply client auth policy")

	errNoPeerCertificate = errors.New("peer presented no certificate")
)

// HandshakeError is returned by Negotiate when a connection could not be
// established. It matches ErrHandshakeFailed.
type HandshakeError struct {
	Reason Reason
	Remote string
	Err    error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("tls handshake with %s failed: %s: %v", e.Remote, e.Reason, e.Err)
}

func (e *HandshakeError) Unwrap() []error {
	return []error{ErrHandshakeFailed, e.Err}
}

// ReasonOf returns the Reason carried by err, or 0.
func ReasonOf(err error) Reason {
	var he *HandshakeError
	if errors.As(err, &he) {
		return he.Reason
	}
	return 0
}

// classify maps a handshake error to a Reason. Anything that is neither a
// missing or untrusted certificate nor a timeout means the peers could not
// agree on how to talk.
func classify(err error) Reason {
	if errors.Is(err, errNoPeerCertificate) {
		return ReasonNoPeerCert
	}

	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	if errors.As(err, &verifyErr) || errors.As(err, &unknownAuthority) || errors.As(err, &invalid) {
		return ReasonUntrustedPeer
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}

	return ReasonProtocolMismatch
}

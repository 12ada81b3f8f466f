// Package session exposes what was negotiated on a connection to request
// handlers.
//
// A Context is copied out of the TLS connection state once, when the
// handshake completes. Handlers only ever see this snapshot, never the
// engine's own connection objects, and reading it never blocks.
package session

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Protocol is the HTTP version spoken on a connection.
type Protocol int

const (
	HTTP11 Protocol = iota
	HTTP2
)

// ALPN identifiers.
const (
	ALPNHTTP11 = "http/1.1"
	ALPNHTTP2  = "h2"
)

func (p Protocol) String() string {
	switch p {
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ALPN returns the protocol's ALPN identifier.
func (p Protocol) ALPN() string {
	if p == HTTP2 {
		return ALPNHTTP2
	}
	return ALPNHTTP11
}

// ParseProtocol accepts "HTTP/1.1", "1.1", "HTTP/2", "2", "h2" and their
// lower-case forms. An empty string means HTTP/1.1.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "1.1", "http/1.1", "http11", "http_1_1":
		return HTTP11, nil
	case "2", "2.0", "http/2", "http/2.0", "h2", "http2", "http_2":
		return HTTP2, nil
	default:
		return 0, fmt.Errorf("unknown http protocol %q", s)
	}
}

// PeerIdentity describes the leaf certificate the peer presented.
type PeerIdentity struct {
	CommonName       string
	Organization     []string
	IssuerCommonName string
	SerialNumber     string
	Fingerprint      string
	DNSNames         []string
	NotAfter         time.Time
	Verified         bool
}

// Context is the read-only view of one established connection.
type Context struct {
	ID                      string
	RemoteAddr              string
	Secure                  bool
	NegotiatedProtocol      Protocol
	PeerCertificatesPresent bool
	Peer                    *PeerIdentity
	TLSVersion              uint16
	CipherSuite             uint16
	ServerName              string
	ALPN                    string
	EstablishedAt           time.Time
}

// New builds the context for a connection. state is nil for plaintext
// connections; it is only read here and never retained.
func New(id, remoteAddr string, protocol Protocol, state *tls.ConnectionState) *Context {
	c := &Context{
		ID:                 id,
		RemoteAddr:         remoteAddr,
		NegotiatedProtocol: protocol,
		EstablishedAt:      time.Now(),
	}
	if state == nil {
		return c
	}

	c.Secure = true
	c.TLSVersion = state.Version
	c.CipherSuite = state.CipherSuite
	c.ServerName = state.ServerName
	c.ALPN = state.NegotiatedProtocol

	if len(state.PeerCertificates) > 0 {
		c.PeerCertificatesPresent = true
		c.Peer = identityOf(state.PeerCertificates[0], len(state.VerifiedChains) > 0)
	}

	return c
}

func identityOf(cert *x509.Certificate, verified bool) *PeerIdentity {
	sum := sha256.Sum256(cert.Raw)

	return &PeerIdentity{
		CommonName:       cert.Subject.CommonName,
		Organization:     append([]string(nil), cert.Subject.Organization...),
		IssuerCommonName: cert.Issuer.CommonName,
		SerialNumber:     cert.SerialNumber.String(),
		Fingerprint:      hex.EncodeToString(sum[:]),
		DNSNames:         append([]string(nil), cert.DNSNames...),
		NotAfter:         cert.NotAfter,
		Verified:         verified,
	}
}

func (c *Context) IsSecure() bool {
	return c != nil && c.Secure
}

func (c *Context) Protocol() Protocol {
	if c == nil {
		return HTTP11
	}
	return c.NegotiatedProtocol
}

func (c *Context) HasPeerCertificate() bool {
	return c != nil && c.PeerCertificatesPresent
}

// TLSVersionName returns a readable TLS version, or "" for plaintext.
func (c *Context) TLSVersionName() string {
	if c == nil || !c.Secure {
		return ""
	}
	return tls.VersionName(c.TLSVersion)
}

// CipherSuiteName returns the IANA name of the negotiated suite.
func (c *Context) CipherSuiteName() string {
	if c == nil || !c.Secure {
		return ""
	}
	return tls.CipherSuiteName(c.CipherSuite)
}

type contextKey struct{}

// WithContext attaches s to ctx.
func WithContext(ctx context.Context, s *Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached to ctx, or nil.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(contextKey{}).(*Context)
	return s
}

// FromRequest returns the session of the connection r arrived on, or nil
// when r was not served by this module's front end.
func FromRequest(r *http.Request) *Context {
	if r == nil {
		return nil
	}
	return FromContext(r.Context())
}

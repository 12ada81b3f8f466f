package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
)

// stdEngine performs handshakes with crypto/tls. The managed variant pins
// protocol versions and cipher suites instead of inheriting runtime defaults.
type stdEngine struct {
	kind   Kind
	pinned bool
}

func newDefaultEngine() Engine {
	return &stdEngine{kind: KindDefault}
}

func newManagedEngine() Engine {
	return &stdEngine{kind: KindManaged, pinned: true}
}

func (e *stdEngine) Kind() Kind {
	return e.kind
}

func (e *stdEngine) SupportsALPN() bool {
	return true
}

func (e *stdEngine) SupportsOptionalClientAuth() bool {
	return true
}

func (e *stdEngine) Server(params ServerParams) (Handshaker, error) {
	if params.TLS == nil {
		return nil, fmt.Errorf("%s engine: tls config is required", e.kind)
	}

	cfg := params.TLS.Clone()
	if len(cfg.Certificates) == 0 && cfg.GetCertificate == nil {
		if len(params.Certificate.Certificate) == 0 {
			return nil, fmt.Errorf("%s engine: no server certificate", e.kind)
		}
		cfg.Certificates = []tls.Certificate{params.Certificate}
	}

	if e.pinned {
		pin(cfg)
	}

	return &stdHandshaker{config: cfg}, nil
}

func pin(cfg *tls.Config) {
	if cfg.MinVersion < tls.VersionTLS12 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if cfg.MaxVersion == 0 {
		cfg.MaxVersion = tls.VersionTLS13
	}
	if len(cfg.CipherSuites) == 0 {
		cfg.CipherSuites = SecureCipherSuites()
	}
}

type stdHandshaker struct {
	config *tls.Config
}

func (h *stdHandshaker) Handshake(ctx context.Context, conn net.Conn) (Conn, error) {
	tlsConn := tls.Server(conn, h.config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

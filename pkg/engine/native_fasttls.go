//go:build fasttls

package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"

	"github.com/loopholelabs/fasttls"
)

func nativeRegistration() registration {
	return registration{build: newNativeEngine, alpn: false}
}

// nativeEngine hands the handshake to fasttls, which does not negotiate ALPN.
type nativeEngine struct{}

func newNativeEngine() Engine {
	return &nativeEngine{}
}

func (e *nativeEngine) Kind() Kind {
	return KindNative
}

func (e *nativeEngine) SupportsALPN() bool {
	return false
}

// SupportsOptionalClientAuth is false: fasttls verifies client certificates
// whenever it is given CAs and cannot merely request one.
func (e *nativeEngine) SupportsOptionalClientAuth() bool {
	return false
}

func (e *nativeEngine) Server(params ServerParams) (Handshaker, error) {
	if len(params.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("native engine: no server certificate")
	}

	certPEM := make([]byte, 0, 2048)
	for _, der := range params.Certificate.Certificate {
		certPEM = append(certPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(params.Certificate.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("native engine: encode private key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	var caPEM []byte
	for _, ca := range params.ClientCAs {
		caPEM = append(caPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.Raw})...)
	}

	server, err := fasttls.NewServer(certPEM, keyPEM, caPEM)
	if err != nil {
		return nil, fmt.Errorf("native engine: %w", err)
	}

	return &nativeHandshaker{server: server}, nil
}

type nativeHandshaker struct {
	server *fasttls.Server
}

func (h *nativeHandshaker) Handshake(ctx context.Context, conn net.Conn) (Conn, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	c, err := h.server.Connection(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return &nativeConn{Conn: c}, nil
}

// nativeConn exposes the connection state when the backend offers one and
// a bare completed state otherwise.
type nativeConn struct {
	net.Conn
}

func (c *nativeConn) ConnectionState() tls.ConnectionState {
	if s, ok := c.Conn.(interface{ ConnectionState() tls.ConnectionState }); ok {
		return s.ConnectionState()
	}
	return tls.ConnectionState{HandshakeComplete: true}
}

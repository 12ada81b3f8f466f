package engine

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// tcpPair returns both ends of a loopback TCP connection.
func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)

	server, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "", want: KindDefault},
		{input: "default", want: KindDefault},
		{input: "NONE", want: KindDefault},
		{input: "native", want: KindNative},
		{input: "OpenSSL", want: KindNative},
		{input: "managed", want: KindManaged},
		{input: "jdk", want: KindManaged},
		{input: " jdk ", want: KindManaged},
		{input: "boringssl", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "default", KindDefault.String())
	assert.Equal(t, "native", KindNative.String())
	assert.Equal(t, "managed", KindManaged.String())
	assert.Equal(t, "unknown(7)", Kind(7).String())
}

func TestProvider_DefaultNeverFails(t *testing.T) {
	p := NewProvider()

	e, err := p.Get(KindDefault)
	require.NoError(t, err)
	assert.Equal(t, KindDefault, e.Kind())
	assert.True(t, e.SupportsALPN())
	assert.True(t, e.SupportsOptionalClientAuth())
}

func TestProvider_Disable(t *testing.T) {
	p := NewProvider()
	p.Disable(KindManaged, "runtime too old")

	_, err := p.Get(KindManaged)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEngineUnavailable))

	var unavailable *UnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, KindManaged, unavailable.Kind)
	assert.Equal(t, "runtime too old", unavailable.Reason)

	_, err = p.SupportsALPN(KindManaged)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "runtime too old", unavailable.Reason)
}

func TestProvider_UnknownKind(t *testing.T) {
	p := NewProvider()

	_, err := p.Get(Kind(42))
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestProvider_Register(t *testing.T) {
	p := NewProvider()
	p.Register(KindNative, false, func() Engine { return &stdEngine{kind: KindNative} })

	e, err := p.Get(KindNative)
	require.NoError(t, err)
	assert.Equal(t, KindNative, e.Kind())

	alpn, err := p.SupportsALPN(KindNative)
	require.NoError(t, err)
	assert.False(t, alpn)
}

func TestProvider_Capabilities(t *testing.T) {
	p := NewProvider()
	p.Disable(KindNative, "missing library")

	caps := p.Capabilities()
	require.Len(t, caps, 3)

	assert.Equal(t, KindDefault, caps[0].Kind)
	assert.True(t, caps[0].Available)
	assert.True(t, caps[0].ALPN)

	assert.Equal(t, KindNative, caps[1].Kind)
	assert.False(t, caps[1].Available)
	assert.False(t, caps[1].ALPN)
	assert.Equal(t, "missing library", caps[1].Reason)

	assert.Equal(t, KindManaged, caps[2].Kind)
	assert.True(t, caps[2].Available)
}

func TestStdEngine_ServerRequiresCertificate(t *testing.T) {
	_, err := newDefaultEngine().Server(ServerParams{TLS: &tls.Config{}})
	assert.Error(t, err)

	_, err = newDefaultEngine().Server(ServerParams{})
	assert.Error(t, err)
}

func TestManagedEngine_PinsPolicy(t *testing.T) {
	h, err := newManagedEngine().Server(ServerParams{
		TLS:         &tls.Config{MinVersion: tls.VersionTLS10},
		Certificate: selfSigned(t),
	})
	require.NoError(t, err)

	cfg := h.(*stdHandshaker).config
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MaxVersion)
	assert.Equal(t, SecureCipherSuites(), cfg.CipherSuites)
}

func TestDefaultEngine_LeavesPolicy(t *testing.T) {
	source := &tls.Config{MinVersion: tls.VersionTLS11}
	h, err := newDefaultEngine().Server(ServerParams{TLS: source, Certificate: selfSigned(t)})
	require.NoError(t, err)

	cfg := h.(*stdHandshaker).config
	assert.Equal(t, uint16(tls.VersionTLS11), cfg.MinVersion)
	assert.Empty(t, cfg.CipherSuites)
	assert.Empty(t, source.Certificates, "source config must not be mutated")
}

func TestStdHandshaker_NegotiatesALPN(t *testing.T) {
	h, err := newDefaultEngine().Server(ServerParams{
		TLS:         &tls.Config{NextProtos: []string{"h2", "http/1.1"}},
		Certificate: selfSigned(t),
	})
	require.NoError(t, err)

	serverSide, clientSide := tcpPair(t)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	clientErr := make(chan error, 1)
	go func() {
		c := tls.Client(clientSide, &tls.Config{InsecureSkipVerify: true, NextProtos: []string{"h2"}})
		clientErr <- c.HandshakeContext(ctx)
	}()

	conn, err := h.Handshake(ctx, serverSide)
	require.NoError(t, err)
	require.NoError(t, <-clientErr)

	state := conn.ConnectionState()
	assert.True(t, state.HandshakeComplete)
	assert.Equal(t, "h2", state.NegotiatedProtocol)
}

func TestStdHandshaker_ContextDeadline(t *testing.T) {
	h, err := newDefaultEngine().Server(ServerParams{TLS: &tls.Config{}, Certificate: selfSigned(t)})
	require.NoError(t, err)

	serverSide, clientSide := net.Pipe()
	defer serverSide.Close()
	defer clientSide.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = h.Handshake(ctx, serverSide)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		input   string
		want    Protocol
		wantErr bool
	}{
		{input: "", want: HTTP11},
		{input: "1.1", want: HTTP11},
		{input: "HTTP/1.1", want: HTTP11},
		{input: "HTTP_1_1", want: HTTP11},
		{input: "2", want: HTTP2},
		{input: "HTTP/2", want: HTTP2},
		{input: "h2", want: HTTP2},
		{input: "HTTP_2", want: HTTP2},
		{input: "3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseProtocol(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProtocolNames(t *testing.T) {
	assert.Equal(t, "HTTP/1.1", HTTP11.String())
	assert.Equal(t, "HTTP/2", HTTP2.String())
	assert.Equal(t, "http/1.1", HTTP11.ALPN())
	assert.Equal(t, "h2", HTTP2.ALPN())
}

func TestNew_Plaintext(t *testing.T) {
	s := New("id-1", "10.0.0.1:5000", HTTP2, nil)

	assert.False(t, s.IsSecure())
	assert.Equal(t, HTTP2, s.Protocol())
	assert.False(t, s.HasPeerCertificate())
	assert.Empty(t, s.TLSVersionName())
	assert.Empty(t, s.CipherSuiteName())
}

func TestNew_CopiesTLSState(t *testing.T) {
	peer := &x509.Certificate{
		Raw:          []byte{1, 2, 3},
		SerialNumber: big.NewInt(99),
		Subject:      pkix.Name{CommonName: "client", Organization: []string{"acme"}},
		Issuer:       pkix.Name{CommonName: "test-ca"},
		DNSNames:     []string{"client.local"},
		NotAfter:     time.Now().Add(time.Hour),
	}

	state := &tls.ConnectionState{
		Version:            tls.VersionTLS13,
		CipherSuite:        tls.TLS_AES_128_GCM_SHA256,
		ServerName:         "localhost",
		NegotiatedProtocol: "h2",
		PeerCertificates:   []*x509.Certificate{peer},
		VerifiedChains:     [][]*x509.Certificate{{peer}},
	}

	s := New("id-2", "10.0.0.2:5000", HTTP2, state)

	assert.True(t, s.IsSecure())
	assert.True(t, s.HasPeerCertificate())
	assert.Equal(t, "TLS 1.3", s.TLSVersionName())
	assert.Equal(t, "TLS_AES_128_GCM_SHA256", s.CipherSuiteName())
	assert.Equal(t, "h2", s.ALPN)
	require.NotNil(t, s.Peer)
	assert.Equal(t, "client", s.Peer.CommonName)
	assert.Equal(t, "test-ca", s.Peer.IssuerCommonName)
	assert.Equal(t, "99", s.Peer.SerialNumber)
	assert.True(t, s.Peer.Verified)
	assert.Len(t, s.Peer.Fingerprint, 64)

	// the snapshot must not alias the engine's state
	peer.Subject.Organization[0] = "changed"
	state.PeerCertificates = nil
	assert.Equal(t, []string{"acme"}, s.Peer.Organization)
	assert.True(t, s.HasPeerCertificate())
}

func TestNilContextAccessors(t *testing.T) {
	var s *Context

	assert.False(t, s.IsSecure())
	assert.Equal(t, HTTP11, s.Protocol())
	assert.False(t, s.HasPeerCertificate())
	assert.Empty(t, s.TLSVersionName())
}

func TestContextRoundTrip(t *testing.T) {
	s := New("id-3", "", HTTP11, nil)

	ctx := WithContext(context.Background(), s)
	assert.Same(t, s, FromContext(ctx))

	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromRequest(nil))

	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	assert.Same(t, s, FromRequest(req))
}

package router

import (
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utkarsh5026/httpsfront/pkg/session"
)

func serve(t *testing.T, h http.Handler, path string, s *session.Context) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if s != nil {
		req = req.WithContext(session.WithContext(req.Context(), s))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func secureSession(p session.Protocol) *session.Context {
	return session.New("sess-1", "127.0.0.1:5000", p, &tls.ConnectionState{
		Version:            tls.VersionTLS13,
		CipherSuite:        tls.TLS_AES_128_GCM_SHA256,
		NegotiatedProtocol: p.ALPN(),
	})
}

func TestRouter_Routes(t *testing.T) {
	h := New(slog.New(slog.DiscardHandler))

	tests := []struct {
		name     string
		path     string
		session  *session.Context
		wantCode int
		wantBody string
	}{
		{name: "health plaintext", path: "/healthz", session: session.New("s", "", session.HTTP11, nil), wantCode: http.StatusNoContent},
		{name: "root secure", path: "/", session: secureSession(session.HTTP11), wantCode: http.StatusNoContent},
		{name: "root plaintext", path: "/", session: session.New("s", "", session.HTTP11, nil), wantCode: http.StatusBadRequest, wantBody: "Not SSL request"},
		{name: "h2 on h2", path: "/h2", session: secureSession(session.HTTP2), wantCode: http.StatusNoContent},
		{name: "h2 on h1", path: "/h2", session: secureSession(session.HTTP11), wantCode: http.StatusBadRequest, wantBody: "Not HTTP2 request"},
		{name: "h1 on h1", path: "/h1", session: secureSession(session.HTTP11), wantCode: http.StatusNoContent},
		{name: "h1 on h2", path: "/h1", session: secureSession(session.HTTP2), wantCode: http.StatusBadRequest, wantBody: "Not HTTP1.1 request"},
		{name: "protocol checked before security", path: "/h2", session: session.New("s", "", session.HTTP11, nil), wantCode: http.StatusBadRequest, wantBody: "Not HTTP2 request"},
		{name: "plaintext h2 is not secure", path: "/h2", session: session.New("s", "", session.HTTP2, nil), wantCode: http.StatusBadRequest, wantBody: "Not SSL request"},
		{name: "unknown path", path: "/nope", session: secureSession(session.HTTP11), wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, h, tt.path, tt.session)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, strings.TrimSpace(rec.Body.String()))
			}
		})
	}
}

func TestRequireSecure_WithoutSession(t *testing.T) {
	h := RequireSecure(http.HandlerFunc(NoContent))

	rec := serve(t, h, "/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireProtocol_WithoutSession(t *testing.T) {
	h := RequireProtocol(session.HTTP2)(http.HandlerFunc(NoContent))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.ProtoMajor, req.ProtoMinor, req.Proto = 2, 0, "HTTP/2.0"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, h, "/", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionInfo(t *testing.T) {
	h := New(slog.New(slog.DiscardHandler))

	s := secureSession(session.HTTP2)
	s.PeerCertificatesPresent = true
	s.Peer = &session.PeerIdentity{CommonName: "client", IssuerCommonName: "test-ca", SerialNumber: "7", Verified: true}

	rec := serve(t, h, "/session", s)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Connection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))

	assert.Equal(t, "sess-1", got.ID)
	assert.True(t, got.Secure)
	assert.Equal(t, "HTTP/2", got.Protocol)
	assert.Equal(t, "h2", got.ALPN)
	assert.Equal(t, "TLS 1.3", got.TLSVersion)
	assert.True(t, got.PeerCertificate)
	require.NotNil(t, got.Peer)
	assert.Equal(t, "client", got.Peer.CommonName)
	assert.Equal(t, "test-ca", got.Peer.Issuer)
}

func TestSessionInfo_NoSession(t *testing.T) {
	rec := serve(t, http.HandlerFunc(SessionInfo), "/session", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecoverer(t *testing.T) {
	r := New(slog.New(slog.DiscardHandler))
	mux, ok := r.(interface {
		Get(string, http.HandlerFunc)
	})
	require.True(t, ok)
	mux.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := serve(t, r, "/panic", secureSession(session.HTTP11))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

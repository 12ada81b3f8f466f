package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/utkarsh5026/httpsfront/pkg/session"
)

// Connection is the JSON form of a session.
type Connection struct {
	ID              string    `json:"id"`
	Secure          bool      `json:"secure"`
	Protocol        string    `json:"protocol"`
	RequestProto    string    `json:"request_proto"`
	ALPN            string    `json:"alpn,omitempty"`
	TLSVersion      string    `json:"tls_version,omitempty"`
	CipherSuite     string    `json:"cipher_suite,omitempty"`
	ServerName      string    `json:"server_name,omitempty"`
	PeerCertificate bool      `json:"peer_certificate"`
	Peer            *Peer     `json:"peer,omitempty"`
	EstablishedAt   time.Time `json:"established_at"`
}

type Peer struct {
	CommonName   string   `json:"common_name"`
	Organization []string `json:"organization,omitempty"`
	Issuer       string   `json:"issuer"`
	Serial       string   `json:"serial"`
	Fingerprint  string   `json:"sha256"`
	Verified     bool     `json:"verified"`
}

// NoContent answers 204.
func NoContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// SessionInfo writes the connection the request arrived on as JSON.
func SessionInfo(w http.ResponseWriter, r *http.Request) {
	s := session.FromRequest(r)
	if s == nil {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}

	c := Connection{
		ID:              s.ID,
		Secure:          s.IsSecure(),
		Protocol:        s.Protocol().String(),
		RequestProto:    r.Proto,
		ALPN:            s.ALPN,
		TLSVersion:      s.TLSVersionName(),
		CipherSuite:     s.CipherSuiteName(),
		ServerName:      s.ServerName,
		PeerCertificate: s.HasPeerCertificate(),
		EstablishedAt:   s.EstablishedAt,
	}
	if p := s.Peer; p != nil {
		c.Peer = &Peer{
			CommonName:   p.CommonName,
			Organization: p.Organization,
			Issuer:       p.IssuerCommonName,
			Serial:       p.SerialNumber,
			Fingerprint:  p.Fingerprint,
			Verified:     p.Verified,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c)
}

// RequireSecure rejects requests that did not arrive over TLS.
func RequireSecure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isSecure(r) {
			http.Error(w, "Not SSL request", http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireProtocol rejects requests on connections that speak another HTTP
// version than p.
func RequireProtocol(p session.Protocol) func(http.Handler) http.Handler {
	msg := "Not HTTP1.1 request"
	if p == session.HTTP2 {
		msg = "Not HTTP2 request"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if protocolOf(r) != p {
				http.Error(w, msg, http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isSecure and protocolOf prefer the session and fall back to the request
// for handlers mounted on a plain net/http server.
func isSecure(r *http.Request) bool {
	if s := session.FromRequest(r); s != nil {
		return s.IsSecure()
	}
	return r.TLS != nil
}

func protocolOf(r *http.Request) session.Protocol {
	if s := session.FromRequest(r); s != nil {
		return s.Protocol()
	}
	if r.ProtoMajor == 2 {
		return session.HTTP2
	}
	return session.HTTP11
}

package server

import (
	"log/slog"

	"github.com/utkarsh5026/httpsfront/pkg/conf"
	"github.com/utkarsh5026/httpsfront/pkg/engine"
	"github.com/utkarsh5026/httpsfront/pkg/security"
	"github.com/utkarsh5026/httpsfront/pkg/transport"
)

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithProvider sets the engine provider; the default is engine.NewProvider().
func WithProvider(p *engine.Provider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

// WithAdmission gates every accepted connection before its handshake.
func WithAdmission(a *security.Admission) Option {
	return func(s *Server) {
		s.admission = a
	}
}

// WithMaxHandshakes bounds the handshakes running at once. n <= 0 removes
// the bound.
func WithMaxHandshakes(n int) Option {
	return func(s *Server) {
		s.maxHandshakes = int64(n)
	}
}

// WithOnHandshakeFailure is called from the connection's goroutine for
// every failed handshake.
func WithOnHandshakeFailure(fn func(*transport.HandshakeError)) Option {
	return func(s *Server) {
		s.onFailure = fn
	}
}

func WithTimeouts(t conf.TimeoutConfig) Option {
	return func(s *Server) {
		s.timeouts = t
	}
}

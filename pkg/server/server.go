// Package server is the HTTPS front end: it accepts connections, runs the
// handshake on each one and only then hands it to the HTTP layer.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/utkarsh5026/httpsfront/pkg/conf"
	"github.com/utkarsh5026/httpsfront/pkg/engine"
	"github.com/utkarsh5026/httpsfront/pkg/security"
	"github.com/utkarsh5026/httpsfront/pkg/session"
	"github.com/utkarsh5026/httpsfront/pkg/transport"
)

var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

type Server struct {
	handler http.Handler

	logger        *slog.Logger
	provider      *engine.Provider
	admission     *security.Admission
	maxHandshakes int64
	onFailure     func(*transport.HandshakeError)
	timeouts      conf.TimeoutConfig

	negotiator *transport.Negotiator
	http1      *http.Server
	http2      *http2.Server
	handshakes *semaphore.Weighted

	listener net.Listener
	queue    *connQueue

	// baseCtx outlives the listener so that closing it does not abort
	// handshakes already accepted
	baseCtx    context.Context
	cancelBase context.CancelFunc

	group      *errgroup.Group
	acceptDone chan struct{}
	inFlight   sync.WaitGroup
	conns      sync.WaitGroup
	raw        sync.Map // net.Conn -> struct{}
	sessions   sync.Map // served net.Conn -> *session.Context

	started  atomic.Bool
	closing  atomic.Bool
	draining atomic.Bool

	stats counters
}

// New validates cfg and prepares the engine without binding anything.
// Engine, credential and ALPN capability errors are returned here.
func New(cfg transport.NegotiationConfig, handler http.Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, errors.New("handler is required")
	}

	s := &Server{
		handler:    handler,
		logger:     slog.Default(),
		acceptDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	negotiator, err := transport.NewNegotiator(cfg, s.provider, transport.WithNegotiatorLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to configure negotiation: %w", err)
	}
	s.negotiator = negotiator

	if s.maxHandshakes > 0 {
		s.handshakes = semaphore.NewWeighted(s.maxHandshakes)
	}

	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	s.http1 = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.timeouts.ReadHeader,
		ReadTimeout:       s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
		IdleTimeout:       s.timeouts.Idle,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
		ConnContext:       s.connContext,
		ConnState:         s.connState,
	}

	s.http2 = &http2.Server{IdleTimeout: s.timeouts.Idle}
	// registers the HTTP/2 graceful shutdown with http1.Shutdown
	if err := http2.ConfigureServer(s.http1, s.http2); err != nil {
		return nil, fmt.Errorf("failed to configure http2: %w", err)
	}

	return s, nil
}

// Start binds addr and serves in the background. Nothing is bound when it
// returns an error.
func (s *Server) Start(addr string) error {
	if s.started.Load() {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	return s.Serve(ln)
}

// Serve takes ownership of ln and serves on it in the background.
func (s *Server) Serve(ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.listener = ln
	s.queue = newConnQueue(ln.Addr())

	s.group = &errgroup.Group{}
	s.group.Go(func() error {
		err := s.http1.Serve(s.queue)
		// the queue only closes on its own when accepting failed
		if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	})
	s.group.Go(func() error {
		defer close(s.acceptDone)

		err := s.startAccepting()
		if err != nil {
			s.logger.Error("stopped accepting connections", "listen", ln.Addr().String(), "error", err)
			s.queue.Close()
		}
		return err
	})

	cfg := s.negotiator.Config()
	attrs := []any{
		"listen", ln.Addr().String(),
		"tls", cfg.TLSEnabled,
		"alpn", cfg.ALPNEnabled,
		"client_auth", cfg.ClientAuth.String(),
		"protocol", cfg.Protocol.String(),
	}
	if eng := s.negotiator.Engine(); eng != nil {
		attrs = append(attrs, "engine", eng.Kind().String())
	}
	s.logger.Info("https front end started", attrs...)

	return nil
}

// Wait blocks until the server stopped serving and returns the first
// error that made it stop.
func (s *Server) Wait() error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	return s.group.Wait()
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stats() Stats {
	return s.stats.snapshot()
}

func (s *Server) startAccepting() error {
	var tempDelay time.Duration

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				tempDelay = min(max(2*tempDelay, 5*time.Millisecond), time.Second)
				s.logger.Error("failed to accept connection", "error", err, "retry_in", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		tempDelay = 0

		s.raw.Store(conn, struct{}{})
		s.inFlight.Add(1)
		s.conns.Go(func() {
			defer s.raw.Delete(conn)
			s.handleConnection(conn)
		})
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	ip := security.HostOf(conn.RemoteAddr())
	s.stats.accepted.Add(1)

	if s.admission != nil {
		if err := s.admission.Allow(ip); err != nil {
			s.inFlight.Done()
			s.stats.rejected.Add(1)
			s.logger.Debug("connection refused", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
			return
		}
	}

	sess, served, err := s.negotiate(conn)
	s.inFlight.Done()
	if err != nil {
		s.handshakeFailed(ip, err)
		conn.Close()
		return
	}

	if s.admission != nil {
		s.admission.RecordSuccess(ip)
	}
	s.stats.established.Add(1)

	if s.draining.Load() {
		served.Close()
		return
	}

	s.stats.active.Add(1)

	switch sess.Protocol() {
	case session.HTTP2:
		defer s.stats.active.Add(-1)
		defer served.Close()

		s.http2.ServeConn(served, &http2.ServeConnOpts{
			Context:    session.WithContext(s.baseCtx, sess),
			Handler:    s.handler,
			BaseConfig: s.http1,
		})

	default:
		s.sessions.Store(served, sess)
		if err := s.queue.push(served); err != nil {
			s.sessions.Delete(served)
			s.stats.active.Add(-1)
			served.Close()
		}
	}
}

func (s *Server) negotiate(conn net.Conn) (*session.Context, net.Conn, error) {
	if s.handshakes != nil {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.negotiator.HandshakeTimeout())
		err := s.handshakes.Acquire(ctx, 1)
		cancel()
		if err != nil {
			return nil, nil, &transport.HandshakeError{
				Reason: transport.ReasonTimeout,
				Remote: conn.RemoteAddr().String(),
				Err:    fmt.Errorf("waiting for a handshake slot: %w", err),
			}
		}
		defer s.handshakes.Release(1)
	}

	return s.negotiator.Negotiate(s.baseCtx, conn)
}

func (s *Server) handshakeFailed(ip string, err error) {
	var he *transport.HandshakeError
	if !errors.As(err, &he) {
		he = &transport.HandshakeError{Reason: transport.ReasonProtocolMismatch, Err: err}
	}

	s.stats.failure(he.Reason)
	s.logger.Warn("handshake failed", "remote", he.Remote, "reason", he.Reason.String(), "error", he.Err)

	if s.admission != nil {
		s.admission.RecordFailure(ip)
	}
	if s.onFailure != nil {
		s.onFailure(he)
	}
}

func (s *Server) connContext(ctx context.Context, c net.Conn) context.Context {
	if sess, ok := s.sessions.Load(c); ok {
		return session.WithContext(ctx, sess.(*session.Context))
	}
	return ctx
}

func (s *Server) connState(c net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed, http.StateHijacked:
		if _, ok := s.sessions.LoadAndDelete(c); ok {
			s.stats.active.Add(-1)
		}
	}
}

// Shutdown stops accepting, lets handshakes already accepted finish, then
// drains HTTP connections gracefully. When ctx expires first, remaining
// connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("shutting down https front end")

	if err := s.listener.Close(); err != nil {
		s.logger.Error("Error closing listener", "error", err)
	}
	<-s.acceptDone

	var errs []error

	if err := waitContext(ctx, &s.inFlight); err != nil {
		errs = append(errs, fmt.Errorf("waiting for handshakes: %w", err))
	}

	s.draining.Store(true)
	if err := s.http1.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.queue.Close()

	if err := waitContext(ctx, &s.conns); err != nil {
		errs = append(errs, fmt.Errorf("waiting for connections: %w", err))
		s.forceClose()
		s.conns.Wait()
	}

	s.cancelBase()
	if err := s.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	st := s.Stats()
	s.logger.Info("Final statistics",
		"accepted", st.Accepted,
		"established", st.Established,
		"rejected", st.Rejected,
		"failed", st.TotalFailures())

	return errors.Join(errs...)
}

func (s *Server) forceClose() {
	_ = s.http1.Close()
	s.raw.Range(func(key, _ any) bool {
		if conn, ok := key.(net.Conn); ok {
			conn.Close()
		}
		return true
	})
}

func waitContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

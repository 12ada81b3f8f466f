// Package router is the request layer behind the front end. Its handlers
// only learn about the connection through the session snapshot.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/utkarsh5026/httpsfront/pkg/session"
)

// New returns the router served by the httpsfront binary.
//
//	GET /healthz  204, no requirements
//	GET /session  JSON view of the connection
//	GET /         204 on any secure connection
//	GET /h2       204 on secure HTTP/2 connections only
//	GET /h1       204 on secure HTTP/1.1 connections only
func New(logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", NoContent)
	r.Get("/session", SessionInfo)

	r.With(RequireSecure).Get("/", NoContent)
	r.With(RequireProtocol(session.HTTP2), RequireSecure).Get("/h2", NoContent)
	r.With(RequireProtocol(session.HTTP11), RequireSecure).Get("/h1", NoContent)

	return r
}

// RequestLogger logs one line per request with the connection's session
// fields.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"proto", r.Proto,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if s := session.FromRequest(r); s != nil {
				attrs = append(attrs, "session", s.ID, "secure", s.IsSecure(), "protocol", s.Protocol().String())
				if s.Peer != nil {
					attrs = append(attrs, "peer", s.Peer.CommonName)
				}
			}

			logger.Info("request", attrs...)
		})
	}
}

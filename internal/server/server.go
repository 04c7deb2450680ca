// Package server ties the hub, the HTTP routes and the WebSocket sessions
// together through the Server type.
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tyrowin/gohub/internal/hub"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Server owns the hub and serves the WebSocket endpoint and HTTP API in
// front of it.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	log      zerolog.Logger
	registry *prometheus.Registry
	origins  *originPolicy
	upgrader websocket.Upgrader

	// sessions counts running read and write pumps. Adds happen under mu
	// and stop once closed is set, so Shutdown's Wait never races an Add.
	mu       sync.Mutex
	closed   bool
	sessions sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the logger shared by the server, its sessions and the hub.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// NewServer creates a Server with its own hub and metrics registry.
func NewServer(cfg Config, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.Sanitize(),
		log:      zerolog.Nop(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.hub = hub.New(s.cfg.Hub,
		hub.WithLogger(s.log),
		hub.WithMetrics(hub.NewMetrics(s.registry)),
	)
	s.origins = newOriginPolicy(s.cfg.AllowedOrigins, s.log.With().Str("component", "origin").Logger())
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the server's hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Registry returns the Prometheus registry served on /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Shutdown shuts the hub down, which disposes every client and closes their
// connections, then waits for the session pumps to exit. The HTTP listener
// is stopped separately with ShutdownServer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	hubErr := s.hub.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("All sessions closed")
	case <-ctx.Done():
		s.log.Warn().Msg("Session shutdown timeout reached, some pumps may still be running")
		if hubErr == nil {
			return fmt.Errorf("waiting for sessions: %w", ctx.Err())
		}
	}
	return hubErr
}

// trackSession reserves the two pump slots of a new session. It reports
// false once Shutdown has started.
func (s *Server) trackSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.sessions.Add(2)
	return true
}

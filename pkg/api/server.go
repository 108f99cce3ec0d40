// Package api assembles the TC HTTP surface: the chi router, its
// middleware chain and the server lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/RuFFyGTLP/TC/config"
	"github.com/RuFFyGTLP/TC/pkg/logger"
)

// Server is the lifecycle the command drives.
type Server interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// HTTPServer serves the router built from a Handlers set.
type HTTPServer struct {
	server  *http.Server
	handler http.Handler
	log     logger.Logger
}

// ServerOption configures an HTTPServer.
type ServerOption func(*http.Server)

// WithOnShutdown runs fn when Shutdown starts. Hijacked websocket
// connections are not tracked by net/http, so the websocket handler
// closes its clients here.
func WithOnShutdown(fn func()) ServerOption {
	return func(s *http.Server) { s.RegisterOnShutdown(fn) }
}

// NewHTTPServer builds the server for cfg.Server.
func NewHTTPServer(cfg *config.Config, log logger.Logger, handlers *Handlers, opts ...ServerOption) *HTTPServer {
	router := NewRouter(cfg, log, handlers)
	httpCfg := cfg.Server.HTTP

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router,
		ReadTimeout:       httpCfg.ReadTimeout,
		ReadHeaderTimeout: httpCfg.ReadTimeout,
		WriteTimeout:      httpCfg.WriteTimeout,
		IdleTimeout:       httpCfg.IdleTimeout,
		MaxHeaderBytes:    httpCfg.MaxHeaderBytes,
	}
	for _, opt := range opts {
		opt(srv)
	}

	return &HTTPServer{server: srv, handler: router, log: log}
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown is called.
func (s *HTTPServer) Serve(l net.Listener) error {
	s.log.Info("HTTP server listening",
		"addr", l.Addr().String(),
		"read_timeout", s.server.ReadTimeout,
		"write_timeout", s.server.WriteTimeout,
	)
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("HTTP server failed", "error", err)
		return fmt.Errorf("serve HTTP: %w", err)
	}
	return nil
}

// Addr is the configured listen address.
func (s *HTTPServer) Addr() string { return s.server.Addr }

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler { return s.handler }

// Shutdown stops accepting requests and waits for in-flight ones until
// ctx is done.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP server shutdown failed", "error", err)
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// Package http serves the training, prediction and model export API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps http.Server with the API routes and middleware chain.
type Server struct {
	server  *http.Server
	config  ServerConfig
	handler http.Handler
}

// ServerConfig holds the listener and middleware settings.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig listens on 8080 with a 30s timeout and a 1 MiB body limit.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer registers the API routes behind the middleware chain.
func NewServer(config ServerConfig, api *API) *Server {
	mux := http.NewServeMux()
	RegisterHandlers(mux, api)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
		TimeoutMiddleware(config.Timeout),
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			Handler:     handler,
			ReadTimeout: config.Timeout,
			IdleTimeout: 120 * time.Second,
		},
		config:  config,
		handler: handler,
	}
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	zap.L().Info("starting http server",
		zap.String("addr", s.server.Addr),
		zap.String("ws", fmt.Sprintf("ws://localhost%s/api/ws/training", s.server.Addr)))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down, waiting up to five seconds for open requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zap.L().Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler exposes the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

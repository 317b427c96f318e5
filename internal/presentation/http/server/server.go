// Package server provides HTTP server initialization and management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AtRiskMedia/storykeep-go/internal/application/container"
	"github.com/AtRiskMedia/storykeep-go/internal/presentation/http/routes"
	"github.com/AtRiskMedia/storykeep-go/pkg/config"
)

// Server wraps the HTTP server as a supervised service
type Server struct {
	httpServer      *http.Server
	container       *container.Container
	shutdownTimeout time.Duration
}

// New creates a new HTTP server instance with dependency injection
func New(port string, container *container.Container) *Server {
	router := routes.SetupRoutes(container)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	return &Server{
		httpServer:      httpServer,
		container:       container,
		shutdownTimeout: 10 * time.Second,
	}
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	logger := s.container.Logger
	errCh := make(chan error, 1)
	go func() {
		logger.Startup().Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Shutdown().Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String names the service in supervisor logs.
func (s *Server) String() string {
	return "http-server"
}

// Package http provides the HTTP server and read-only API for streampulse.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/streampulse/internal/config"
	"github.com/jmylchreest/streampulse/internal/database"
	"github.com/jmylchreest/streampulse/internal/events"
	"github.com/jmylchreest/streampulse/internal/http/handlers"
	"github.com/jmylchreest/streampulse/internal/http/middleware"
	"github.com/jmylchreest/streampulse/internal/repository"
)

// Server is the HTTP server exposing stream records, metric history, and the
// live event feed.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
}

// Dependencies holds the collaborators wired into the API handlers.
type Dependencies struct {
	Streams repository.StreamRepository
	Metrics repository.MetricRepository
	Bus     *events.Bus
	DB      *database.DB
	Version string
}

// NewServer creates the HTTP server and mounts all routes.
func NewServer(cfg config.ServerConfig, deps Dependencies, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())

	// SSE needs unbuffered streaming; compression interferes with flushing.
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	streamHandler := handlers.NewStreamHandler(deps.Streams, deps.Metrics, logger)
	eventsHandler := handlers.NewEventsHandler(deps.Bus, logger)
	systemHandler := handlers.NewSystemHandler(deps.Version, deps.DB, logger)

	systemHandler.RegisterHealth(router)
	router.Route("/api/v1", func(r chi.Router) {
		streamHandler.Register(r)
		eventsHandler.Register(r)
		systemHandler.Register(r)
	})

	return &Server{
		config: cfg,
		router: router,
		logger: logger,
	}
}

// Router returns the router, used by tests and for mounting extra routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start starts the server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and shuts it down when the context is
// cancelled. It blocks until the server has stopped.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Start()
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

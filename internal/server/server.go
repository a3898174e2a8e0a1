// Package server exposes the read API: topic listings over the active
// cluster run, full-text search, recent events and the live event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"veille/internal/bus"
	"veille/internal/config"
	"veille/internal/logger"
	"veille/internal/persistence"
	"veille/internal/search"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	search     *search.Client
	bus        *bus.Bus
	config     config.Server
	log        *slog.Logger
}

// New creates a new HTTP server instance
func New(db persistence.Database, searchClient *search.Client, eventBus *bus.Bus, cfg config.Server) *Server {
	s := &Server{
		router: chi.NewRouter(),
		db:     db,
		search: searchClient,
		bus:    eventBus,
		config: cfg,
		log:    logger.With("server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: cfg.ReadTimeout,
		// WriteTimeout stays at the configured zero unless overridden;
		// stream sessions hold their connection open indefinitely.
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// CORS for the mobile app and browser clients
	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.Get("/health", s.handleHealth)

	// Status endpoint
	s.router.Get("/api/status", s.handleStatus)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			// Topics API
			r.Get("/topics", s.handleListTopics)
			r.Get("/topics/{id}", s.handleGetTopic)

			// Search API
			r.Get("/search", s.handleSearch)

			// Events API
			r.Get("/events", s.handleListEvents)
		})

		// The stream route sits outside the timeout group; sessions live
		// as long as the client stays connected.
		r.Get("/events/stream", s.handleEventStream)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}

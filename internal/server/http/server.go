// Package httpserver provides the HTTP REST API of the catalog fetch service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/database"
	"github.com/helixir/catalog-fetch-service/internal/events"
	"github.com/helixir/catalog-fetch-service/internal/fetcher"
	"github.com/helixir/catalog-fetch-service/internal/importers"
	"github.com/helixir/catalog-fetch-service/internal/prefs"
	"github.com/helixir/catalog-fetch-service/internal/unlinked"
)

// HealthChecker reports the health of a backing store.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Deps are the services behind the API.
type Deps struct {
	Fetchers  *fetcher.Registry
	Importers *importers.Registry
	// ImporterList is the persisted custom importer list, kept in sync with
	// the custom importers registered in Importers.
	ImporterList *importers.List
	Preferences  prefs.Store
	Finder       *unlinked.Finder
	FileImporter *unlinked.Importer
	Publisher    events.Publisher
	// Health is nil when preferences are kept in memory.
	Health HealthChecker
	// DefaultPatterns is used by scans that give no patterns.
	DefaultPatterns []string
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	validate   *validator.Validate
	logger     zerolog.Logger

	// importersMu serializes changes to the importer list, its stored copy
	// and the importer registry.
	importersMu sync.Mutex
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	if deps.Publisher == nil {
		deps.Publisher = events.NoopPublisher{}
	}

	s := &Server{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/fetchers", s.listFetchers)
		r.Get("/fetchers/{name}/search", s.searchFetcher)
		r.Get("/fetchers/{name}/url", s.fetcherURL)

		r.Get("/importers", s.listImporters)
		r.Post("/importers", s.addImporter)
		r.Delete("/importers/{name}", s.removeImporter)

		r.Post("/unlinked/scan", s.scanUnlinked)
		r.Post("/unlinked/import", s.importUnlinked)
		r.Post("/unlinked/export", s.exportUnlinked)
	})

	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler checks the preference store when it is database backed.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "preferences": "memory"})
		return
	}

	health := s.deps.Health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": health.Status,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

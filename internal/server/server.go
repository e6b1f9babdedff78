// Package server provides the HTTP surface of the engine: pairing-code
// endpoints and a small read-only API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/botmesh/botmesh/internal/config"
	"github.com/botmesh/botmesh/internal/dispatch"
	"github.com/botmesh/botmesh/internal/lifecycle"
	"github.com/botmesh/botmesh/internal/registry"
)

// Server is the HTTP server.
type Server struct {
	cfg       *config.Config
	engine    *lifecycle.Engine
	registry  *registry.Registry
	commands  *dispatch.Registry
	router    *chi.Mux
	httpSrv   *http.Server
	startedAt time.Time
}

// New creates a server over the engine and its registries.
func New(cfg *config.Config, engine *lifecycle.Engine, reg *registry.Registry, commands *dispatch.Registry) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		registry:  reg,
		commands:  commands,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Port),
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

package server

import "github.com/go-chi/chi/v5"

func (s *Server) setupRoutes() {
	s.router.Get("/code", s.handleStartPairing)
	s.router.Get("/code/active", s.handleActive)
	s.router.Get("/code/ping", s.handlePing)
	s.router.Get("/code/reconnect-all", s.handleReconnectAll)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/commands", s.handleCommands)
		r.Get("/sessions", s.handleSessions)
		r.Get("/health", s.handleHealth)
	})
}

package server

import (
	"errors"
	"net/http"

	"github.com/botmesh/botmesh/internal/lifecycle"
)

// handleStartPairing begins a session for the number in the query string
// and returns the pairing code, or an already-connected indication.
func (s *Server) handleStartPairing(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "number query parameter is required")
		return
	}

	code, err := s.engine.StartPairing(r.Context(), number)
	switch {
	case errors.Is(err, lifecycle.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "number must contain digits")
	case errors.Is(err, lifecycle.ErrAlreadyConnected):
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "already_connected",
		})
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "pairing",
			"code":   code,
		})
	}
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      s.registry.Count(),
		"identities": s.registry.Identities(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReconnectAll(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.engine.ReconnectAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if outcomes == nil {
		outcomes = []lifecycle.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": outcomes})
}

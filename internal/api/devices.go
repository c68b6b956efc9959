package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListSessions returns every live device session.
//
// The response mirrors the roster pushed to controllers over WebSocket:
// the same JSON shape, taken from the same registry snapshot.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.sessions.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": sessions,
		"count":   len(sessions),
	})
}

// handleGetSession returns a single live session by device ID.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	session, ok := s.sessions.Lookup(id)
	if !ok {
		writeNotFound(w, "device not connected: "+id)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

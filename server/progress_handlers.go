package server

import (
	"fmt"
	"net/http"
)

// progressSessionsHandler lists summaries of all active parse sessions
func (s *Server) progressSessionsHandler(w http.ResponseWriter, r *http.Request) {
	active := s.sessions.Active()
	renderJSON(w, r, http.StatusOK, map[string]any{
		"sessions": active,
		"count":    len(active),
	})
}

// progressSessionHandler returns the summary and full event history of one session
func (s *Server) progressSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Get(r.PathValue("id"))
	if sess == nil {
		renderError(w, r, fmt.Errorf("session not found"), http.StatusNotFound)
		return
	}
	renderJSON(w, r, http.StatusOK, map[string]any{
		"summary": sess.Summary(),
		"events":  sess.Events(),
	})
}

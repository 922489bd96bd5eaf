package httpapi

import "net/http"

// handleReadyz backs GET /readyz: a plain catalog connectivity check, left
// unauthenticated so an orchestrator's liveness/readiness probe never needs
// a credential.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

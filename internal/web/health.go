package web

import (
	"net/http"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReadyz reports whether downstream dependencies answer. When no Ready
// probe is wired (in-memory mode) the process is ready as soon as it serves.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, CodeInfrastructureError, "dependency not ready", nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := s.Version
	if version == "" {
		version = "dev"
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": version})
}

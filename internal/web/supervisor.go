package web

import (
	"net/http"

	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
)

func (s *Server) handleSupervisorPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	var req supervisor.PlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	actor := ActorFromContext(r.Context())
	resp, err := s.Supervisor.Plan(r.Context(), actor.Email, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupervisorExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	var req supervisor.ExecuteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	actor := ActorFromContext(r.Context())
	resp, err := s.Supervisor.Execute(r.Context(), actor.Email, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupervisorTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	defs := s.Supervisor.Tools.Registry.List()
	if defs == nil {
		defs = []tools.Tool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": defs})
}

package toolserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
)

// toolActor is attributed to every tool call entering through this surface.
const toolActor = "toolserver"

// Server is the tool-facing HTTP sidecar. Chat frontends call it with a
// shared secret instead of an operator token; WRITE and TEST tools go through
// the same two-step confirm flow the supervisor uses.
type Server struct {
	Mux          *http.ServeMux
	SharedSecret string
	Tools        *tools.Executor
	Tokens       *supervisor.TokenStore
}

func NewServer(exec *tools.Executor, tokens *supervisor.TokenStore, sharedSecret string) *Server {
	s := &Server{
		Mux:          http.NewServeMux(),
		SharedSecret: sharedSecret,
		Tools:        exec,
		Tokens:       tokens,
	}
	s.Mux.HandleFunc("/health", s.handleHealth)
	s.Mux.HandleFunc("/tools", s.withSecret(s.handleTools))
	s.Mux.HandleFunc("/run", s.withSecret(s.handleRun))
	return s
}

func (s *Server) Handler() http.Handler {
	return s.Mux
}

func (s *Server) withSecret(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.SharedSecret == "" {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "shared secret not configured"})
			return
		}
		secret := r.Header.Get("X-Tool-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(s.SharedSecret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid tool secret"})
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": "toolserver"})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.Tools.Registry.List()})
}

type runRequest struct {
	Tool         string         `json:"tool"`
	Params       map[string]any `json:"params"`
	Confirm      bool           `json:"confirm"`
	ConfirmToken string         `json:"confirm_token"`
}

type runResponse struct {
	Status         string         `json:"status"`
	Tool           string         `json:"tool"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	RequireConfirm bool           `json:"require_confirm,omitempty"`
	ConfirmToken   string         `json:"confirm_token,omitempty"`
	PlanSummary    string         `json:"plan_summary,omitempty"`
}

// handleRun executes READ tools immediately. WRITE and TEST tools answer the
// first call with a plan and a confirm token; the second call presents the
// token and runs. Tokens are single use and bound to the exact params.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}

	def, ok := s.Tools.Registry.Lookup(req.Tool)
	if !ok {
		writeJSON(w, http.StatusOK, runResponse{Status: "error", Tool: req.Tool, Error: "unknown tool: " + req.Tool})
		return
	}

	if def.Kind == tools.KindRead {
		s.execute(w, r, req)
		return
	}

	if req.Confirm && req.ConfirmToken != "" {
		if err := s.Tokens.Consume(req.ConfirmToken, req.Tool, supervisor.ParamsHash(req.Params)); err != nil {
			writeJSON(w, http.StatusOK, runResponse{Status: "error", Tool: req.Tool, Error: "invalid or expired confirm_token"})
			return
		}
		s.execute(w, r, req)
		return
	}

	token, _ := s.Tokens.Issue(req.Tool, supervisor.ParamsHash(req.Params))
	writeJSON(w, http.StatusOK, runResponse{
		Status:         "plan",
		Tool:           req.Tool,
		RequireConfirm: true,
		ConfirmToken:   token,
		PlanSummary:    planSummary(req.Tool, req.Params),
	})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, req runRequest) {
	result, err := s.Tools.Run(r.Context(), toolActor, req.Tool, req.Params)
	if err != nil {
		writeJSON(w, http.StatusOK, runResponse{Status: "error", Tool: req.Tool, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Status: "ok", Tool: req.Tool, Result: result})
}

func planSummary(tool string, params map[string]any) string {
	str := func(key string) string {
		v, _ := params[key].(string)
		return v
	}
	switch tool {
	case "jobs.create":
		title := str("title")
		if title == "" {
			title = "Untitled"
		}
		return fmt.Sprintf("Create job: %q", title)
	case "jobs.update":
		return fmt.Sprintf("Update job: %s", str("job_id"))
	case "jobs.approve":
		return fmt.Sprintf("Approve job: %s", str("job_id"))
	case "jobs.reject":
		return fmt.Sprintf("Reject job: %s", str("job_id"))
	case "jobs.set_needs_approval":
		return fmt.Sprintf("Set job to needs_approval: %s", str("job_id"))
	case "slack.simulate_mention":
		return fmt.Sprintf("Simulate Slack mention: %q", str("text"))
	default:
		return fmt.Sprintf("Execute %s with params: %v", tool, params)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

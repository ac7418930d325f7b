package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"jobsentry/internal/audit"
	"jobsentry/internal/auth"
	"jobsentry/internal/jobs"
	"jobsentry/internal/metrics"
	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
	"jobsentry/internal/webhook"
)

// Server is the HTTP API. Dependencies are plain fields so tests can wire
// in-memory implementations without constructors.
type Server struct {
	Mux        *http.ServeMux
	Jobs       *jobs.Service
	Supervisor *supervisor.Supervisor
	Tools      *tools.Executor
	Slack      *webhook.Intake
	GitHub     *webhook.Intake
	Audit      *audit.Recorder
	AuditLog   audit.Reader

	Signer        *auth.TokenSigner
	AdminEmail    string
	AdminPassword string
	ServiceToken  string

	RateLimiter         *RateLimiter
	EnableTestEndpoints bool
	Version             string

	Ready     func(ctx context.Context) error
	startedAt time.Time
}

func NewServer() *Server {
	s := &Server{
		Mux:       http.NewServeMux(),
		startedAt: time.Now().UTC(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the full middleware chain: request id, then metrics.
func (s *Server) Handler() http.Handler {
	return metrics.Middleware(s.withRequestID(s.Mux))
}

func (s *Server) registerRoutes() {
	s.Mux.HandleFunc("/healthz", s.handleHealthz)
	s.Mux.HandleFunc("/readyz", s.handleReadyz)
	s.Mux.HandleFunc("/version", s.handleVersion)
	s.Mux.Handle("/metrics", metrics.Handler())

	s.Mux.Handle("/v1/auth/login", s.withRateLimit(http.HandlerFunc(s.handleLogin)))

	s.Mux.Handle("/v1/jobs", s.withRateLimit(s.requireAuth(http.HandlerFunc(s.handleJobs))))
	s.Mux.Handle("/v1/jobs/", s.withRateLimit(s.requireAuth(http.HandlerFunc(s.handleJobByID))))

	s.Mux.Handle("/v1/supervisor/plan", s.withRateLimit(s.requireAuth(http.HandlerFunc(s.handleSupervisorPlan))))
	s.Mux.Handle("/v1/supervisor/execute", s.withRateLimit(s.requireAuth(http.HandlerFunc(s.handleSupervisorExecute))))
	s.Mux.Handle("/v1/supervisor/tools", s.requireAuth(http.HandlerFunc(s.handleSupervisorTools)))

	s.Mux.Handle("/v1/audit/events", s.requireAuth(http.HandlerFunc(s.handleAuditEvents)))
	s.Mux.Handle("/v1/audit/stats", s.requireAuth(http.HandlerFunc(s.handleAuditStats)))
	s.Mux.Handle("/v1/audit/actions", s.requireAuth(http.HandlerFunc(s.handleAuditActions)))

	// Webhook routes authenticate by signature, not bearer token.
	s.Mux.HandleFunc("/integrations/slack/events", s.handleSlackEvents)
	s.Mux.HandleFunc("/integrations/github/webhook", s.handleGitHubWebhook)
}

func (s *Server) withRequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()[:8]
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

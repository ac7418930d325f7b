package web

import (
	"io"
	"net/http"

	"jobsentry/internal/webhook"
)

// webhookResponse is the 200 body for every verified delivery. Duplicates ack
// with ok=true and duplicate=true: redelivery is expected sender behavior,
// not an error.
type webhookResponse struct {
	OK        bool   `json:"ok"`
	Outcome   string `json:"outcome"`
	JobID     string `json:"job_id,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	s.serveWebhook(w, r, s.Slack)
}

func (s *Server) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	s.serveWebhook(w, r, s.GitHub)
}

func (s *Server) serveWebhook(w http.ResponseWriter, r *http.Request, in *webhook.Intake) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	if in == nil {
		writeDomainError(w, r, webhook.ErrNotConfigured)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "unreadable body", nil)
		return
	}

	res, err := in.Handle(r.Context(), r.Header, body)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	switch res.Outcome {
	case webhook.OutcomeChallenge:
		// Slack url_verification and GitHub ping both expect the challenge
		// text echoed back.
		writeJSON(w, http.StatusOK, map[string]any{"challenge": res.Challenge})
	case webhook.OutcomeDuplicate:
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Outcome: string(res.Outcome), Duplicate: true})
	default:
		writeJSON(w, http.StatusOK, webhookResponse{OK: true, Outcome: string(res.Outcome), JobID: res.JobID})
	}
}

package web

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"time"

	"jobsentry/internal/jobs"
)

type createJobRequest struct {
	Title   string         `json:"title"`
	Payload map[string]any `json:"payload"`
	Source  string         `json:"source"`
}

type updateJobRequest struct {
	Title   *string        `json:"title"`
	Payload map[string]any `json:"payload"`
	Result  map[string]any `json:"result"`
}

type setStatusRequest struct {
	Status string         `json:"status"`
	Force  bool           `json:"force"`
	Result map[string]any `json:"result"`
}

type addNoteRequest struct {
	Text string `json:"text"`
}

type jobListResponse struct {
	Items []jobs.Job     `json:"items"`
	Meta  PaginationMeta `json:"meta"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listJobs(w, r)
	case http.MethodPost:
		s.createJob(w, r)
	default:
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := parsePagination(r)
	filter := jobs.ListFilter{
		Search: q.Get("search"),
		Sort:   q.Get("sort"),
		Order:  q.Get("order"),
		Limit:  limit,
		Offset: offset,
	}
	if raw := q.Get("status"); raw != "" {
		status, err := jobs.ParseStatus(raw)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		filter.Status = status
	}
	items, total, err := s.Jobs.Store.ListJobs(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobListResponse{
		Items: items,
		Meta:  PaginationMeta{Limit: limit, Offset: offset, Total: total},
	})
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	actor := ActorFromContext(r.Context())
	job, err := s.Jobs.Create(r.Context(), actor.Email, req.Title, req.Payload, source)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

// handleJobByID routes /v1/jobs/{id} and its sub-resources. The mux only
// gives us the prefix, so the tail is split by hand.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "job id required", nil)
		return
	}
	if id == "export" && len(parts) == 1 {
		s.exportJobs(w, r)
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.getJob(w, r, id)
		case http.MethodPatch, http.MethodPut:
			s.updateJob(w, r, id)
		default:
			writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		}
	case "approve":
		s.transitionJob(w, r, id, jobs.StatusApproved)
	case "reject":
		s.transitionJob(w, r, id, jobs.StatusRejected)
	case "status":
		s.setJobStatus(w, r, id)
	case "notes":
		s.handleNotes(w, r, id)
	case "export":
		s.exportJobCSV(w, r, id)
	case "set-needs-approval":
		if !s.EnableTestEndpoints {
			writeError(w, r, http.StatusNotFound, CodeNotFound, "not found", nil)
			return
		}
		s.setNeedsApproval(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, CodeNotFound, "not found", nil)
	}
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request, id string) {
	job, err := s.Jobs.Store.GetJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if notes, err := s.Jobs.Store.ListNotes(r.Context(), id); err == nil {
		job.Notes = notes
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// exportJobs dumps every job with its notes for offline review or backup.
func (s *Server) exportJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	items, total, err := s.Jobs.Store.ListJobs(r.Context(), jobs.ListFilter{Limit: 1000})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	for i := range items {
		if notes, err := s.Jobs.Store.ListNotes(r.Context(), items[i].ID); err == nil {
			items[i].Notes = notes
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        items,
		"total":       total,
		"exported_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request, id string) {
	var req updateJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	actor := ActorFromContext(r.Context())
	job, err := s.Jobs.Update(r.Context(), actor.Email, id, jobs.Update{
		Title:   req.Title,
		Payload: req.Payload,
		Result:  req.Result,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) transitionJob(w http.ResponseWriter, r *http.Request, id string, next jobs.Status) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	actor := ActorFromContext(r.Context())
	var (
		job jobs.Job
		err error
	)
	switch next {
	case jobs.StatusApproved:
		job, err = s.Jobs.Approve(r.Context(), actor.Email, id)
	case jobs.StatusRejected:
		job, err = s.Jobs.Reject(r.Context(), actor.Email, id)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// setJobStatus drives the general status endpoint. Without force it walks a
// legal edge of the trigger graph; with force it is the audited admin
// override, allowed only when the service is configured for it.
func (s *Server) setJobStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
		return
	}
	next, err := jobs.ParseStatus(req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	actor := ActorFromContext(r.Context())

	var job jobs.Job
	if req.Force {
		job, err = s.Jobs.ForceStatus(r.Context(), actor.Email, id, next)
	} else {
		switch next {
		case jobs.StatusProcessing:
			job, err = s.Jobs.Begin(r.Context(), actor.Email, id)
		case jobs.StatusNeedsApproval:
			job, err = s.Jobs.RequireApproval(r.Context(), actor.Email, id)
		case jobs.StatusApproved:
			job, err = s.Jobs.Approve(r.Context(), actor.Email, id)
		case jobs.StatusRejected:
			job, err = s.Jobs.Reject(r.Context(), actor.Email, id)
		case jobs.StatusCompleted, jobs.StatusFailed:
			job, err = s.Jobs.Finish(r.Context(), actor.Email, id, next, req.Result)
		default:
			current, getErr := s.Jobs.Store.GetJob(r.Context(), id)
			if getErr != nil {
				writeDomainError(w, r, getErr)
				return
			}
			err = jobs.NewTransitionError(id, current.Status, next)
		}
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) setNeedsApproval(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	actor := ActorFromContext(r.Context())
	job, err := s.Jobs.Store.GetJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if job.Status == jobs.StatusQueued {
		if job, err = s.Jobs.Begin(r.Context(), actor.Email, id); err != nil {
			writeDomainError(w, r, err)
			return
		}
	}
	job, err = s.Jobs.RequireApproval(r.Context(), actor.Email, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		notes, err := s.Jobs.Store.ListNotes(r.Context(), id)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": notes})
	case http.MethodPost:
		var req addNoteRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "invalid json", nil)
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "note text required", nil)
			return
		}
		actor := ActorFromContext(r.Context())
		note, err := s.Jobs.AddNote(r.Context(), actor.Email, id, req.Text)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"note": note})
	default:
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
	}
}

// exportJobCSV renders one job with its notes as CSV.
func (s *Server) exportJobCSV(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	job, err := s.Jobs.Store.GetJob(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	notes, err := s.Jobs.Store.ListNotes(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "job-"+id+".csv"))
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"field", "value"})
	_ = cw.Write([]string{"id", job.ID})
	_ = cw.Write([]string{"title", job.Title})
	_ = cw.Write([]string{"status", string(job.Status)})
	_ = cw.Write([]string{"source", job.Source})
	_ = cw.Write([]string{"created_at", job.CreatedAt.Format("2006-01-02 15:04:05")})
	_ = cw.Write([]string{"updated_at", job.UpdatedAt.Format("2006-01-02 15:04:05")})
	for i, n := range notes {
		_ = cw.Write([]string{fmt.Sprintf("note_%d", i+1), fmt.Sprintf("[%s] %s", n.Author, n.Text)})
	}
	cw.Flush()
}

package web

import (
	"net/http"

	"jobsentry/internal/audit"
)

type auditListResponse struct {
	Items []audit.Event  `json:"items"`
	Meta  PaginationMeta `json:"meta"`
}

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	q := r.URL.Query()
	limit, offset := parsePagination(r)
	filter := audit.Filter{
		Action: q.Get("action"),
		Actor:  q.Get("actor"),
		Status: q.Get("status"),
		JobID:  q.Get("job_id"),
		Limit:  limit,
		Offset: offset,
	}
	items, total, err := s.AuditLog.ListAuditEvents(r.Context(), filter)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if items == nil {
		items = []audit.Event{}
	}
	writeJSON(w, http.StatusOK, auditListResponse{
		Items: items,
		Meta:  PaginationMeta{Limit: limit, Offset: offset, Total: total},
	})
}

func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	stats, err := s.AuditLog.AuditStats(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAuditActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, CodeUnclassifiable, "method not allowed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": audit.Actions()})
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"jobsentry/internal/jobs"
	"jobsentry/internal/supervisor"
	"jobsentry/internal/tools"
	"jobsentry/internal/webhook"
)

const maxRequestBody = 1 << 20 // 1 MB

// Error codes on the wire. Callers branch on code, never on message text.
const (
	CodeInvalidSignature       = "invalid_signature"
	CodeStaleTimestamp         = "stale_timestamp"
	CodeDuplicateEvent         = "duplicate_event"
	CodeInvalidStateTransition = "invalid_state_transition"
	CodeInvalidConfirmToken    = "invalid_or_expired_confirm_token"
	CodeToolExecutionError     = "tool_execution_error"
	CodeInfrastructureError    = "infrastructure_error"
	CodeUnclassifiable         = "unclassifiable_request"
	CodeNotFound               = "not_found"
	CodeUnauthorized           = "unauthorized"
	CodeForbidden              = "forbidden"
	CodeRateLimited            = "rate_limited"
)

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError emits the uniform error envelope. Messages stay generic; no
// secrets, signatures, or token values ever appear here.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:      code,
		Message:   message,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}})
}

// writeDomainError maps known error types to their wire code and status.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var terr *jobs.TransitionError
	switch {
	case errors.As(err, &terr):
		writeError(w, r, http.StatusConflict, CodeInvalidStateTransition, "illegal status transition", map[string]any{
			"job_id":    terr.JobID,
			"current":   string(terr.Current),
			"requested": string(terr.Requested),
		})
	case errors.Is(err, jobs.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, CodeInvalidStateTransition, "illegal status transition", nil)
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "job not found", nil)
	case errors.Is(err, jobs.ErrUnknownStatus):
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "unknown status", nil)
	case errors.Is(err, jobs.ErrForceStatusDisabled):
		writeError(w, r, http.StatusForbidden, CodeForbidden, "force status disabled", nil)
	case errors.Is(err, supervisor.ErrInvalidConfirmToken):
		writeError(w, r, http.StatusForbidden, CodeInvalidConfirmToken, "confirm token invalid or expired", nil)
	case errors.Is(err, supervisor.ErrBadExecuteCommand):
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "execute command must read EXECUTE <ACTION>", nil)
	case errors.Is(err, webhook.ErrStaleTimestamp):
		writeError(w, r, http.StatusUnauthorized, CodeStaleTimestamp, "request timestamp outside freshness window", nil)
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, r, http.StatusUnauthorized, CodeInvalidSignature, "signature verification failed", nil)
	case errors.Is(err, webhook.ErrMalformedPayload):
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "malformed payload", nil)
	case errors.Is(err, webhook.ErrNotConfigured):
		writeError(w, r, http.StatusServiceUnavailable, CodeInfrastructureError, "integration not configured", nil)
	case errors.Is(err, tools.ErrUnknownTool):
		writeError(w, r, http.StatusNotFound, CodeNotFound, "unknown tool", nil)
	case errors.Is(err, tools.ErrInvalidParams):
		writeError(w, r, http.StatusBadRequest, CodeUnclassifiable, "tool params failed validation", nil)
	default:
		var execErr *tools.ExecutionError
		if errors.As(err, &execErr) {
			writeError(w, r, http.StatusInternalServerError, CodeToolExecutionError, "tool execution failed", map[string]any{
				"tool": execErr.Tool,
			})
			return
		}
		writeError(w, r, http.StatusInternalServerError, CodeInfrastructureError, "internal error", nil)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	return json.NewDecoder(r.Body).Decode(v)
}

// PaginationMeta carries pagination metadata in list responses.
type PaginationMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// parsePagination extracts limit and offset from query parameters.
// Defaults: limit=50, max limit=200, offset>=0.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 200 {
		limit = 200
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

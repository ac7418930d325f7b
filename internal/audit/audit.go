package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the core. Kept as a catalog so the API can expose the
// full set without scraping call sites.
const (
	ActionJobCreate       = "job.create"
	ActionJobUpdate       = "job.update"
	ActionJobStatusChange = "job.status_change"
	ActionJobApprove      = "job.approve"
	ActionJobReject       = "job.reject"
	ActionJobNoteAdd      = "job.note_add"
	ActionSupervisorPlan  = "supervisor.plan"
	ActionSupervisorExec  = "supervisor.execute"
	ActionToolExecute     = "tool.execute"
	ActionWebhookReceived = "webhook.received"
	ActionSystemStartup   = "system.startup"
	ActionSystemError     = "system.error"
)

// Actions lists every action the core may record.
func Actions() []string {
	return []string{
		ActionJobCreate,
		ActionJobUpdate,
		ActionJobStatusChange,
		ActionJobApprove,
		ActionJobReject,
		ActionJobNoteAdd,
		ActionSupervisorPlan,
		ActionSupervisorExec,
		ActionToolExecute,
		ActionWebhookReceived,
		ActionSystemStartup,
		ActionSystemError,
	}
}

// Event is one immutable governance record. Events are appended, never
// mutated or deleted.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Actor     string         `json:"actor"`
	Status    string         `json:"status"`
	JobID     string         `json:"job_id,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	InsertAuditEvent(ctx context.Context, ev Event) (string, error)
}

// Filter narrows audit queries. Zero fields match everything.
type Filter struct {
	Action string
	Actor  string
	Status string
	JobID  string
	Limit  int
	Offset int
}

// Stats summarizes the log for the stats endpoint.
type Stats struct {
	TotalEvents    int            `json:"total_events"`
	EventsByAction map[string]int `json:"events_by_action"`
	EventsByStatus map[string]int `json:"events_by_status"`
	OldestEvent    *time.Time     `json:"oldest_event"`
	NewestEvent    *time.Time     `json:"newest_event"`
}

// Reader serves the audit API.
type Reader interface {
	ListAuditEvents(ctx context.Context, f Filter) ([]Event, int, error)
	AuditStats(ctx context.Context) (Stats, error)
}

// Recorder fills in identity fields, redacts secrets from details, and hands
// the event to its sink. A nil sink logs and drops, so a missing audit store
// never blocks the calling operation during startup or tests.
type Recorder struct {
	Sink  Sink
	Clock func() time.Time
}

func NewRecorder(sink Sink) *Recorder {
	return &Recorder{Sink: sink}
}

func (r *Recorder) Record(ctx context.Context, ev Event) {
	now := time.Now().UTC()
	if r != nil && r.Clock != nil {
		now = r.Clock().UTC()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if ev.Status == "" {
		ev.Status = "ok"
	}
	if ev.RequestID == "" {
		ev.RequestID = uuid.NewString()[:8]
	}
	ev.Details = RedactMap(ev.Details)
	if r == nil || r.Sink == nil {
		slog.Debug("audit event dropped", "action", ev.Action, "actor", ev.Actor)
		return
	}
	if _, err := r.Sink.InsertAuditEvent(ctx, ev); err != nil {
		// Audit failures are logged, not propagated: the action already
		// happened and must not be rolled back because bookkeeping failed.
		slog.Error("audit insert", "action", ev.Action, "error", err)
	}
}

package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is a job lifecycle state. "done" is accepted on input as a display
// alias of StatusCompleted and normalized away by ParseStatus; it never
// exists as a distinct state.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusProcessing    Status = "processing"
	StatusNeedsApproval Status = "needs_approval"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Statuses lists the canonical states in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusQueued,
		StatusProcessing,
		StatusNeedsApproval,
		StatusApproved,
		StatusRejected,
		StatusCompleted,
		StatusFailed,
	}
}

var ErrUnknownStatus = errors.New("unknown status")

// ParseStatus normalizes raw input to a canonical status. Matching is
// case-insensitive and maps the "done" alias to completed.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s == "done" {
		return StatusCompleted, nil
	}
	for _, known := range Statuses() {
		if s == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Note is one operator annotation on a job.
type Note struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Job is one tracked unit of work. ID is immutable once created; Status only
// changes through the store's transition primitives; UpdatedAt never moves
// backwards.
type Job struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Status     Status         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Payload    map[string]any `json:"payload,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Source     string         `json:"source,omitempty"`
	NotesCount int            `json:"notes_count"`
	Notes      []Note         `json:"notes,omitempty"`
}

// Clone returns a deep-enough copy so callers cannot mutate store state
// through returned jobs.
func (j Job) Clone() Job {
	out := j
	if j.Payload != nil {
		out.Payload = copyMap(j.Payload)
	}
	if j.Result != nil {
		out.Result = copyMap(j.Result)
	}
	if j.Notes != nil {
		out.Notes = append([]Note(nil), j.Notes...)
	}
	return out
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

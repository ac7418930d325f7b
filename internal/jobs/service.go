package jobs

import (
	"context"
	"errors"
	"fmt"

	"jobsentry/internal/audit"
	"jobsentry/internal/metrics"
)

var ErrForceStatusDisabled = errors.New("force status disabled")

// Service wraps a Store with the audit and metrics obligations of the state
// machine: every transition emits exactly one audit event carrying actor,
// old status, and new status.
type Service struct {
	Store      Store
	Audit      *audit.Recorder
	AllowForce bool
}

func NewService(store Store, rec *audit.Recorder) *Service {
	return &Service{Store: store, Audit: rec}
}

// Create inserts a new job in queued.
func (s *Service) Create(ctx context.Context, actor, title string, payload map[string]any, source string) (Job, error) {
	if title == "" {
		title = "Untitled Job"
	}
	job, err := s.Store.CreateJob(ctx, Job{Title: title, Payload: payload, Source: source})
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionJobCreate,
		Actor:  actor,
		JobID:  job.ID,
		Details: map[string]any{
			"title":  job.Title,
			"source": job.Source,
			"status": string(job.Status),
		},
	})
	return job, nil
}

// Update edits title/payload and bumps updated_at.
func (s *Service) Update(ctx context.Context, actor, id string, upd Update) (Job, error) {
	job, err := s.Store.UpdateJob(ctx, id, upd)
	if err != nil {
		return Job{}, err
	}
	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionJobUpdate,
		Actor:  actor,
		JobID:  job.ID,
	})
	return job, nil
}

// Transition applies one legal edge of the trigger graph. Illegal requests
// come back as *TransitionError with no mutation; they are still audited
// with status failed so the refusal is visible in the trail.
func (s *Service) Transition(ctx context.Context, actor, id string, expected, next Status, mutate func(*Job)) (Job, error) {
	job, err := s.Store.Transition(ctx, id, expected, next, mutate)
	if err != nil {
		var terr *TransitionError
		if errors.As(err, &terr) {
			metrics.JobTransitionsTotal.WithLabelValues(string(terr.Current), string(next), "rejected").Inc()
			s.Audit.Record(ctx, audit.Event{
				Action: actionForTransition(next),
				Actor:  actor,
				Status: "failed",
				JobID:  id,
				Details: map[string]any{
					"from":      string(terr.Current),
					"requested": string(next),
					"reason":    "invalid_state_transition",
				},
			})
		}
		return Job{}, err
	}
	metrics.JobTransitionsTotal.WithLabelValues(string(expected), string(next), "ok").Inc()
	s.Audit.Record(ctx, audit.Event{
		Action: actionForTransition(next),
		Actor:  actor,
		JobID:  job.ID,
		Details: map[string]any{
			"from": string(expected),
			"to":   string(next),
		},
	})
	return job, nil
}

// Approve moves needs_approval -> approved. Legal from no other state.
func (s *Service) Approve(ctx context.Context, actor, id string) (Job, error) {
	return s.Transition(ctx, actor, id, StatusNeedsApproval, StatusApproved, nil)
}

// Reject moves needs_approval -> rejected.
func (s *Service) Reject(ctx context.Context, actor, id string) (Job, error) {
	return s.Transition(ctx, actor, id, StatusNeedsApproval, StatusRejected, nil)
}

// Begin marks queued work as picked up.
func (s *Service) Begin(ctx context.Context, actor, id string) (Job, error) {
	return s.Transition(ctx, actor, id, StatusQueued, StatusProcessing, nil)
}

// RequireApproval parks in-flight work behind the approval gate.
func (s *Service) RequireApproval(ctx context.Context, actor, id string) (Job, error) {
	return s.Transition(ctx, actor, id, StatusProcessing, StatusNeedsApproval, nil)
}

// Finish ends a job in completed or failed. It is legal from processing
// (work that never needed approval) and from approved; the compare-and-swap
// inside Transition closes the race with concurrent finishers.
func (s *Service) Finish(ctx context.Context, actor, id string, outcome Status, result map[string]any) (Job, error) {
	if outcome != StatusCompleted && outcome != StatusFailed {
		return Job{}, NewTransitionError(id, "", outcome)
	}
	current, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	mutate := func(j *Job) {
		if outcome == StatusCompleted && result != nil {
			j.Result = result
		}
	}
	return s.Transition(ctx, actor, id, current.Status, outcome, mutate)
}

// ForceStatus is the administrative override: any target state, bypassing
// the trigger graph, still audited. Disabled unless configured on.
func (s *Service) ForceStatus(ctx context.Context, actor, id string, next Status) (Job, error) {
	if !s.AllowForce {
		return Job{}, ErrForceStatusDisabled
	}
	before, err := s.Store.GetJob(ctx, id)
	if err != nil {
		return Job{}, err
	}
	job, err := s.Store.ForceStatus(ctx, id, next)
	if err != nil {
		return Job{}, err
	}
	metrics.JobTransitionsTotal.WithLabelValues(string(before.Status), string(next), "forced").Inc()
	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionJobStatusChange,
		Actor:  actor,
		JobID:  job.ID,
		Details: map[string]any{
			"from":   string(before.Status),
			"to":     string(next),
			"forced": true,
		},
	})
	return job, nil
}

// AddNote appends an operator note.
func (s *Service) AddNote(ctx context.Context, actor, id, text string) (Note, error) {
	note, err := s.Store.AddNote(ctx, id, Note{Author: actor, Text: text})
	if err != nil {
		return Note{}, err
	}
	s.Audit.Record(ctx, audit.Event{
		Action: audit.ActionJobNoteAdd,
		Actor:  actor,
		JobID:  id,
		Details: map[string]any{
			"note_id": note.ID,
		},
	})
	return note, nil
}

func actionForTransition(next Status) string {
	switch next {
	case StatusApproved:
		return audit.ActionJobApprove
	case StatusRejected:
		return audit.ActionJobReject
	default:
		return audit.ActionJobStatusChange
	}
}

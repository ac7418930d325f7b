package jobs

import (
	"errors"
	"fmt"
)

// transitions is the legal trigger graph. Administrative force-set bypasses
// it on purpose (ForceStatus); everything else goes through here.
var transitions = map[Status][]Status{
	StatusQueued:        {StatusProcessing},
	StatusProcessing:    {StatusNeedsApproval, StatusCompleted, StatusFailed},
	StatusNeedsApproval: {StatusApproved, StatusRejected},
	StatusApproved:      {StatusCompleted, StatusFailed},
	StatusRejected:      {},
	StatusCompleted:     {},
	StatusFailed:        {},
}

// CanTransition reports whether from -> to is a legal trigger-graph edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is the sentinel for every illegal transition request;
// match with errors.Is and unwrap to *TransitionError for the details.
var ErrInvalidTransition = errors.New("invalid_state_transition")

// TransitionError carries the current and requested status so callers can
// tell the user exactly why the request was refused. No mutation happened.
type TransitionError struct {
	JobID     string
	Current   Status
	Requested Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid_state_transition: job %s is %q, cannot move to %q", e.JobID, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NewTransitionError builds the typed rejection for job id stuck at current
// when requested was asked for.
func NewTransitionError(jobID string, current, requested Status) error {
	return &TransitionError{JobID: jobID, Current: current, Requested: requested}
}

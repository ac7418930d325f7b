package jobs

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("job not found")

// ListFilter narrows and orders job listings.
type ListFilter struct {
	Status Status
	Search string
	Sort   string
	Order  string
	Limit  int
	Offset int
}

// Update carries partial job edits. Nil fields are left untouched.
type Update struct {
	Title   *string
	Payload map[string]any
	Result  map[string]any
}

// Store is the persistence boundary for jobs. Implementations must make
// Transition atomic per job: of N concurrent calls with the same expected
// status exactly one succeeds and the rest observe the post-transition state
// through the returned TransitionError.
type Store interface {
	CreateJob(ctx context.Context, job Job) (Job, error)
	GetJob(ctx context.Context, id string) (Job, error)
	ListJobs(ctx context.Context, f ListFilter) ([]Job, int, error)
	UpdateJob(ctx context.Context, id string, upd Update) (Job, error)

	// Transition moves the job from expected to next, applying mutate (may
	// be nil) to the job inside the same critical section. It fails with a
	// *TransitionError when the current status is not expected or the edge
	// is not in the trigger graph.
	Transition(ctx context.Context, id string, expected, next Status, mutate func(*Job)) (Job, error)

	// ForceStatus sets the status directly, bypassing the trigger graph.
	// Administrative recovery only; callers are responsible for auditing.
	ForceStatus(ctx context.Context, id string, next Status) (Job, error)

	AddNote(ctx context.Context, id string, note Note) (Note, error)
	ListNotes(ctx context.Context, id string) ([]Note, error)
}

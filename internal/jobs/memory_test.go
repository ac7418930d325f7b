package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	job, err := store.CreateJob(context.Background(), Job{Title: "Server Maintenance", Source: "api"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("missing id")
	}
	if job.Status != StatusQueued {
		t.Fatalf("status: %q", job.Status)
	}
	if !job.CreatedAt.Equal(job.UpdatedAt) {
		t.Fatalf("timestamps differ on create")
	}

	got, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if got.Title != "Server Maintenance" || got.Source != "api" {
		t.Fatalf("job: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetJob(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})

	job, err := store.Transition(context.Background(), job.ID, StatusQueued, StatusProcessing, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Status != StatusProcessing {
		t.Fatalf("status: %q", job.Status)
	}

	job, err = store.Transition(context.Background(), job.ID, StatusProcessing, StatusCompleted, func(j *Job) {
		j.Result = map[string]any{"ok": true}
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Result == nil || job.Result["ok"] != true {
		t.Fatalf("result: %+v", job.Result)
	}
}

func TestTransitionWrongPrecondition(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})

	_, err := store.Transition(context.Background(), job.ID, StatusProcessing, StatusCompleted, nil)
	var terr *TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("err: %v", err)
	}
	if terr.Current != StatusQueued {
		t.Fatalf("current: %q", terr.Current)
	}

	// No mutation happened.
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Status != StatusQueued {
		t.Fatalf("status after failed transition: %q", got.Status)
	}
	if !got.UpdatedAt.Equal(job.UpdatedAt) {
		t.Fatalf("updated_at moved on failed transition")
	}
}

func TestTransitionIllegalEdge(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})
	if _, err := store.Transition(context.Background(), job.ID, StatusQueued, StatusApproved, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err: %v", err)
	}
}

func TestConcurrentTransitionsOneWinner(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})
	_, _ = store.Transition(context.Background(), job.ID, StatusQueued, StatusProcessing, nil)
	_, _ = store.Transition(context.Background(), job.ID, StatusProcessing, StatusNeedsApproval, nil)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := StatusApproved
			if i%2 == 1 {
				target = StatusRejected
			}
			_, err := store.Transition(context.Background(), job.ID, StatusNeedsApproval, target, nil)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, rejections int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrInvalidTransition):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || rejections != n-1 {
		t.Fatalf("wins=%d rejections=%d", wins, rejections)
	}
}

func TestUpdatedAtMonotonic(t *testing.T) {
	frozen := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.Clock = func() time.Time { return frozen }

	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})
	prev := job.UpdatedAt
	for i := 0; i < 3; i++ {
		title := "t2"
		updated, err := store.UpdateJob(context.Background(), job.ID, Update{Title: &title})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		if updated.UpdatedAt.Before(prev) || updated.UpdatedAt.Equal(prev) {
			t.Fatalf("updated_at not advancing: %v vs %v", updated.UpdatedAt, prev)
		}
		prev = updated.UpdatedAt
	}
}

func TestListFilterSortPaginate(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	store := NewMemoryStore()
	store.Clock = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ids := make([]string, 0, 4)
	for _, title := range []string{"Deploy web", "Rotate keys", "Deploy api", "Backup db"} {
		job, _ := store.CreateJob(context.Background(), Job{Title: title})
		ids = append(ids, job.ID)
	}
	_, _ = store.Transition(context.Background(), ids[1], StatusQueued, StatusProcessing, nil)

	list, total, err := store.ListJobs(context.Background(), ListFilter{Status: StatusQueued})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if total != 3 || len(list) != 3 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}

	list, total, _ = store.ListJobs(context.Background(), ListFilter{Search: "deploy"})
	if total != 2 {
		t.Fatalf("search total: %d", total)
	}

	list, _, _ = store.ListJobs(context.Background(), ListFilter{Sort: "title", Order: "asc"})
	if list[0].Title != "Backup db" {
		t.Fatalf("sort asc: %q", list[0].Title)
	}

	// Default sort is created_at desc.
	list, _, _ = store.ListJobs(context.Background(), ListFilter{})
	if list[0].Title != "Backup db" {
		t.Fatalf("newest first: %q", list[0].Title)
	}

	list, total, _ = store.ListJobs(context.Background(), ListFilter{Limit: 2, Offset: 3})
	if total != 4 || len(list) != 1 {
		t.Fatalf("paginate total=%d len=%d", total, len(list))
	}
}

func TestForceStatusBypassesGraph(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})
	forced, err := store.ForceStatus(context.Background(), job.ID, StatusFailed)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if forced.Status != StatusFailed {
		t.Fatalf("status: %q", forced.Status)
	}
	if !forced.UpdatedAt.After(job.UpdatedAt) {
		t.Fatalf("updated_at not bumped")
	}
}

func TestNotes(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t"})

	note, err := store.AddNote(context.Background(), job.ID, Note{Author: "ops@example.com", Text: "looks fine"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if note.ID == "" || note.CreatedAt.IsZero() {
		t.Fatalf("note: %+v", note)
	}

	notes, err := store.ListNotes(context.Background(), job.ID)
	if err != nil || len(notes) != 1 {
		t.Fatalf("notes=%v err=%v", notes, err)
	}

	got, _ := store.GetJob(context.Background(), job.ID)
	if got.NotesCount != 1 {
		t.Fatalf("notes_count: %d", got.NotesCount)
	}

	if _, err := store.AddNote(context.Background(), "missing", Note{Text: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	job, _ := store.CreateJob(context.Background(), Job{Title: "t", Payload: map[string]any{"a": 1}})
	job.Payload["a"] = 2
	got, _ := store.GetJob(context.Background(), job.ID)
	if got.Payload["a"] != 1 {
		t.Fatalf("store mutated through returned job")
	}
}

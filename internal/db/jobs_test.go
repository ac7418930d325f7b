package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"jobsentry/internal/jobs"
)

func jobRow(id, status string) fakeRow {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		id, "Server Maintenance", status, now, now,
		[]byte(`{"k":"v"}`), []byte(nil), sql.NullString{String: "api", Valid: true}, 0,
	}}
}

func TestCreateJobNoDB(t *testing.T) {
	var s *JobStore
	if _, err := s.CreateJob(context.Background(), jobs.Job{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCreateJobOK(t *testing.T) {
	conn := &fakeConn{}
	store := (&DB{conn: conn}).Jobs()
	job, err := store.CreateJob(context.Background(), jobs.Job{Title: "t", Source: "api"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.ID == "" || job.Status != jobs.StatusQueued {
		t.Fatalf("job: %+v", job)
	}
	if !strings.Contains(conn.lastExecQuery, "INSERT INTO jobs") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
	if conn.lastExecArgs[2] != "queued" {
		t.Fatalf("args: %#v", conn.lastExecArgs)
	}
}

func TestCreateJobExecError(t *testing.T) {
	store := (&DB{conn: &fakeConn{execErr: sql.ErrConnDone}}).Jobs()
	if _, err := store.CreateJob(context.Background(), jobs.Job{Title: "t"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetJobNotFound(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{fakeRow{err: sql.ErrNoRows}}}
	store := (&DB{conn: conn}).Jobs()
	if _, err := store.GetJob(context.Background(), "missing"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestGetJobOK(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	job, err := store.GetJob(context.Background(), "j1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Status != jobs.StatusQueued || job.Source != "api" {
		t.Fatalf("job: %+v", job)
	}
	if job.Payload["k"] != "v" {
		t.Fatalf("payload: %+v", job.Payload)
	}
}

func TestTransitionHappy(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	job, err := store.Transition(context.Background(), "j1", jobs.StatusQueued, jobs.StatusProcessing, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Status != jobs.StatusProcessing {
		t.Fatalf("status: %q", job.Status)
	}
	if !strings.Contains(conn.lastExecQuery, "AND status=$6") {
		t.Fatalf("missing CAS guard: %s", conn.lastExecQuery)
	}
	if conn.lastExecArgs[5] != "queued" {
		t.Fatalf("args: %#v", conn.lastExecArgs)
	}
}

func TestTransitionWrongStatus(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "completed")}}
	store := (&DB{conn: conn}).Jobs()
	_, err := store.Transition(context.Background(), "j1", jobs.StatusQueued, jobs.StatusProcessing, nil)
	var terr *jobs.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("err: %v", err)
	}
	if terr.Current != jobs.StatusCompleted {
		t.Fatalf("current: %q", terr.Current)
	}
	if conn.execCalls != 0 {
		t.Fatalf("no update expected, got %d", conn.execCalls)
	}
}

func TestTransitionIllegalEdge(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	_, err := store.Transition(context.Background(), "j1", jobs.StatusQueued, jobs.StatusApproved, nil)
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("err: %v", err)
	}
}

func TestTransitionLostRace(t *testing.T) {
	// The select sees queued but the guarded update affects zero rows: a
	// concurrent writer won. The re-read reports the post-transition state.
	conn := &fakeConn{
		rows:        []rowScanner{jobRow("j1", "queued"), jobRow("j1", "processing")},
		execRowsSet: true,
		execRows:    0,
	}
	store := (&DB{conn: conn}).Jobs()
	_, err := store.Transition(context.Background(), "j1", jobs.StatusQueued, jobs.StatusProcessing, nil)
	var terr *jobs.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("err: %v", err)
	}
	if terr.Current != jobs.StatusProcessing {
		t.Fatalf("current: %q", terr.Current)
	}
}

func TestTransitionMutateApplied(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "processing")}}
	store := (&DB{conn: conn}).Jobs()
	job, err := store.Transition(context.Background(), "j1", jobs.StatusProcessing, jobs.StatusCompleted, func(j *jobs.Job) {
		j.Result = map[string]any{"exit": 0}
	})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Result["exit"] != 0 {
		t.Fatalf("result: %+v", job.Result)
	}
	if _, ok := conn.lastExecArgs[4].([]byte); !ok {
		t.Fatalf("result arg: %#v", conn.lastExecArgs[4])
	}
}

func TestForceStatusBypassesGraph(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	job, err := store.ForceStatus(context.Background(), "j1", jobs.StatusFailed)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status: %q", job.Status)
	}
}

func TestUpdateJobTitle(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	title := "New Title"
	job, err := store.UpdateJob(context.Background(), "j1", jobs.Update{Title: &title})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Title != "New Title" {
		t.Fatalf("title: %q", job.Title)
	}
	if !strings.Contains(conn.lastExecQuery, "GREATEST(now(), updated_at + interval '1 microsecond')") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
}

func TestListJobsFilterArgs(t *testing.T) {
	agg := []byte(`[{"id":"j1","title":"t","status":"queued","created_at":"2025-03-01T10:00:00Z","updated_at":"2025-03-01T10:00:00Z","payload":null,"result":null,"source":"api","notes_count":2}]`)
	conn := &fakeConn{rows: []rowScanner{fakeRow{values: []any{agg, 1}}}}
	store := (&DB{conn: conn}).Jobs()
	list, total, err := store.ListJobs(context.Background(), jobs.ListFilter{Status: jobs.StatusQueued, Search: "deploy"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
	if list[0].Source != "api" || list[0].NotesCount != 2 {
		t.Fatalf("job: %+v", list[0])
	}
	if conn.lastArgs[0] != "queued" || conn.lastArgs[1] != "deploy" {
		t.Fatalf("args: %#v", conn.lastArgs)
	}
}

func TestListJobsEmpty(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{fakeRow{values: []any{[]byte(`[]`), 0}}}}
	store := (&DB{conn: conn}).Jobs()
	list, total, err := store.ListJobs(context.Background(), jobs.ListFilter{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if total != 0 || len(list) != 0 {
		t.Fatalf("total=%d len=%d", total, len(list))
	}
}

func TestAddNoteChecksJob(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{fakeRow{err: sql.ErrNoRows}}}
	store := (&DB{conn: conn}).Jobs()
	if _, err := store.AddNote(context.Background(), "missing", jobs.Note{Text: "x"}); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("err: %v", err)
	}
}

func TestAddNoteOK(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued")}}
	store := (&DB{conn: conn}).Jobs()
	note, err := store.AddNote(context.Background(), "j1", jobs.Note{Author: "ops@example.com", Text: "checked"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if note.ID == "" || note.CreatedAt.IsZero() {
		t.Fatalf("note: %+v", note)
	}
	if !strings.Contains(conn.lastExecQuery, "INSERT INTO job_notes") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
}

func TestListNotes(t *testing.T) {
	agg := []byte(`[{"id":"n1","author":"ops@example.com","text":"checked","created_at":"2025-03-01T10:00:00Z"}]`)
	conn := &fakeConn{rows: []rowScanner{jobRow("j1", "queued"), fakeRow{values: []any{agg}}}}
	store := (&DB{conn: conn}).Jobs()
	notes, err := store.ListNotes(context.Background(), "j1")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(notes) != 1 || notes[0].Author != "ops@example.com" {
		t.Fatalf("notes: %+v", notes)
	}
}

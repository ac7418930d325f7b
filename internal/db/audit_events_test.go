package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"jobsentry/internal/audit"
)

func TestInsertAuditEventNoDB(t *testing.T) {
	var d *DB
	if _, err := d.InsertAuditEvent(context.Background(), audit.Event{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInsertAuditEventOK(t *testing.T) {
	conn := &fakeConn{}
	d := &DB{conn: conn}
	ev := audit.Event{
		ID:        "ev1",
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		Action:    audit.ActionJobCreate,
		Actor:     "ops@example.com",
		Status:    "ok",
		JobID:     "j1",
		Details:   map[string]any{"title": "t"},
		RequestID: "abcd1234",
	}
	id, err := d.InsertAuditEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if id != "ev1" {
		t.Fatalf("id: %s", id)
	}
	if !strings.Contains(conn.lastExecQuery, "INSERT INTO audit_events") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
	if conn.lastExecArgs[2] != audit.ActionJobCreate {
		t.Fatalf("args: %#v", conn.lastExecArgs)
	}
	// Empty tool is stored as NULL, not empty string.
	if conn.lastExecArgs[6] != nil {
		t.Fatalf("tool arg: %#v", conn.lastExecArgs[6])
	}
}

func TestInsertAuditEventExecError(t *testing.T) {
	d := &DB{conn: &fakeConn{execErr: sql.ErrConnDone}}
	if _, err := d.InsertAuditEvent(context.Background(), audit.Event{ID: "ev1"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListAuditEventsFilters(t *testing.T) {
	agg := []byte(`[{"id":"ev1","ts":"2025-03-01T10:00:00Z","action":"job.create","actor":"ops@example.com","status":"ok","job_id":"j1","tool":"","details":{"title":"t"},"request_id":"abcd1234"}]`)
	conn := &fakeConn{rows: []rowScanner{fakeRow{values: []any{agg, 1}}}}
	d := &DB{conn: conn}
	events, total, err := d.ListAuditEvents(context.Background(), audit.Filter{Action: audit.ActionJobCreate, JobID: "j1"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if total != 1 || len(events) != 1 {
		t.Fatalf("total=%d len=%d", total, len(events))
	}
	if events[0].Actor != "ops@example.com" || events[0].Details["title"] != "t" {
		t.Fatalf("event: %+v", events[0])
	}
	if conn.lastArgs[0] != audit.ActionJobCreate || conn.lastArgs[3] != "j1" {
		t.Fatalf("args: %#v", conn.lastArgs)
	}
}

func TestListAuditEventsCapsLimit(t *testing.T) {
	conn := &fakeConn{rows: []rowScanner{fakeRow{values: []any{[]byte(`[]`), 0}}}}
	d := &DB{conn: conn}
	_, _, err := d.ListAuditEvents(context.Background(), audit.Filter{Limit: 9999})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if conn.lastArgs[4] != 500 {
		t.Fatalf("limit arg: %#v", conn.lastArgs[4])
	}
}

func TestAuditStats(t *testing.T) {
	oldest := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	newest := oldest.Add(time.Hour)
	conn := &fakeConn{rows: []rowScanner{
		fakeRow{values: []any{2, []byte(`{"job.create":3,"job.approve":1}`), oldest, newest}},
		fakeRow{values: []any{[]byte(`{"ok":4}`)}},
	}}
	d := &DB{conn: conn}
	stats, err := d.AuditStats(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if stats.TotalEvents != 4 {
		t.Fatalf("total: %d", stats.TotalEvents)
	}
	if stats.EventsByAction["job.create"] != 3 || stats.EventsByStatus["ok"] != 4 {
		t.Fatalf("stats: %+v", stats)
	}
	if stats.OldestEvent == nil || !stats.OldestEvent.Equal(oldest) {
		t.Fatalf("oldest: %v", stats.OldestEvent)
	}
}

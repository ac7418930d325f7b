package db

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"
)

func TestInsertEventRecordNoDB(t *testing.T) {
	var d *DB
	if _, err := d.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}

func TestInsertEventRecordFresh(t *testing.T) {
	conn := &fakeConn{}
	d := &DB{conn: conn}
	fresh, err := d.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !fresh {
		t.Fatalf("expected fresh")
	}
	if !strings.Contains(conn.lastExecQuery, "ON CONFLICT (sender, event_key)") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
	if conn.lastExecArgs[0] != "slack" || conn.lastExecArgs[1] != "ev1" {
		t.Fatalf("args: %#v", conn.lastExecArgs)
	}
}

func TestInsertEventRecordDuplicate(t *testing.T) {
	// Conflict with a live row: zero rows affected means duplicate.
	conn := &fakeConn{execRowsSet: true, execRows: 0}
	d := &DB{conn: conn}
	fresh, err := d.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if fresh {
		t.Fatalf("expected duplicate")
	}
}

func TestInsertEventRecordExecError(t *testing.T) {
	d := &DB{conn: &fakeConn{execErr: sql.ErrConnDone}}
	if _, err := d.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDeleteExpiredEventRecords(t *testing.T) {
	conn := &fakeConn{execRowsSet: true, execRows: 3}
	d := &DB{conn: conn}
	n, err := d.DeleteExpiredEventRecords(context.Background())
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if n != 3 {
		t.Fatalf("removed: %d", n)
	}
	if !strings.Contains(conn.lastExecQuery, "DELETE FROM webhook_events") {
		t.Fatalf("query: %s", conn.lastExecQuery)
	}
}

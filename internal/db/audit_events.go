package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobsentry/internal/audit"
)

func (d *DB) InsertAuditEvent(ctx context.Context, ev audit.Event) (string, error) {
	if d == nil || d.conn == nil {
		return "", errors.New("db not initialized")
	}
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO audit_events(id, ts, action, actor, status, job_id, tool, details, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Timestamp, ev.Action, ev.Actor, ev.Status,
		nullString(ev.JobID), nullString(ev.Tool), marshalJSON(ev.Details), nullString(ev.RequestID))
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

func (d *DB) ListAuditEvents(ctx context.Context, f audit.Filter) ([]audit.Event, int, error) {
	if d == nil || d.conn == nil {
		return nil, 0, errors.New("db not initialized")
	}
	limit, offset := clampPagination(f.Limit, f.Offset)
	if limit > 500 {
		limit = 500
	}
	row := d.conn.QueryRowContext(ctx, `
		SELECT COALESCE(jsonb_agg(e ORDER BY e.ts DESC), '[]'::jsonb),
		       COALESCE(MAX(e.total), 0)
		FROM (
			SELECT id, ts, action, actor, status,
			       COALESCE(job_id, '') AS job_id,
			       COALESCE(tool, '') AS tool,
			       details,
			       COALESCE(request_id, '') AS request_id,
			       COUNT(*) OVER () AS total
			FROM audit_events
			WHERE ($1 = '' OR action = $1)
			  AND ($2 = '' OR actor = $2)
			  AND ($3 = '' OR status = $3)
			  AND ($4 = '' OR job_id = $4)
			ORDER BY ts DESC
			LIMIT $5 OFFSET $6
		) AS e
	`, f.Action, f.Actor, f.Status, f.JobID, limit, offset)
	var agg []byte
	var total int
	if err := row.Scan(&agg, &total); err != nil {
		return nil, 0, err
	}
	var rows []struct {
		ID        string         `json:"id"`
		TS        time.Time      `json:"ts"`
		Action    string         `json:"action"`
		Actor     string         `json:"actor"`
		Status    string         `json:"status"`
		JobID     string         `json:"job_id"`
		Tool      string         `json:"tool"`
		Details   map[string]any `json:"details"`
		RequestID string         `json:"request_id"`
	}
	if len(agg) > 0 {
		if err := json.Unmarshal(agg, &rows); err != nil {
			return nil, 0, err
		}
	}
	out := make([]audit.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, audit.Event{
			ID:        r.ID,
			Timestamp: r.TS,
			Action:    r.Action,
			Actor:     r.Actor,
			Status:    r.Status,
			JobID:     r.JobID,
			Tool:      r.Tool,
			Details:   r.Details,
			RequestID: r.RequestID,
		})
	}
	return out, total, nil
}

func (d *DB) AuditStats(ctx context.Context) (audit.Stats, error) {
	if d == nil || d.conn == nil {
		return audit.Stats{}, errors.New("db not initialized")
	}
	row := d.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(jsonb_object_agg(action, cnt) FILTER (WHERE action IS NOT NULL), '{}'::jsonb),
		       MIN(oldest), MAX(newest)
		FROM (
			SELECT action, COUNT(*) AS cnt, MIN(ts) AS oldest, MAX(ts) AS newest
			FROM audit_events
			GROUP BY action
		) AS per_action
	`)
	var groups int
	var actionsJSON []byte
	var oldest, newest *time.Time
	if err := row.Scan(&groups, &actionsJSON, &oldest, &newest); err != nil {
		return audit.Stats{}, err
	}
	stats := audit.Stats{
		EventsByAction: map[string]int{},
		EventsByStatus: map[string]int{},
		OldestEvent:    oldest,
		NewestEvent:    newest,
	}
	if len(actionsJSON) > 0 {
		_ = json.Unmarshal(actionsJSON, &stats.EventsByAction)
	}
	for _, n := range stats.EventsByAction {
		stats.TotalEvents += n
	}

	row = d.conn.QueryRowContext(ctx, `
		SELECT COALESCE(jsonb_object_agg(status, cnt), '{}'::jsonb)
		FROM (SELECT status, COUNT(*) AS cnt FROM audit_events GROUP BY status) AS per_status
	`)
	var statusJSON []byte
	if err := row.Scan(&statusJSON); err != nil {
		return audit.Stats{}, err
	}
	if len(statusJSON) > 0 {
		_ = json.Unmarshal(statusJSON, &stats.EventsByStatus)
	}
	return stats, nil
}

package db

import (
	"context"
	"errors"
	"time"
)

// InsertEventRecord records a processed webhook delivery for dedup. It
// reports true when the (sender, key) pair is new inside the retention
// window. Expired rows are reclaimed in place so a long-dead key can be
// seen again without waiting for the janitor.
func (d *DB) InsertEventRecord(ctx context.Context, sender, key string, retention time.Duration) (bool, error) {
	if d == nil || d.conn == nil {
		return false, errors.New("db not initialized")
	}
	now := time.Now().UTC()
	res, err := d.conn.ExecContext(ctx, `
		INSERT INTO webhook_events(sender, event_key, received_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sender, event_key) DO UPDATE
		SET received_at = EXCLUDED.received_at, expires_at = EXCLUDED.expires_at
		WHERE webhook_events.expires_at <= $3
	`, sender, key, now, now.Add(retention))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredEventRecords sweeps rows whose retention window has passed.
func (d *DB) DeleteExpiredEventRecords(ctx context.Context) (int64, error) {
	if d == nil || d.conn == nil {
		return 0, errors.New("db not initialized")
	}
	res, err := d.conn.ExecContext(ctx, `DELETE FROM webhook_events WHERE expires_at <= now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package web

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"jobsentry/internal/supervisor"
	"jobsentry/internal/webhook"
)

// Janitor expires stale state on a cron schedule: webhook dedup records past
// their retention and confirm tokens past their TTL. Jobs and audit events
// are never touched; the audit log is append-only by contract.
type Janitor struct {
	Records  webhook.RecordStore
	Tokens   *supervisor.TokenStore
	Schedule string

	PollInterval time.Duration
	Now          func() time.Time
	Parser       *cron.Parser

	lastRun time.Time
}

func (j *Janitor) init() error {
	if j.Records == nil && j.Tokens == nil {
		return errors.New("nothing to sweep")
	}
	if j.Now == nil {
		j.Now = time.Now
	}
	if j.Parser == nil {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		j.Parser = &parser
	}
	if j.PollInterval <= 0 {
		j.PollInterval = 30 * time.Second
	}
	if j.lastRun.IsZero() {
		j.lastRun = j.Now().UTC()
	}
	return nil
}

func (j *Janitor) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := j.init(); err != nil {
		return err
	}
	spec, err := j.Parser.Parse(strings.TrimSpace(j.Schedule))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(j.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := j.Now().UTC()
			if spec.Next(j.lastRun).After(now) {
				continue
			}
			j.lastRun = now
			if _, err := j.RunOnce(ctx); err != nil {
				slog.Error("janitor sweep", "error", err)
			}
		}
	}
}

// RunOnce sweeps immediately and returns how many records were removed.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	if err := j.init(); err != nil {
		return 0, err
	}
	var removed int64
	if j.Records != nil {
		n, err := j.Records.DeleteExpiredEventRecords(ctx)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if j.Tokens != nil {
		removed += int64(j.Tokens.Sweep())
	}
	if removed > 0 {
		slog.Info("janitor sweep", "removed", removed)
	}
	return removed, nil
}

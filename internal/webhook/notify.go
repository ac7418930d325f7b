package webhook

import (
	"context"
	"log/slog"

	"jobsentry/internal/jobs"
)

// Notifier acknowledges an accepted event back toward its sender. Outbound
// chat/REST delivery is out of scope for this service, so the default
// implementation only logs; deployments that want real replies implement
// this against their own client.
type Notifier interface {
	NotifyJobCreated(ctx context.Context, job jobs.Job, ev Event) error
}

// LogNotifier records the acknowledgement intent and sends nothing.
type LogNotifier struct{}

func (LogNotifier) NotifyJobCreated(_ context.Context, job jobs.Job, ev Event) error {
	slog.Info("job created from webhook",
		"sender", ev.Sender,
		"event_type", ev.Type,
		"job_id", job.ID,
		"title", job.Title,
	)
	return nil
}

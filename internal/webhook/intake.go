package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"jobsentry/internal/audit"
	"jobsentry/internal/jobs"
	"jobsentry/internal/metrics"
)

// Verifier authenticates a raw delivery before anything is parsed.
type Verifier interface {
	Verify(header http.Header, body []byte) error
}

// Intake runs the full delivery pipeline for one sender: verify, parse,
// dedup, then create a queued job for actionable events. Dedup happens after
// verification so unauthenticated senders cannot poison the record store.
type Intake struct {
	Sender    string
	Verifier  Verifier
	Parse     func(header http.Header, body []byte) (Event, error)
	Records   RecordStore
	Jobs      *jobs.Service
	Audit     *audit.Recorder
	Notifier  Notifier
	Retention time.Duration
}

func (in *Intake) retention() time.Duration {
	if in.Retention > 0 {
		return in.Retention
	}
	return time.Hour
}

func (in *Intake) Handle(ctx context.Context, header http.Header, body []byte) (Result, error) {
	if err := in.Verifier.Verify(header, body); err != nil {
		outcome := "invalid_signature"
		if errors.Is(err, ErrStaleTimestamp) {
			outcome = "stale_timestamp"
		}
		metrics.WebhookEventsTotal.WithLabelValues(in.Sender, outcome).Inc()
		return Result{Sender: in.Sender}, err
	}

	ev, err := in.Parse(header, body)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(in.Sender, "malformed").Inc()
		return Result{Sender: in.Sender}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	res := Result{Sender: in.Sender, EventID: ev.DedupKey, EventType: ev.Type}
	if ev.Challenge != "" {
		res.Outcome = OutcomeChallenge
		res.Challenge = ev.Challenge
		metrics.WebhookEventsTotal.WithLabelValues(in.Sender, string(OutcomeChallenge)).Inc()
		return res, nil
	}

	if ev.DedupKey != "" {
		fresh, err := in.Records.InsertEventRecord(ctx, in.Sender, ev.DedupKey, in.retention())
		if err != nil {
			return res, fmt.Errorf("record event: %w", err)
		}
		if !fresh {
			res.Outcome = OutcomeDuplicate
			metrics.WebhookEventsTotal.WithLabelValues(in.Sender, string(OutcomeDuplicate)).Inc()
			in.Audit.Record(ctx, audit.Event{
				Action: audit.ActionWebhookReceived,
				Actor:  in.Sender,
				Status: "duplicate",
				Details: map[string]any{
					"event_id":   ev.DedupKey,
					"event_type": ev.Type,
				},
			})
			return res, nil
		}
	}

	if !ev.Actionable {
		res.Outcome = OutcomeIgnored
		metrics.WebhookEventsTotal.WithLabelValues(in.Sender, string(OutcomeIgnored)).Inc()
		return res, nil
	}

	job, err := in.Jobs.Create(ctx, in.Sender, ev.Title, ev.Payload, in.Sender)
	if err != nil {
		return res, fmt.Errorf("create job: %w", err)
	}
	res.Outcome = OutcomeAccepted
	res.JobID = job.ID
	metrics.WebhookEventsTotal.WithLabelValues(in.Sender, string(OutcomeAccepted)).Inc()
	in.Audit.Record(ctx, audit.Event{
		Action: audit.ActionWebhookReceived,
		Actor:  in.Sender,
		JobID:  job.ID,
		Details: map[string]any{
			"event_id":   ev.DedupKey,
			"event_type": ev.Type,
		},
	})
	if in.Notifier != nil {
		if err := in.Notifier.NotifyJobCreated(ctx, job, ev); err != nil {
			slog.Warn("notify failed", "sender", in.Sender, "job_id", job.ID, "error", err)
		}
	}
	return res, nil
}

package webhook

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"jobsentry/internal/audit"
	"jobsentry/internal/jobs"
)

func newTestIntake(t *testing.T) (*Intake, *jobs.MemoryStore, *audit.MemoryLog) {
	t.Helper()
	store := jobs.NewMemoryStore()
	log := audit.NewMemoryLog(100)
	rec := audit.NewRecorder(log)
	v := &GitHubVerifier{Secret: "hook"}
	return &Intake{
		Sender:   SenderGitHub,
		Verifier: v,
		Parse:    v.Parse,
		Records:  NewMemoryRecordStore(),
		Jobs:     jobs.NewService(store, rec),
		Audit:    rec,
	}, store, log
}

func TestIntakeCreatesQueuedJob(t *testing.T) {
	in, store, log := newTestIntake(t)
	body := []byte(`{"action":"opened","repository":{"full_name":"acme/api"},"issue":{"number":7,"title":"Crash"}}`)
	h := githubHeaders("hook", "issues", "d7", body)

	res, err := in.Handle(context.Background(), h, body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Outcome != OutcomeAccepted || res.JobID == "" {
		t.Fatalf("result: %+v", res)
	}

	job, err := store.GetJob(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("status: %q", job.Status)
	}
	if job.Source != SenderGitHub {
		t.Fatalf("source: %q", job.Source)
	}

	events, _, _ := log.ListAuditEvents(context.Background(), audit.Filter{Action: audit.ActionWebhookReceived})
	if len(events) != 1 || events[0].JobID != res.JobID {
		t.Fatalf("audit: %+v", events)
	}
}

func TestIntakeDuplicateDelivery(t *testing.T) {
	in, store, _ := newTestIntake(t)
	body := []byte(`{"action":"opened","repository":{"full_name":"acme/api"},"issue":{"number":7,"title":"Crash"}}`)
	h := githubHeaders("hook", "issues", "d7", body)

	first, _ := in.Handle(context.Background(), h, body)
	second, err := in.Handle(context.Background(), h, body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if second.Outcome != OutcomeDuplicate || second.JobID != "" {
		t.Fatalf("result: %+v", second)
	}

	// Exactly one job exists.
	_, total, _ := store.ListJobs(context.Background(), jobs.ListFilter{})
	if total != 1 {
		t.Fatalf("jobs: %d", total)
	}
	if first.Outcome != OutcomeAccepted {
		t.Fatalf("first: %+v", first)
	}
}

func TestIntakeRejectsBadSignatureBeforeDedup(t *testing.T) {
	in, store, _ := newTestIntake(t)
	body := []byte(`{"action":"opened","issue":{"number":7}}`)
	h := http.Header{}
	h.Set("X-Hub-Signature-256", "sha256=deadbeef")
	h.Set("X-GitHub-Event", "issues")
	h.Set("X-GitHub-Delivery", "d7")

	if _, err := in.Handle(context.Background(), h, body); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err: %v", err)
	}

	// The forged delivery must not occupy the dedup slot.
	good := githubHeaders("hook", "issues", "d7", body)
	res, err := in.Handle(context.Background(), good, body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Outcome != OutcomeAccepted {
		t.Fatalf("result: %+v", res)
	}
	_, total, _ := store.ListJobs(context.Background(), jobs.ListFilter{})
	if total != 1 {
		t.Fatalf("jobs: %d", total)
	}
}

func TestIntakeChallenge(t *testing.T) {
	in, store, _ := newTestIntake(t)
	body := []byte(`{"zen":"Design for failure."}`)
	res, err := in.Handle(context.Background(), githubHeaders("hook", "ping", "p1", body), body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Outcome != OutcomeChallenge || res.Challenge != "Design for failure." {
		t.Fatalf("result: %+v", res)
	}
	_, total, _ := store.ListJobs(context.Background(), jobs.ListFilter{})
	if total != 0 {
		t.Fatalf("jobs: %d", total)
	}
}

func TestIntakeIgnoredEventStillDeduped(t *testing.T) {
	in, _, _ := newTestIntake(t)
	body := []byte(`{"action":"closed","repository":{"full_name":"acme/api"},"pull_request":{"number":1}}`)
	h := githubHeaders("hook", "pull_request", "dx", body)

	res, _ := in.Handle(context.Background(), h, body)
	if res.Outcome != OutcomeIgnored {
		t.Fatalf("result: %+v", res)
	}
	res, _ = in.Handle(context.Background(), h, body)
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("second delivery: %+v", res)
	}
}

type captureNotifier struct {
	jobs   []jobs.Job
	events []Event
	err    error
}

func (c *captureNotifier) NotifyJobCreated(_ context.Context, job jobs.Job, ev Event) error {
	c.jobs = append(c.jobs, job)
	c.events = append(c.events, ev)
	return c.err
}

func TestIntakeNotifiesOnAcceptedOnly(t *testing.T) {
	in, _, _ := newTestIntake(t)
	n := &captureNotifier{}
	in.Notifier = n

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/api"},"issue":{"number":7,"title":"Crash"}}`)
	h := githubHeaders("hook", "issues", "d7", body)
	res, err := in.Handle(context.Background(), h, body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(n.jobs) != 1 || n.jobs[0].ID != res.JobID {
		t.Fatalf("notified: %+v", n.jobs)
	}
	if n.events[0].Sender != SenderGitHub {
		t.Fatalf("event: %+v", n.events[0])
	}

	// Duplicates and ignored events never notify.
	in.Handle(context.Background(), h, body)
	ignored := []byte(`{"action":"closed","repository":{"full_name":"acme/api"},"pull_request":{"number":1}}`)
	in.Handle(context.Background(), githubHeaders("hook", "pull_request", "dx", ignored), ignored)
	if len(n.jobs) != 1 {
		t.Fatalf("notified: %d", len(n.jobs))
	}
}

func TestIntakeNotifierFailureDoesNotFailDelivery(t *testing.T) {
	in, store, _ := newTestIntake(t)
	in.Notifier = &captureNotifier{err: errors.New("chat unreachable")}

	body := []byte(`{"action":"opened","repository":{"full_name":"acme/api"},"issue":{"number":9,"title":"Leak"}}`)
	res, err := in.Handle(context.Background(), githubHeaders("hook", "issues", "d9", body), body)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.Outcome != OutcomeAccepted {
		t.Fatalf("result: %+v", res)
	}
	_, total, _ := store.ListJobs(context.Background(), jobs.ListFilter{})
	if total != 1 {
		t.Fatalf("jobs: %d", total)
	}
}

func TestRecordStoreExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rs := NewMemoryRecordStore()
	rs.Clock = func() time.Time { return now }

	fresh, _ := rs.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour)
	if !fresh {
		t.Fatalf("first insert should be fresh")
	}
	fresh, _ = rs.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour)
	if fresh {
		t.Fatalf("second insert should be a duplicate")
	}

	// Same key under a different sender is distinct.
	fresh, _ = rs.InsertEventRecord(context.Background(), "github", "ev1", time.Hour)
	if !fresh {
		t.Fatalf("senders share no namespace")
	}

	now = now.Add(2 * time.Hour)
	fresh, _ = rs.InsertEventRecord(context.Background(), "slack", "ev1", time.Hour)
	if !fresh {
		t.Fatalf("expired record should be reusable")
	}

	removed, _ := rs.DeleteExpiredEventRecords(context.Background())
	if removed != 1 {
		t.Fatalf("removed: %d", removed)
	}
}

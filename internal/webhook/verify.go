package webhook

import (
	"errors"
)

// Verification failures. These are terminal for the request; the core never
// retries them.
var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrStaleTimestamp   = errors.New("stale_timestamp")
	ErrNotConfigured    = errors.New("webhook sender not configured")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Outcome classifies an accepted delivery.
type Outcome string

const (
	// OutcomeAccepted means a new job was created from the event.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeDuplicate means the event was already processed; idempotent no-op.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeChallenge means the delivery was a handshake to be echoed.
	OutcomeChallenge Outcome = "challenge"
	// OutcomeIgnored means the event verified fine but maps to no job.
	OutcomeIgnored Outcome = "ignored"
)

// Event is a verified, normalized external event.
type Event struct {
	Sender     string
	Type       string
	DedupKey   string
	Title      string
	Payload    map[string]any
	Actionable bool
	Challenge  string
}

// Result is what intake reports back to the HTTP boundary.
type Result struct {
	Outcome   Outcome
	Sender    string
	EventID   string
	EventType string
	Challenge string
	JobID     string
}

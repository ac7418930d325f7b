package supervisor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTokenSingleUse(t *testing.T) {
	store := NewTokenStore(5 * time.Minute)
	hash := ParamsHash(map[string]any{"job_id": "j1"})
	token, _ := store.Issue("jobs.approve", hash)

	if err := store.Consume(token, "jobs.approve", hash); err != nil {
		t.Fatalf("err: %v", err)
	}
	if err := store.Consume(token, "jobs.approve", hash); !errors.Is(err, ErrInvalidConfirmToken) {
		t.Fatalf("second use: %v", err)
	}
}

func TestTokenWrongTool(t *testing.T) {
	store := NewTokenStore(5 * time.Minute)
	hash := ParamsHash(map[string]any{"job_id": "j1"})
	token, _ := store.Issue("jobs.approve", hash)

	if err := store.Consume(token, "jobs.reject", hash); !errors.Is(err, ErrInvalidConfirmToken) {
		t.Fatalf("err: %v", err)
	}
	// The mismatched attempt spent the token.
	if err := store.Consume(token, "jobs.approve", hash); !errors.Is(err, ErrInvalidConfirmToken) {
		t.Fatalf("err: %v", err)
	}
}

func TestTokenParamsMismatch(t *testing.T) {
	store := NewTokenStore(5 * time.Minute)
	token, _ := store.Issue("jobs.approve", ParamsHash(map[string]any{"job_id": "j1"}))
	err := store.Consume(token, "jobs.approve", ParamsHash(map[string]any{"job_id": "j2"}))
	if !errors.Is(err, ErrInvalidConfirmToken) {
		t.Fatalf("err: %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore(5 * time.Minute)
	store.Clock = func() time.Time { return now }

	hash := ParamsHash(nil)
	token, expiresAt := store.Issue("jobs.create", hash)
	if !expiresAt.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expires_at: %v", expiresAt)
	}

	now = now.Add(6 * time.Minute)
	if err := store.Consume(token, "jobs.create", hash); !errors.Is(err, ErrInvalidConfirmToken) {
		t.Fatalf("err: %v", err)
	}
}

func TestTokenConcurrentConsumeOneWinner(t *testing.T) {
	store := NewTokenStore(5 * time.Minute)
	hash := ParamsHash(map[string]any{"job_id": "j1"})
	token, _ := store.Issue("jobs.approve", hash)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- store.Consume(token, "jobs.approve", hash)
		}()
	}
	wg.Wait()
	close(results)

	var wins, refusals int
	for err := range results {
		if err == nil {
			wins++
		} else if errors.Is(err, ErrInvalidConfirmToken) {
			refusals++
		}
	}
	if wins != 1 || refusals != n-1 {
		t.Fatalf("wins=%d refusals=%d", wins, refusals)
	}
}

func TestTokenSweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewTokenStore(5 * time.Minute)
	store.Clock = func() time.Time { return now }

	store.Issue("jobs.create", ParamsHash(nil))
	now = now.Add(3 * time.Minute)
	store.Issue("jobs.approve", ParamsHash(nil))

	now = now.Add(3 * time.Minute)
	if removed := store.Sweep(); removed != 1 {
		t.Fatalf("removed: %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("len: %d", store.Len())
	}
}

func TestParamsHashOrderIndependent(t *testing.T) {
	a := ParamsHash(map[string]any{"title": "x", "payload": map[string]any{"b": 2, "a": 1}})
	b := ParamsHash(map[string]any{"payload": map[string]any{"a": 1, "b": 2}, "title": "x"})
	if a != b {
		t.Fatalf("hash differs for equal params")
	}
	if ParamsHash(nil) != ParamsHash(map[string]any{}) {
		t.Fatalf("nil and empty differ")
	}
	if a == ParamsHash(map[string]any{"title": "y"}) {
		t.Fatalf("different params collide")
	}
}

package webhook

import (
	"context"
	"sync"
	"time"
)

// RecordStore remembers processed deliveries for the dedup window.
// InsertEventRecord reports true when the (sender, key) pair is new; a false
// return means the delivery was already seen inside the retention window.
type RecordStore interface {
	InsertEventRecord(ctx context.Context, sender, key string, retention time.Duration) (bool, error)
	DeleteExpiredEventRecords(ctx context.Context) (int64, error)
}

type recordEntry struct {
	expiresAt time.Time
}

// MemoryRecordStore keeps dedup records in process memory. Entries expire
// lazily on lookup and in bulk via Sweep.
type MemoryRecordStore struct {
	mu      sync.Mutex
	entries map[string]recordEntry
	Clock   func() time.Time
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{entries: make(map[string]recordEntry)}
}

func (s *MemoryRecordStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *MemoryRecordStore) InsertEventRecord(_ context.Context, sender, key string, retention time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	k := sender + ":" + key
	if entry, ok := s.entries[k]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	s.entries[k] = recordEntry{expiresAt: now.Add(retention)}
	return true, nil
}

func (s *MemoryRecordStore) DeleteExpiredEventRecords(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var removed int64
	for k, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

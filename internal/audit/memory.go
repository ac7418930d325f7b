package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryLog is a bounded in-memory audit store. It keeps the newest maxEvents
// entries and serves both the Sink and Reader interfaces. Suitable for tests
// and single-node deployments without Postgres.
type MemoryLog struct {
	mu        sync.Mutex
	events    []Event
	maxEvents int
}

func NewMemoryLog(maxEvents int) *MemoryLog {
	if maxEvents <= 0 {
		maxEvents = 1000
	}
	return &MemoryLog{maxEvents: maxEvents}
}

func (m *MemoryLog) InsertAuditEvent(ctx context.Context, ev Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
	return ev.ID, nil
}

func (m *MemoryLog) ListAuditEvents(ctx context.Context, f Filter) ([]Event, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]Event, 0, len(m.events))
	for _, ev := range m.events {
		if f.Action != "" && ev.Action != f.Action {
			continue
		}
		if f.Actor != "" && ev.Actor != f.Actor {
			continue
		}
		if f.Status != "" && ev.Status != f.Status {
			continue
		}
		if f.JobID != "" && ev.JobID != f.JobID {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Event{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]Event, end-offset)
	copy(out, matched[offset:end])
	return out, total, nil
}

func (m *MemoryLog) AuditStats(ctx context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		TotalEvents:    len(m.events),
		EventsByAction: map[string]int{},
		EventsByStatus: map[string]int{},
	}
	for i := range m.events {
		ev := &m.events[i]
		stats.EventsByAction[ev.Action]++
		stats.EventsByStatus[ev.Status]++
		if stats.OldestEvent == nil || ev.Timestamp.Before(*stats.OldestEvent) {
			ts := ev.Timestamp
			stats.OldestEvent = &ts
		}
		if stats.NewestEvent == nil || ev.Timestamp.After(*stats.NewestEvent) {
			ts := ev.Timestamp
			stats.NewestEvent = &ts
		}
	}
	return stats, nil
}

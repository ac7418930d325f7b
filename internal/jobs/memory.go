package jobs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps jobs in process memory with a per-job mutex so
// transitions on one job are linearized without contending across jobs.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*memoryJob
	Clock func() time.Time
}

type memoryJob struct {
	mu  sync.Mutex
	job Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*memoryJob)}
}

func (s *MemoryStore) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *MemoryStore) CreateJob(ctx context.Context, job Job) (Job, error) {
	now := s.now()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Notes = nil
	job.NotesCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = &memoryJob{job: job.Clone()}
	return job, nil
}

func (s *MemoryStore) entry(id string) (*memoryJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	job := entry.job.Clone()
	job.NotesCount = len(entry.job.Notes)
	return job, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, f ListFilter) ([]Job, int, error) {
	s.mu.RLock()
	entries := make([]*memoryJob, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	matched := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		job := e.job.Clone()
		job.NotesCount = len(e.job.Notes)
		e.mu.Unlock()
		job.Notes = nil
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(job.Title), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, job)
	}
	sortJobs(matched, f.Sort, f.Order)

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Job{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func sortJobs(list []Job, field, order string) {
	desc := !strings.EqualFold(order, "asc")
	less := func(i, j int) bool {
		switch field {
		case "title":
			return list[i].Title < list[j].Title
		case "status":
			return list[i].Status < list[j].Status
		case "updated_at":
			return list[i].UpdatedAt.Before(list[j].UpdatedAt)
		default:
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
	}
	if desc {
		sort.SliceStable(list, func(i, j int) bool { return less(j, i) })
		return
	}
	sort.SliceStable(list, less)
}

func (s *MemoryStore) UpdateJob(ctx context.Context, id string, upd Update) (Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if upd.Title != nil {
		entry.job.Title = *upd.Title
	}
	if upd.Payload != nil {
		entry.job.Payload = copyMap(upd.Payload)
	}
	if upd.Result != nil {
		entry.job.Result = copyMap(upd.Result)
	}
	s.touch(&entry.job)
	job := entry.job.Clone()
	job.NotesCount = len(entry.job.Notes)
	return job, nil
}

func (s *MemoryStore) Transition(ctx context.Context, id string, expected, next Status, mutate func(*Job)) (Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.job.Status != expected || !CanTransition(expected, next) {
		return Job{}, NewTransitionError(id, entry.job.Status, next)
	}
	entry.job.Status = next
	if mutate != nil {
		mutate(&entry.job)
	}
	s.touch(&entry.job)
	job := entry.job.Clone()
	job.NotesCount = len(entry.job.Notes)
	return job, nil
}

func (s *MemoryStore) ForceStatus(ctx context.Context, id string, next Status) (Job, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Job{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.job.Status = next
	s.touch(&entry.job)
	job := entry.job.Clone()
	job.NotesCount = len(entry.job.Notes)
	return job, nil
}

func (s *MemoryStore) AddNote(ctx context.Context, id string, note Note) (Note, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Note{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = s.now()
	}
	entry.job.Notes = append(entry.job.Notes, note)
	s.touch(&entry.job)
	return note, nil
}

func (s *MemoryStore) ListNotes(ctx context.Context, id string) ([]Note, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return append([]Note(nil), entry.job.Notes...), nil
}

// touch bumps UpdatedAt without ever moving it backwards, even with a
// coarse or frozen test clock.
func (s *MemoryStore) touch(job *Job) {
	now := s.now()
	if now.After(job.UpdatedAt) {
		job.UpdatedAt = now
		return
	}
	job.UpdatedAt = job.UpdatedAt.Add(time.Nanosecond)
}

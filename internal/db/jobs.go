package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobsentry/internal/jobs"
)

// JobStore adapts DB to the jobs.Store interface.
type JobStore struct {
	db *DB
}

func (d *DB) Jobs() *JobStore {
	return &JobStore{db: d}
}

const jobColumns = `id, title, status, created_at, updated_at, payload, result, source,
	(SELECT COUNT(*) FROM job_notes n WHERE n.job_id = jobs.id) AS notes_count`

func scanJob(row rowScanner) (jobs.Job, error) {
	var job jobs.Job
	var status string
	var payload, result []byte
	var source sql.NullString
	if err := row.Scan(&job.ID, &job.Title, &status, &job.CreatedAt, &job.UpdatedAt, &payload, &result, &source, &job.NotesCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNotFound
		}
		return jobs.Job{}, err
	}
	job.Status = jobs.Status(status)
	if len(payload) > 0 {
		_ = json.Unmarshal(payload, &job.Payload)
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &job.Result)
	}
	if source.Valid {
		job.Source = source.String
	}
	return job, nil
}

func marshalJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	encoded, _ := json.Marshal(m)
	return encoded
}

func (s *JobStore) CreateJob(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Job{}, errors.New("db not initialized")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = jobs.StatusQueued
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO jobs(id, title, status, created_at, updated_at, payload, result, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, job.ID, job.Title, string(job.Status), job.CreatedAt, job.UpdatedAt,
		marshalJSON(job.Payload), marshalJSON(job.Result), nullString(job.Source))
	if err != nil {
		return jobs.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

func (s *JobStore) GetJob(ctx context.Context, id string) (jobs.Job, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Job{}, errors.New("db not initialized")
	}
	return s.getJob(ctx, s.db.conn, id, false)
}

func (s *JobStore) getJob(ctx context.Context, conn dbConn, id string, forUpdate bool) (jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE OF jobs`
	}
	return scanJob(conn.QueryRowContext(ctx, query, id))
}

var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
	"status":     "status",
}

func (s *JobStore) ListJobs(ctx context.Context, f jobs.ListFilter) ([]jobs.Job, int, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return nil, 0, errors.New("db not initialized")
	}
	limit, offset := clampPagination(f.Limit, f.Offset)
	sortCol, ok := sortColumns[f.Sort]
	if !ok {
		sortCol = "created_at"
	}
	dir := "DESC"
	if f.Order == "asc" {
		dir = "ASC"
	}
	// Status and search filters are always bound; empty values match all rows.
	query := fmt.Sprintf(`
		SELECT COALESCE(jsonb_agg(j ORDER BY j.%s %s), '[]'::jsonb),
		       COALESCE(MAX(j.total), 0)
		FROM (
			SELECT id, title, status, created_at, updated_at, payload, result, source,
			       (SELECT COUNT(*) FROM job_notes n WHERE n.job_id = jobs.id) AS notes_count,
			       COUNT(*) OVER () AS total
			FROM jobs
			WHERE ($1 = '' OR status = $1)
			  AND ($2 = '' OR title ILIKE '%%' || $2 || '%%')
			ORDER BY %s %s
			LIMIT $3 OFFSET $4
		) AS j
	`, sortCol, dir, sortCol, dir)
	row := s.db.conn.QueryRowContext(ctx, query, string(f.Status), f.Search, limit, offset)
	var agg []byte
	var total int
	if err := row.Scan(&agg, &total); err != nil {
		return nil, 0, err
	}
	var rows []struct {
		ID         string         `json:"id"`
		Title      string         `json:"title"`
		Status     string         `json:"status"`
		CreatedAt  time.Time      `json:"created_at"`
		UpdatedAt  time.Time      `json:"updated_at"`
		Payload    map[string]any `json:"payload"`
		Result     map[string]any `json:"result"`
		Source     *string        `json:"source"`
		NotesCount int            `json:"notes_count"`
	}
	if len(agg) > 0 {
		if err := json.Unmarshal(agg, &rows); err != nil {
			return nil, 0, err
		}
	}
	out := make([]jobs.Job, 0, len(rows))
	for _, r := range rows {
		job := jobs.Job{
			ID:         r.ID,
			Title:      r.Title,
			Status:     jobs.Status(r.Status),
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
			Payload:    r.Payload,
			Result:     r.Result,
			NotesCount: r.NotesCount,
		}
		if r.Source != nil {
			job.Source = *r.Source
		}
		out = append(out, job)
	}
	return out, total, nil
}

func (s *JobStore) UpdateJob(ctx context.Context, id string, upd jobs.Update) (jobs.Job, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Job{}, errors.New("db not initialized")
	}
	var out jobs.Job
	err := s.db.withTx(ctx, func(conn dbConn) error {
		job, err := s.getJob(ctx, conn, id, true)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			job.Title = *upd.Title
		}
		if upd.Payload != nil {
			job.Payload = upd.Payload
		}
		if upd.Result != nil {
			job.Result = upd.Result
		}
		if err := s.writeJob(ctx, conn, &job); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return jobs.Job{}, err
	}
	return out, nil
}

// writeJob persists mutable fields and bumps updated_at without ever moving
// it backwards, even against clock skew.
func (s *JobStore) writeJob(ctx context.Context, conn dbConn, job *jobs.Job) error {
	_, err := conn.ExecContext(ctx, `
		UPDATE jobs
		SET title=$2, status=$3, payload=$4, result=$5,
		    updated_at=GREATEST(now(), updated_at + interval '1 microsecond')
		WHERE id=$1
	`, job.ID, job.Title, string(job.Status), marshalJSON(job.Payload), marshalJSON(job.Result))
	return err
}

func (s *JobStore) Transition(ctx context.Context, id string, expected, next jobs.Status, mutate func(*jobs.Job)) (jobs.Job, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Job{}, errors.New("db not initialized")
	}
	var out jobs.Job
	err := s.db.withTx(ctx, func(conn dbConn) error {
		// The row lock serializes concurrent transitions per job; the guarded
		// UPDATE below keeps the compare-and-swap even without it.
		job, err := s.getJob(ctx, conn, id, true)
		if err != nil {
			return err
		}
		if job.Status != expected || !jobs.CanTransition(expected, next) {
			return jobs.NewTransitionError(id, job.Status, next)
		}
		job.Status = next
		if mutate != nil {
			mutate(&job)
			job.Status = next
		}
		res, err := conn.ExecContext(ctx, `
			UPDATE jobs
			SET title=$2, status=$3, payload=$4, result=$5,
			    updated_at=GREATEST(now(), updated_at + interval '1 microsecond')
			WHERE id=$1 AND status=$6
		`, job.ID, job.Title, string(job.Status), marshalJSON(job.Payload), marshalJSON(job.Result), string(expected))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			current, gerr := s.getJob(ctx, conn, id, false)
			if gerr != nil {
				return gerr
			}
			return jobs.NewTransitionError(id, current.Status, next)
		}
		out = job
		return nil
	})
	if err != nil {
		return jobs.Job{}, err
	}
	return out, nil
}

func (s *JobStore) ForceStatus(ctx context.Context, id string, next jobs.Status) (jobs.Job, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Job{}, errors.New("db not initialized")
	}
	var out jobs.Job
	err := s.db.withTx(ctx, func(conn dbConn) error {
		job, err := s.getJob(ctx, conn, id, true)
		if err != nil {
			return err
		}
		job.Status = next
		if err := s.writeJob(ctx, conn, &job); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return jobs.Job{}, err
	}
	return out, nil
}

func (s *JobStore) AddNote(ctx context.Context, id string, note jobs.Note) (jobs.Note, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return jobs.Note{}, errors.New("db not initialized")
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return jobs.Note{}, err
	}
	note.ID = uuid.NewString()
	note.CreatedAt = time.Now().UTC()
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO job_notes(id, job_id, author, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, note.ID, id, nullString(note.Author), note.Text, note.CreatedAt)
	if err != nil {
		return jobs.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (s *JobStore) ListNotes(ctx context.Context, id string) ([]jobs.Note, error) {
	if s == nil || s.db == nil || s.db.conn == nil {
		return nil, errors.New("db not initialized")
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return nil, err
	}
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(jsonb_agg(n ORDER BY n.created_at), '[]'::jsonb)
		FROM (
			SELECT id, COALESCE(author, '') AS author, text, created_at
			FROM job_notes
			WHERE job_id=$1
			ORDER BY created_at
		) AS n
	`, id)
	var agg []byte
	if err := row.Scan(&agg); err != nil {
		return nil, err
	}
	var notes []jobs.Note
	if len(agg) > 0 {
		if err := json.Unmarshal(agg, &notes); err != nil {
			return nil, err
		}
	}
	return notes, nil
}

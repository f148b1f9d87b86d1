package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// JobRepository provides PostgreSQL-backed job storage. The scope lock lives
// in the schema as a partial unique index over pending and running jobs, so
// it holds across processes without advisory locks.
type JobRepository struct {
	pool *Pool
}

// NewJobRepository creates a new job repository.
func NewJobRepository(pool *Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, type, scope, status, total_items, processed_items, failed_items,
	cancel_requested, error, created_at, started_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*database.Job, error) {
	var j database.Job
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.Type, &j.Scope, &j.Status, &j.TotalItems, &j.ProcessedItems, &j.FailedItems,
		&j.CancelRequested, &j.Error, &j.CreatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

// Enqueue persists a pending job. A violation of the partial unique index
// means a job of the same type is already active in the scope.
func (r *JobRepository) Enqueue(ctx context.Context, job *database.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = database.JobPending

	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (id, type, scope, status, total_items)
		VALUES ($1, $2, $3, 'pending', $4)
	`, job.ID, string(job.Type), job.Scope, job.TotalItems)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return database.ErrAlreadyRunning
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// ClaimNext atomically moves the oldest pending job of the given type to
// running. SKIP LOCKED keeps concurrent workers from claiming the same row.
func (r *JobRepository) ClaimNext(ctx context.Context, jobType database.JobType) (*database.Job, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE jobs SET status = 'running', started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE type = $1 AND status = 'pending'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		string(jobType))

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

// Advance adds to the progress counters. Counters only ever grow.
func (r *JobRepository) Advance(ctx context.Context, id string, processedDelta, failedDelta int) error {
	if processedDelta < 0 || failedDelta < 0 {
		return fmt.Errorf("%w: negative progress delta", database.ErrInvalidArgument)
	}
	res, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET processed_items = processed_items + $2, failed_items = failed_items + $3
		WHERE id = $1
	`, id, processedDelta, failedDelta)
	if err != nil {
		return fmt.Errorf("advance job: %w", err)
	}
	return requireRow(res)
}

// SetTotal records the item count once the worker knows it.
func (r *JobRepository) SetTotal(ctx context.Context, id string, total int) error {
	res, err := r.pool.Exec(ctx, `UPDATE jobs SET total_items = $2 WHERE id = $1`, id, total)
	if err != nil {
		return fmt.Errorf("set job total: %w", err)
	}
	return requireRow(res)
}

// terminalGuard keeps completed, failed and cancelled jobs final.
const terminalGuard = ` AND status NOT IN ('completed', 'failed', 'cancelled')`

// Complete moves a job to completed. Terminal states stay final.
func (r *JobRepository) Complete(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'completed', completed_at = NOW()
		WHERE id = $1`+terminalGuard, id)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return requireRow(res)
}

// Fail moves a job to failed with the given reason.
func (r *JobRepository) Fail(ctx context.Context, id, reason string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', error = $2, completed_at = NOW()
		WHERE id = $1`+terminalGuard, id, reason)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return requireRow(res)
}

// RequestCancel sets the cooperative cancel flag. A job that never started
// is cancelled outright; a running one keeps going until its worker checks
// the flag at the next item boundary.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE jobs SET
			cancel_requested = TRUE,
			status = CASE WHEN status = 'pending' THEN 'cancelled' ELSE status END,
			completed_at = CASE WHEN status = 'pending' THEN NOW() ELSE completed_at END
		WHERE id = $1`+terminalGuard, id)
	if err != nil {
		return fmt.Errorf("request job cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Either unknown or already terminal; distinguish for the caller.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// IsCancelRequested reads the cancel flag.
func (r *JobRepository) IsCancelRequested(ctx context.Context, id string) (bool, error) {
	var flag bool
	err := r.pool.QueryRow(ctx, `SELECT cancel_requested FROM jobs WHERE id = $1`, id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, database.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("query cancel flag: %w", err)
	}
	return flag, nil
}

// MarkCancelled finalizes a job whose worker observed the cancel flag.
func (r *JobRepository) MarkCancelled(ctx context.Context, id string) error {
	res, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'cancelled', completed_at = NOW()
		WHERE id = $1`+terminalGuard, id)
	if err != nil {
		return fmt.Errorf("mark job cancelled: %w", err)
	}
	return requireRow(res)
}

// Get returns a job by id, ErrNotFound if absent.
func (r *JobRepository) Get(ctx context.Context, id string) (*database.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	return job, nil
}

// ListByScope returns all jobs of a scope, newest first.
func (r *JobRepository) ListByScope(ctx context.Context, scope string) ([]*database.Job, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE scope = $1 ORDER BY created_at DESC, id
	`, scope)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []*database.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}

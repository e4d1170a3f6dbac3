package repopg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// RetryJobRepository persists RetryJob entities against the
// pipeline_retry_jobs table.
type RetryJobRepository struct {
	db dbtx
}

func NewRetryJobRepository(db dbtx) *RetryJobRepository {
	return &RetryJobRepository{db: db}
}

func (r *RetryJobRepository) Create(ctx context.Context, j *domain.RetryJob) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_retry_jobs (id, step_run_id, retry_attempt, scheduled_at, status, created_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, j.ID, j.StepRunID, j.RetryAttempt, j.ScheduledAt, j.Status, j.CreatedAt, j.ProcessedAt).
		Scan(&j.CreatedAt)
}

const retryJobColumns = `id, step_run_id, retry_attempt, scheduled_at, status, created_at, processed_at`

func scanRetryJob(row pgx.Row) (*domain.RetryJob, error) {
	j := &domain.RetryJob{}
	err := row.Scan(&j.ID, &j.StepRunID, &j.RetryAttempt, &j.ScheduledAt, &j.Status, &j.CreatedAt, &j.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *RetryJobRepository) GetByID(ctx context.Context, id string) (*domain.RetryJob, error) {
	j, err := scanRetryJob(r.db.QueryRow(ctx, `SELECT `+retryJobColumns+` FROM pipeline_retry_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("retry job not found")
	}
	return j, err
}

func (r *RetryJobRepository) Update(ctx context.Context, j *domain.RetryJob) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_retry_jobs
		SET status = $1, processed_at = $2
		WHERE id = $3
	`, j.Status, j.ProcessedAt, j.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("retry job not found")
	}
	return nil
}

// GetLatestByStepRun returns the most recently created RetryJob for a step,
// or (nil, nil) if none exists yet.
func (r *RetryJobRepository) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.RetryJob, error) {
	j, err := scanRetryJob(r.db.QueryRow(ctx, `
		SELECT `+retryJobColumns+`
		FROM pipeline_retry_jobs
		WHERE step_run_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, stepRunID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return j, err
}

// ListDue returns pending jobs whose scheduled_at has elapsed, locking the
// rows (FOR UPDATE SKIP LOCKED) until the caller's transaction ends.
// RetryWorker.tick commits that transaction before it processes the jobs, so
// the lock does not keep two worker instances from picking up the same job.
func (r *RetryJobRepository) ListDue(ctx context.Context, limit int) ([]*domain.RetryJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+retryJobColumns+`
		FROM pipeline_retry_jobs
		WHERE status = $1 AND scheduled_at <= now()
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, domain.RetryStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*domain.RetryJob, 0)
	for rows.Next() {
		j, err := scanRetryJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

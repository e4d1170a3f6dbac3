package repopg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// GitSyncJobRepository persists GitSyncJob entities against the
// pipeline_git_sync_jobs table.
type GitSyncJobRepository struct {
	db dbtx
}

func NewGitSyncJobRepository(db dbtx) *GitSyncJobRepository {
	return &GitSyncJobRepository{db: db}
}

func (r *GitSyncJobRepository) Create(ctx context.Context, j *domain.GitSyncJob) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_git_sync_jobs (
			id, artifact_id, tenant_id, repository_url, branch, commit_message, status,
			commit_sha, error_message, retry_count, max_retries, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, j.ID, j.ArtifactID, j.TenantID, j.RepositoryURL, j.Branch, j.CommitMessage, j.Status,
		j.CommitSHA, j.ErrorMessage, j.RetryCount, j.MaxRetries, j.CreatedAt, j.StartedAt, j.CompletedAt).
		Scan(&j.CreatedAt)
}

func (r *GitSyncJobRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.GitSyncJob, error) {
	j := &domain.GitSyncJob{}
	err := r.db.QueryRow(ctx, `
		SELECT id, artifact_id, tenant_id, repository_url, branch, commit_message, status,
			commit_sha, error_message, retry_count, max_retries, created_at, started_at, completed_at
		FROM pipeline_git_sync_jobs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&j.ID, &j.ArtifactID, &j.TenantID, &j.RepositoryURL, &j.Branch, &j.CommitMessage, &j.Status,
		&j.CommitSHA, &j.ErrorMessage, &j.RetryCount, &j.MaxRetries, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("git sync job not found")
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *GitSyncJobRepository) Update(ctx context.Context, j *domain.GitSyncJob) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_git_sync_jobs
		SET status = $1, commit_sha = $2, error_message = $3, retry_count = $4,
			started_at = $5, completed_at = $6
		WHERE id = $7 AND tenant_id = $8
	`, j.Status, j.CommitSHA, j.ErrorMessage, j.RetryCount, j.StartedAt, j.CompletedAt, j.ID, j.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("git sync job not found")
	}
	return nil
}

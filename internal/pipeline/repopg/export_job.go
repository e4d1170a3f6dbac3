package repopg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// ExportJobRepository persists ExportJob entities against the
// pipeline_export_jobs table.
type ExportJobRepository struct {
	db dbtx
}

func NewExportJobRepository(db dbtx) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

func (r *ExportJobRepository) Create(ctx context.Context, j *domain.ExportJob) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_export_jobs (
			id, project_id, tenant_id, status, file_path, download_url, expires_at,
			error_message, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, j.ID, j.ProjectID, j.TenantID, j.Status, j.FilePath, j.DownloadURL, j.ExpiresAt,
		j.ErrorMessage, j.CreatedAt, j.StartedAt, j.CompletedAt).
		Scan(&j.CreatedAt)
}

func (r *ExportJobRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.ExportJob, error) {
	j := &domain.ExportJob{}
	err := r.db.QueryRow(ctx, `
		SELECT id, project_id, tenant_id, status, file_path, download_url, expires_at,
			error_message, created_at, started_at, completed_at
		FROM pipeline_export_jobs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&j.ID, &j.ProjectID, &j.TenantID, &j.Status, &j.FilePath, &j.DownloadURL, &j.ExpiresAt,
		&j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("export job not found")
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *ExportJobRepository) Update(ctx context.Context, j *domain.ExportJob) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_export_jobs
		SET status = $1, file_path = $2, download_url = $3, expires_at = $4,
			error_message = $5, started_at = $6, completed_at = $7
		WHERE id = $8 AND tenant_id = $9
	`, j.Status, j.FilePath, j.DownloadURL, j.ExpiresAt, j.ErrorMessage, j.StartedAt, j.CompletedAt, j.ID, j.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("export job not found")
	}
	return nil
}

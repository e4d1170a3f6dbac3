package repopg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// PipelineRunRepository persists PipelineRun entities against the
// pipeline_runs table. PauseReasons is stored as a jsonb array rather than a
// Postgres text[] so the zero-reason and multi-reason cases marshal the
// same way the domain's set semantics already expect.
type PipelineRunRepository struct {
	db dbtx
}

func NewPipelineRunRepository(db dbtx) *PipelineRunRepository {
	return &PipelineRunRepository{db: db}
}

func (r *PipelineRunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	reasonsJSON, err := json.Marshal(run.PauseReasons)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_runs (
			id, task_id, tenant_id, status, current_step, pause_reasons, error_message,
			created_at, updated_at, started_at, paused_at, pause_expires_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, run.ID, run.TaskID, run.TenantID, run.Status, run.CurrentStep, reasonsJSON, run.ErrorMessage,
		run.CreatedAt, run.UpdatedAt, run.StartedAt, run.PausedAt, run.PauseExpiresAt, run.CompletedAt).
		Scan(&run.CreatedAt, &run.UpdatedAt)
}

func scanPipelineRun(row pgx.Row) (*domain.PipelineRun, error) {
	run := &domain.PipelineRun{}
	var reasonsJSON []byte
	err := row.Scan(
		&run.ID, &run.TaskID, &run.TenantID, &run.Status, &run.CurrentStep, &reasonsJSON, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt, &run.StartedAt, &run.PausedAt, &run.PauseExpiresAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &run.PauseReasons); err != nil {
			return nil, err
		}
	}
	return run, nil
}

const pipelineRunColumns = `
	id, task_id, tenant_id, status, current_step, pause_reasons, error_message,
	created_at, updated_at, started_at, paused_at, pause_expires_at, completed_at
`

func (r *PipelineRunRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.PipelineRun, error) {
	run, err := scanPipelineRun(r.db.QueryRow(ctx, `
		SELECT `+pipelineRunColumns+`
		FROM pipeline_runs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeRunNotFound, "pipeline run not found")
	}
	return run, err
}

func (r *PipelineRunRepository) GetByIDUnscoped(ctx context.Context, id string) (*domain.PipelineRun, error) {
	run, err := scanPipelineRun(r.db.QueryRow(ctx, `
		SELECT `+pipelineRunColumns+`
		FROM pipeline_runs
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeRunNotFound, "pipeline run not found")
	}
	return run, err
}

func (r *PipelineRunRepository) Update(ctx context.Context, run *domain.PipelineRun) error {
	reasonsJSON, err := json.Marshal(run.PauseReasons)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $1, current_step = $2, pause_reasons = $3, error_message = $4,
			updated_at = $5, started_at = $6, paused_at = $7, pause_expires_at = $8, completed_at = $9
		WHERE id = $10 AND tenant_id = $11
	`, run.Status, run.CurrentStep, reasonsJSON, run.ErrorMessage,
		run.UpdatedAt, run.StartedAt, run.PausedAt, run.PauseExpiresAt, run.CompletedAt,
		run.ID, run.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.CodeNotFoundErr(apperr.CodeRunNotFound, "pipeline run not found")
	}
	return nil
}

func (r *PipelineRunRepository) List(ctx context.Context, tenantID string, status domain.PipelineStatus, limit, offset int) ([]*domain.PipelineRun, error) {
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = r.db.Query(ctx, `
			SELECT `+pipelineRunColumns+`
			FROM pipeline_runs
			WHERE tenant_id = $1 AND status = $2
			ORDER BY created_at DESC
			LIMIT $3 OFFSET $4
		`, tenantID, status, limit, offset)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+pipelineRunColumns+`
			FROM pipeline_runs
			WHERE tenant_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, tenantID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

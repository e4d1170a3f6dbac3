package repopg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// TaskRepository persists Task entities against the pipeline_tasks table.
type TaskRepository struct {
	db dbtx
}

func NewTaskRepository(db dbtx) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	inputSpecJSON, err := json.Marshal(t.InputSpec)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_tasks (id, tenant_id, project_id, input_spec, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, t.ID, t.TenantID, t.ProjectID, inputSpecJSON, t.Status, t.CreatedAt, t.UpdatedAt).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	t := &domain.Task{}
	var inputSpecJSON []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, project_id, input_spec, status, created_at, updated_at
		FROM pipeline_tasks
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&t.ID, &t.TenantID, &t.ProjectID, &inputSpecJSON, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeTaskNotFound, "task not found")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(inputSpecJSON, &t.InputSpec); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_tasks
		SET status = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4
	`, t.Status, t.UpdatedAt, t.ID, t.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.CodeNotFoundErr(apperr.CodeTaskNotFound, "task not found")
	}
	return nil
}

func (r *TaskRepository) ListByProject(ctx context.Context, tenantID, projectID string, limit, offset int) ([]*domain.Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, project_id, input_spec, status, created_at, updated_at
		FROM pipeline_tasks
		WHERE tenant_id = $1 AND project_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, tenantID, projectID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		t := &domain.Task{}
		var inputSpecJSON []byte
		if err := rows.Scan(&t.ID, &t.TenantID, &t.ProjectID, &inputSpecJSON, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(inputSpecJSON, &t.InputSpec); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

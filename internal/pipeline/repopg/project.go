package repopg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// ProjectRepository persists Project entities against the pipeline_projects
// table.
type ProjectRepository struct {
	db dbtx
}

func NewProjectRepository(db dbtx) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) Create(ctx context.Context, p *domain.Project) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_projects (id, tenant_id, name, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`, p.ID, p.TenantID, p.Name, p.Description, p.Status, p.CreatedAt, p.UpdatedAt).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *ProjectRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Project, error) {
	p := &domain.Project{}
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, status, created_at, updated_at
		FROM pipeline_projects
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeProjectNotFound, "project not found")
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) Update(ctx context.Context, p *domain.Project) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_projects
		SET name = $1, description = $2, status = $3, updated_at = $4
		WHERE id = $5 AND tenant_id = $6
	`, p.Name, p.Description, p.Status, p.UpdatedAt, p.ID, p.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.CodeNotFoundErr(apperr.CodeProjectNotFound, "project not found")
	}
	return nil
}

func (r *ProjectRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, name, description, status, created_at, updated_at
		FROM pipeline_projects
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		p := &domain.Project{}
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

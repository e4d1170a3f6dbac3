package repopg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// ArtifactRepository persists Artifact entities against the
// pipeline_artifacts table.
type ArtifactRepository struct {
	db dbtx
}

func NewArtifactRepository(db dbtx) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

type artifactContentRow struct {
	Text     string         `json:"text"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (r *ArtifactRepository) Create(ctx context.Context, a *domain.Artifact) error {
	contentJSON, err := json.Marshal(artifactContentRow{Text: a.Content.Text, URL: a.Content.URL, Metadata: a.Content.Metadata})
	if err != nil {
		return err
	}
	extraJSON, err := json.Marshal(a.ExtraData)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_artifacts (
			id, tenant_id, task_id, pipeline_run_id, step_run_id, artifact_type, status,
			version, content, extra_data, superseded_by, approved_at, rejected_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, a.ID, a.TenantID, a.TaskID, a.PipelineRunID, a.StepRunID, a.ArtifactType, a.Status,
		a.Version, contentJSON, extraJSON, a.SupersededBy, a.ApprovedAt, a.RejectedAt, a.CreatedAt).
		Scan(&a.CreatedAt)
}

const artifactColumns = `
	id, tenant_id, task_id, pipeline_run_id, step_run_id, artifact_type, status,
	version, content, extra_data, superseded_by, approved_at, rejected_at, created_at
`

func scanArtifact(row pgx.Row) (*domain.Artifact, error) {
	a := &domain.Artifact{}
	var contentJSON, extraJSON []byte
	err := row.Scan(
		&a.ID, &a.TenantID, &a.TaskID, &a.PipelineRunID, &a.StepRunID, &a.ArtifactType, &a.Status,
		&a.Version, &contentJSON, &extraJSON, &a.SupersededBy, &a.ApprovedAt, &a.RejectedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	var content artifactContentRow
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			return nil, err
		}
	}
	a.Content = domain.ArtifactContent{Text: content.Text, URL: content.URL, Metadata: content.Metadata}
	if len(extraJSON) > 0 {
		if err := json.Unmarshal(extraJSON, &a.ExtraData); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (r *ArtifactRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Artifact, error) {
	a, err := scanArtifact(r.db.QueryRow(ctx, `
		SELECT `+artifactColumns+`
		FROM pipeline_artifacts
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeArtifactNotFound, "artifact not found")
	}
	return a, err
}

func (r *ArtifactRepository) Update(ctx context.Context, a *domain.Artifact) error {
	extraJSON, err := json.Marshal(a.ExtraData)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_artifacts
		SET status = $1, extra_data = $2, superseded_by = $3, approved_at = $4, rejected_at = $5
		WHERE id = $6 AND tenant_id = $7
	`, a.Status, extraJSON, a.SupersededBy, a.ApprovedAt, a.RejectedAt, a.ID, a.TenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.CodeNotFoundErr(apperr.CodeArtifactNotFound, "artifact not found")
	}
	return nil
}

// MaxVersion returns the highest existing version for (task_id,
// artifact_type), or 0 if none exist. Per the concurrent-allocation
// invariant this MUST run inside the caller's transaction: it takes a
// transaction-scoped advisory lock keyed on the (task_id, artifact_type)
// pair first, so two concurrent callers allocating the next version for the
// same group serialize instead of racing to insert the same version number.
// The lock is released automatically at transaction end (pg_advisory_xact_lock).
func (r *ArtifactRepository) MaxVersion(ctx context.Context, taskID string, artifactType domain.ArtifactType) (int, error) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, taskID+"|"+string(artifactType)); err != nil {
		return 0, err
	}

	var maxVersion *int
	err := r.db.QueryRow(ctx, `
		SELECT MAX(version)
		FROM pipeline_artifacts
		WHERE task_id = $1 AND artifact_type = $2
	`, taskID, artifactType).Scan(&maxVersion)
	if err != nil {
		return 0, err
	}
	if maxVersion == nil {
		return 0, nil
	}
	return *maxVersion, nil
}

func (r *ArtifactRepository) GetLatest(ctx context.Context, taskID string, artifactType domain.ArtifactType) (*domain.Artifact, error) {
	a, err := scanArtifact(r.db.QueryRow(ctx, `
		SELECT `+artifactColumns+`
		FROM pipeline_artifacts
		WHERE task_id = $1 AND artifact_type = $2
		ORDER BY version DESC
		LIMIT 1
	`, taskID, artifactType))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeArtifactNotFound, "artifact not found")
	}
	return a, err
}

func (r *ArtifactRepository) ListByTask(ctx context.Context, tenantID, taskID string) ([]*domain.Artifact, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+artifactColumns+`
		FROM pipeline_artifacts
		WHERE tenant_id = $1 AND task_id = $2
		ORDER BY artifact_type ASC, version DESC
	`, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	artifacts := make([]*domain.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

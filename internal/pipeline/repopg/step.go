package repopg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// StepRepository persists PipelineStepRun entities against the
// pipeline_step_runs table.
type StepRepository struct {
	db dbtx
}

func NewStepRepository(db dbtx) *StepRepository {
	return &StepRepository{db: db}
}

func (r *StepRepository) Create(ctx context.Context, s *domain.PipelineStepRun) error {
	inputJSON, err := json.Marshal(s.InputSnapshot)
	if err != nil {
		return err
	}
	outputJSON, err := json.Marshal(s.Output)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_step_runs (
			id, pipeline_run_id, step_number, step_name, step_type, status, retry_count,
			max_retries, input_snapshot, output, error_message, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`, s.ID, s.PipelineRunID, s.StepNumber, s.StepName, s.StepType, s.Status, s.RetryCount,
		s.MaxRetries, inputJSON, outputJSON, s.ErrorMessage, s.CreatedAt, s.StartedAt, s.CompletedAt).
		Scan(&s.CreatedAt)
}

const stepColumns = `
	id, pipeline_run_id, step_number, step_name, step_type, status, retry_count,
	max_retries, input_snapshot, output, error_message, created_at, started_at, completed_at
`

func scanStep(row pgx.Row) (*domain.PipelineStepRun, error) {
	s := &domain.PipelineStepRun{}
	var inputJSON, outputJSON []byte
	err := row.Scan(
		&s.ID, &s.PipelineRunID, &s.StepNumber, &s.StepName, &s.StepType, &s.Status, &s.RetryCount,
		&s.MaxRetries, &inputJSON, &outputJSON, &s.ErrorMessage, &s.CreatedAt, &s.StartedAt, &s.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &s.InputSnapshot); err != nil {
			return nil, err
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &s.Output); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *StepRepository) GetByID(ctx context.Context, id string) (*domain.PipelineStepRun, error) {
	s, err := scanStep(r.db.QueryRow(ctx, `SELECT `+stepColumns+` FROM pipeline_step_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeStepRunNotFound, "step run not found")
	}
	return s, err
}

func (r *StepRepository) Update(ctx context.Context, s *domain.PipelineStepRun) error {
	inputJSON, err := json.Marshal(s.InputSnapshot)
	if err != nil {
		return err
	}
	outputJSON, err := json.Marshal(s.Output)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE pipeline_step_runs
		SET status = $1, retry_count = $2, input_snapshot = $3, output = $4,
			error_message = $5, started_at = $6, completed_at = $7
		WHERE id = $8
	`, s.Status, s.RetryCount, inputJSON, outputJSON, s.ErrorMessage, s.StartedAt, s.CompletedAt, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.CodeNotFoundErr(apperr.CodeStepRunNotFound, "step run not found")
	}
	return nil
}

func (r *StepRepository) ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.PipelineStepRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+stepColumns+`
		FROM pipeline_step_runs
		WHERE pipeline_run_id = $1
		ORDER BY step_number ASC
	`, pipelineRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]*domain.PipelineStepRun, 0)
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *StepRepository) GetByPipelineRunAndNumber(ctx context.Context, pipelineRunID string, stepNumber int) (*domain.PipelineStepRun, error) {
	s, err := scanStep(r.db.QueryRow(ctx, `
		SELECT `+stepColumns+`
		FROM pipeline_step_runs
		WHERE pipeline_run_id = $1 AND step_number = $2
	`, pipelineRunID, stepNumber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeStepRunNotFound, "step run not found")
	}
	return s, err
}

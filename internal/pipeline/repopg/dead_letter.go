package repopg

import (
	"context"
	"encoding/json"

	"pipelineengine/internal/pipeline/domain"
)

// DeadLetterRepository persists DeadLetterEvent entities against the
// pipeline_dead_letter_events table.
type DeadLetterRepository struct {
	db dbtx
}

func NewDeadLetterRepository(db dbtx) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

func (r *DeadLetterRepository) Create(ctx context.Context, e *domain.DeadLetterEvent) error {
	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_dead_letter_events (
			id, pipeline_run_id, step_run_id, failure_reason, retry_count, context,
			resolved, resolved_at, resolution_notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, e.ID, e.PipelineRunID, e.StepRunID, e.FailureReason, e.RetryCount, contextJSON,
		e.Resolved, e.ResolvedAt, e.ResolutionNotes, e.CreatedAt).
		Scan(&e.CreatedAt)
}

func (r *DeadLetterRepository) ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.DeadLetterEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, pipeline_run_id, step_run_id, failure_reason, retry_count, context,
			resolved, resolved_at, resolution_notes, created_at
		FROM pipeline_dead_letter_events
		WHERE pipeline_run_id = $1
		ORDER BY created_at DESC
	`, pipelineRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]*domain.DeadLetterEvent, 0)
	for rows.Next() {
		e := &domain.DeadLetterEvent{}
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.PipelineRunID, &e.StepRunID, &e.FailureReason, &e.RetryCount, &contextJSON,
			&e.Resolved, &e.ResolvedAt, &e.ResolutionNotes, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

package repopg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/apperr"
)

// AgentRunRepository persists AgentRun entities against the
// pipeline_agent_runs table.
type AgentRunRepository struct {
	db dbtx
}

func NewAgentRunRepository(db dbtx) *AgentRunRepository {
	return &AgentRunRepository{db: db}
}

func (r *AgentRunRepository) Create(ctx context.Context, a *domain.AgentRun) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO pipeline_agent_runs (
			id, step_run_id, agent_type, model, prompt_tokens, completion_tokens,
			estimated_cost_credits, actual_cost_credits, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, a.ID, a.StepRunID, a.AgentType, a.Model, a.PromptTokens, a.CompletionTokens,
		a.EstimatedCostCredits, a.ActualCostCredits, a.CreatedAt, a.CompletedAt).
		Scan(&a.CreatedAt)
}

const agentRunColumns = `
	id, step_run_id, agent_type, model, prompt_tokens, completion_tokens,
	estimated_cost_credits, actual_cost_credits, created_at, completed_at
`

func (r *AgentRunRepository) ListByStepRun(ctx context.Context, stepRunID string) ([]*domain.AgentRun, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+agentRunColumns+`
		FROM pipeline_agent_runs
		WHERE step_run_id = $1
		ORDER BY created_at ASC
	`, stepRunID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.AgentRun, 0)
	for rows.Next() {
		a := &domain.AgentRun{}
		if err := rows.Scan(&a.ID, &a.StepRunID, &a.AgentType, &a.Model, &a.PromptTokens, &a.CompletionTokens,
			&a.EstimatedCostCredits, &a.ActualCostCredits, &a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		runs = append(runs, a)
	}
	return runs, rows.Err()
}

func (r *AgentRunRepository) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.AgentRun, error) {
	a := &domain.AgentRun{}
	err := r.db.QueryRow(ctx, `
		SELECT `+agentRunColumns+`
		FROM pipeline_agent_runs
		WHERE step_run_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, stepRunID).Scan(&a.ID, &a.StepRunID, &a.AgentType, &a.Model, &a.PromptTokens, &a.CompletionTokens,
		&a.EstimatedCostCredits, &a.ActualCostCredits, &a.CreatedAt, &a.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.CodeNotFoundErr(apperr.CodeNoAgentRunsFound, "no agent runs found for step")
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

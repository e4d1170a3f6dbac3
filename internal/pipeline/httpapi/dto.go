// Package httpapi implements the pipeline engine's HTTP surface (§6.4):
// request/response shapes and the gin handlers that translate them into
// calls against the use-case services. Grounded on
// internal/catalog/{handler,transport}'s bind->validate->call->respond
// shape.
package httpapi

import (
	"time"

	"pipelineengine/internal/pipeline/domain"
)

// CreateProjectRequest creates a Project.
type CreateProjectRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// CreateTaskRequest creates a Task under a Project.
type CreateTaskRequest struct {
	InputSpec map[string]any `json:"input_spec" validate:"required"`
}

// RejectArtifactRequest carries optional reviewer feedback and whether a
// replacement run should be forked (§4.4).
type RejectArtifactRequest struct {
	Feedback   string `json:"feedback" validate:"max=4000"`
	Regenerate bool   `json:"regenerate"`
}

// CancelPipelineRequest carries the operator's reason for a manual cancel.
type CancelPipelineRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// ReplayPipelineRequest names the step a replay should fork from.
type ReplayPipelineRequest struct {
	FromStepID string `json:"from_step_id" validate:"required"`
}

// ListPipelinesQuery is the §6.4 pagination/filter query.
type ListPipelinesQuery struct {
	Status string `form:"status" validate:"omitempty,oneof=running paused completed cancelled cancelled_due_to_inactivity failed"`
	Limit  int    `form:"limit" validate:"omitempty,min=1,max=200"`
	Offset int    `form:"offset" validate:"omitempty,min=0"`
}

// ProjectResponse is the wire shape of a Project.
type ProjectResponse struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newProjectResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		TenantID:    p.TenantID,
		Name:        p.Name,
		Description: p.Description,
		Status:      string(p.Status),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// TaskResponse is the wire shape of a Task.
type TaskResponse struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	ProjectID string         `json:"project_id"`
	InputSpec map[string]any `json:"input_spec"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func newTaskResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		TenantID:  t.TenantID,
		ProjectID: t.ProjectID,
		InputSpec: map[string]any(t.InputSpec),
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// ValidationResponse is the §4.2 pre-flight result.
type ValidationResponse struct {
	Eligible       bool    `json:"eligible"`
	EstimatedCost  float64 `json:"estimated_cost"`
	CurrentBalance float64 `json:"current_balance"`
	Reason         string  `json:"reason,omitempty"`
}

// RunAcceptedResponse is returned on a 202 from POST .../run.
type RunAcceptedResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StepSummary is a step's status within a PipelineRun's full-state view.
type StepSummary struct {
	ID          string     `json:"id"`
	StepNumber  int        `json:"step_number"`
	StepName    string     `json:"step_name"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newStepSummary(s *domain.PipelineStepRun) StepSummary {
	return StepSummary{
		ID:          s.ID,
		StepNumber:  s.StepNumber,
		StepName:    s.StepName,
		Status:      string(s.Status),
		RetryCount:  s.RetryCount,
		MaxRetries:  s.MaxRetries,
		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
}

// PipelineRunResponse is the §6.4 "full state" view of a run: the run
// itself, its steps, and the total credits consumed so far.
type PipelineRunResponse struct {
	ID              string             `json:"id"`
	TaskID          string             `json:"task_id"`
	TenantID        string             `json:"tenant_id"`
	Status          string             `json:"status"`
	CurrentStep     int                `json:"current_step"`
	PauseReasons    []domain.PauseReason `json:"pause_reasons"`
	ErrorMessage    string             `json:"error_message,omitempty"`
	CreditsConsumed float64            `json:"credits_consumed"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	PausedAt        *time.Time         `json:"paused_at,omitempty"`
	PauseExpiresAt  *time.Time         `json:"pause_expires_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	Steps           []StepSummary      `json:"steps"`
}

func newPipelineRunResponse(r *domain.PipelineRun, steps []*domain.PipelineStepRun, creditsConsumed float64) PipelineRunResponse {
	out := PipelineRunResponse{
		ID:              r.ID,
		TaskID:          r.TaskID,
		TenantID:        r.TenantID,
		Status:          string(r.Status),
		CurrentStep:     r.CurrentStep,
		PauseReasons:    r.PauseReasons,
		ErrorMessage:    r.ErrorMessage,
		CreditsConsumed: creditsConsumed,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		StartedAt:       r.StartedAt,
		PausedAt:        r.PausedAt,
		PauseExpiresAt:  r.PauseExpiresAt,
		CompletedAt:     r.CompletedAt,
		Steps:           make([]StepSummary, 0, len(steps)),
	}
	for _, s := range steps {
		out.Steps = append(out.Steps, newStepSummary(s))
	}
	return out
}

// PipelineListResponse is the §6.4 paginated listing.
type PipelineListResponse struct {
	Items  []PipelineRunResponse `json:"items"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// AgentRunResponse is one agent invocation attached to a step.
type AgentRunResponse struct {
	ID                   string     `json:"id"`
	AgentType            string     `json:"agent_type"`
	Model                string     `json:"model"`
	PromptTokens         int        `json:"prompt_tokens"`
	CompletionTokens     int        `json:"completion_tokens"`
	EstimatedCostCredits float64    `json:"estimated_cost_credits"`
	ActualCostCredits    float64    `json:"actual_cost_credits"`
	CreatedAt            time.Time  `json:"created_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

func newAgentRunResponse(a *domain.AgentRun) AgentRunResponse {
	return AgentRunResponse{
		ID:                   a.ID,
		AgentType:            string(a.AgentType),
		Model:                a.Model,
		PromptTokens:         a.PromptTokens,
		CompletionTokens:     a.CompletionTokens,
		EstimatedCostCredits: a.EstimatedCostCredits,
		ActualCostCredits:    a.ActualCostCredits,
		CreatedAt:            a.CreatedAt,
		CompletedAt:          a.CompletedAt,
	}
}

// ArtifactResponse is the wire shape of an Artifact.
type ArtifactResponse struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	TaskID        string         `json:"task_id"`
	PipelineRunID string         `json:"pipeline_run_id"`
	StepRunID     string         `json:"step_run_id"`
	ArtifactType  string         `json:"artifact_type"`
	Status        string         `json:"status"`
	Version       int            `json:"version"`
	ContentText   string         `json:"content_text"`
	ContentURL    string         `json:"content_url,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExtraData     map[string]any `json:"extra_data,omitempty"`
	SupersededBy  string         `json:"superseded_by,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	RejectedAt    *time.Time     `json:"rejected_at,omitempty"`
}

func newArtifactResponse(a *domain.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:            a.ID,
		TenantID:      a.TenantID,
		TaskID:        a.TaskID,
		PipelineRunID: a.PipelineRunID,
		StepRunID:     a.StepRunID,
		ArtifactType:  string(a.ArtifactType),
		Status:        string(a.Status),
		Version:       a.Version,
		ContentText:   a.Content.Text,
		ContentURL:    a.Content.URL,
		Metadata:      a.Content.Metadata,
		ExtraData:     a.ExtraData,
		SupersededBy:  a.SupersededBy,
		CreatedAt:     a.CreatedAt,
		ApprovedAt:    a.ApprovedAt,
		RejectedAt:    a.RejectedAt,
	}
}

// StepDetailResponse is the §6.4 "step + agent-run + artifact" view.
type StepDetailResponse struct {
	Step      StepSummary        `json:"step"`
	AgentRuns []AgentRunResponse `json:"agent_runs"`
	Artifact  *ArtifactResponse  `json:"artifact,omitempty"`
}

// ApproveArtifactResponse reports whether approval also resumed the run.
type ApproveArtifactResponse struct {
	ArtifactID      string `json:"artifact_id"`
	Status          string `json:"status"`
	PipelineRunID   string `json:"pipeline_run_id"`
	PipelineResumed bool   `json:"pipeline_resumed"`
	TaskID          string `json:"task_id"`
}

// RejectArtifactResponse reports whether rejection forked a new run.
type RejectArtifactResponse struct {
	ArtifactID       string `json:"artifact_id"`
	Status           string `json:"status"`
	RegeneratedRunID string `json:"regenerated_run_id,omitempty"`
}

// CancelPipelineResponse is the exact §4.6 Concrete Scenario S4 shape.
type CancelPipelineResponse struct {
	PipelineRunID  string `json:"pipeline_run_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	StepsCompleted int    `json:"steps_completed"`
	StepsCancelled int    `json:"steps_cancelled"`
}

// ReplayPipelineResponse reports the forked run's identity.
type ReplayPipelineResponse struct {
	NewPipelineRunID string `json:"new_pipeline_run_id"`
	SourceRunID      string `json:"source_pipeline_run_id"`
	FromStepNumber   int    `json:"from_step_number"`
}

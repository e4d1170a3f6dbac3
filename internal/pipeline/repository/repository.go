// Package repository declares the transactional persistence contracts the
// pipeline engine depends on (C2). Implementations live in repopg; the
// engine and its use cases only ever see these interfaces.
package repository

import (
	"context"

	"pipelineengine/internal/pipeline/domain"
)

// ProjectRepository persists Project entities.
type ProjectRepository interface {
	Create(ctx context.Context, p *domain.Project) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) error
	List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Project, error)
}

// TaskRepository persists Task entities.
type TaskRepository interface {
	Create(ctx context.Context, t *domain.Task) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error)
	Update(ctx context.Context, t *domain.Task) error
	ListByProject(ctx context.Context, tenantID, projectID string, limit, offset int) ([]*domain.Task, error)
}

// PipelineRunRepository persists PipelineRun entities.
type PipelineRunRepository interface {
	Create(ctx context.Context, r *domain.PipelineRun) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.PipelineRun, error)
	// GetByIDUnscoped looks up a run by ID alone, without a tenant filter.
	// Only RetryWorker uses this: it discovers jobs by step_run_id, which
	// carries no tenant of its own, before it has a tenant to scope by.
	GetByIDUnscoped(ctx context.Context, id string) (*domain.PipelineRun, error)
	Update(ctx context.Context, r *domain.PipelineRun) error
	List(ctx context.Context, tenantID string, status domain.PipelineStatus, limit, offset int) ([]*domain.PipelineRun, error)
}

// StepRepository persists PipelineStepRun entities.
type StepRepository interface {
	Create(ctx context.Context, s *domain.PipelineStepRun) error
	GetByID(ctx context.Context, id string) (*domain.PipelineStepRun, error)
	Update(ctx context.Context, s *domain.PipelineStepRun) error
	ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.PipelineStepRun, error)
	GetByPipelineRunAndNumber(ctx context.Context, pipelineRunID string, stepNumber int) (*domain.PipelineStepRun, error)
}

// AgentRunRepository persists AgentRun entities.
type AgentRunRepository interface {
	Create(ctx context.Context, a *domain.AgentRun) error
	ListByStepRun(ctx context.Context, stepRunID string) ([]*domain.AgentRun, error)
	GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.AgentRun, error)
}

// ArtifactRepository persists Artifact entities. MaxVersion must be called
// inside the caller's transaction and, per §5, the implementation must
// serialize concurrent allocations for the same (task_id, artifact_type)
// group (a per-key lock or SELECT ... FOR UPDATE over the aggregate).
type ArtifactRepository interface {
	Create(ctx context.Context, a *domain.Artifact) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Artifact, error)
	Update(ctx context.Context, a *domain.Artifact) error
	MaxVersion(ctx context.Context, taskID string, artifactType domain.ArtifactType) (int, error)
	GetLatest(ctx context.Context, taskID string, artifactType domain.ArtifactType) (*domain.Artifact, error)
	ListByTask(ctx context.Context, tenantID, taskID string) ([]*domain.Artifact, error)
}

// RetryJobRepository persists RetryJob entities.
type RetryJobRepository interface {
	Create(ctx context.Context, j *domain.RetryJob) error
	GetByID(ctx context.Context, id string) (*domain.RetryJob, error)
	Update(ctx context.Context, j *domain.RetryJob) error
	ListDue(ctx context.Context, limit int) ([]*domain.RetryJob, error)
	// GetLatestByStepRun returns the most recently created RetryJob for a
	// step, or nil if none exists. The executor uses this on its
	// billing-unavailable path to find what attempt number to hand the
	// billing-unavailable handler across repeated escalations
	// for the same step, since PipelineStepRun itself tracks only the
	// agent-failure retry count.
	GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.RetryJob, error)
}

// DeadLetterRepository persists DeadLetterEvent entities.
type DeadLetterRepository interface {
	Create(ctx context.Context, e *domain.DeadLetterEvent) error
	ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.DeadLetterEvent, error)
}

// ExportJobRepository persists ExportJob entities.
type ExportJobRepository interface {
	Create(ctx context.Context, j *domain.ExportJob) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.ExportJob, error)
	Update(ctx context.Context, j *domain.ExportJob) error
}

// GitSyncJobRepository persists GitSyncJob entities.
type GitSyncJobRepository interface {
	Create(ctx context.Context, j *domain.GitSyncJob) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.GitSyncJob, error)
	Update(ctx context.Context, j *domain.GitSyncJob) error
}

// UnitOfWork bundles a transaction's repository handles. WithinTx runs fn
// inside a transaction: fn's error (or a panic) rolls the transaction back,
// a nil return commits. The returned handles MUST NOT be used outside fn,
// and a UnitOfWork must never be shared across concurrent goroutines (§5).
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

// Repositories is the bag of repository handles a UnitOfWork hands to a
// transactional callback.
type Repositories struct {
	Projects    ProjectRepository
	Tasks       TaskRepository
	Pipelines   PipelineRunRepository
	Steps       StepRepository
	AgentRuns   AgentRunRepository
	Artifacts   ArtifactRepository
	RetryJobs   RetryJobRepository
	DeadLetters DeadLetterRepository
	Exports     ExportJobRepository
	GitSyncs    GitSyncJobRepository
}

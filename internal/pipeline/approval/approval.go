// Package approval implements the three artifact-review use cases (§4.3,
// §4.4, §4.5): Approve, Reject and Archive. Grounded on
// internal/leads/orchestrator.go's transactional-use-case shape — one
// WithinTx call per operation, domain methods doing the state transition,
// the use case doing persistence, auditing and notification around it.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/notify"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/apperr"
	"pipelineengine/platform/logger"
)

// PipelineRunner is the subset of dispatch.Dispatcher the reject-regenerate
// path needs to schedule a freshly forked run. Kept as a consumer-defined
// interface so this package never imports dispatch directly in a way that
// would risk a cycle.
type PipelineRunner interface {
	EnqueueFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) error
}

// Service implements Approve, Reject and Archive.
type Service struct {
	uow       repository.UnitOfWork
	runner    PipelineRunner
	audit     audit.Sink
	publisher *notify.Publisher
	log       *logger.Logger
}

func New(uow repository.UnitOfWork, runner PipelineRunner, auditSink audit.Sink, publisher *notify.Publisher, log *logger.Logger) *Service {
	return &Service{uow: uow, runner: runner, audit: auditSink, publisher: publisher, log: log}
}

// ApproveResult reports whether approving the artifact also resumed its run.
type ApproveResult struct {
	ArtifactID      string
	Status          domain.ArtifactStatus
	PipelineRunID   string
	PipelineResumed bool
	TaskID          string
}

// Approve runs §4.3: transition the artifact draft->approved, then apply the
// resume linkage if this was the reason its run was paused.
func (s *Service) Approve(ctx context.Context, tenantID, artifactID string) (*ApproveResult, error) {
	var result *ApproveResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		a, err := repos.Artifacts.GetByID(ctx, tenantID, artifactID)
		if err != nil {
			return err
		}

		if err := a.Approve(); err != nil {
			return mapArtifactTransitionErr(err)
		}
		if err := repos.Artifacts.Update(ctx, a); err != nil {
			return err
		}

		run, err := repos.Pipelines.GetByID(ctx, tenantID, a.PipelineRunID)
		if err != nil {
			return err
		}

		resumed := false
		if run.Status == domain.PipelineStatusPaused {
			run.RemovePauseReason(domain.PauseReasonAwaitingUserApproval)
			if run.CanResume() {
				run.Resume()
				resumed = true
			}
			if err := repos.Pipelines.Update(ctx, run); err != nil {
				return err
			}
		}

		s.audit.LogEvent(ctx, audit.EventArtifactApproved, tenantID, "", "artifact", a.ID, map[string]any{
			"pipeline_run_id": run.ID,
		})
		if resumed {
			s.audit.LogEvent(ctx, audit.EventPipelineResumed, tenantID, "", "pipeline_run", run.ID, nil)
		}

		result = &ApproveResult{
			ArtifactID:      a.ID,
			Status:          a.Status,
			PipelineRunID:   run.ID,
			PipelineResumed: resumed,
			TaskID:          run.TaskID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(tenantID, "artifact:approved", map[string]any{
		"artifact_id":      result.ArtifactID,
		"status":           result.Status,
		"pipeline_run_id":  result.PipelineRunID,
		"pipeline_resumed": result.PipelineResumed,
		"task_id":          result.TaskID,
	})
	return result, nil
}

// RejectResult reports the rejected artifact and, if a regenerate run was
// forked, its new id.
type RejectResult struct {
	ArtifactID       string
	Status           domain.ArtifactStatus
	NewPipelineRunID string
}

// Reject runs §4.4: transition the artifact draft->rejected, optionally
// storing feedback, and optionally fork a fresh PipelineRun for the task
// when regenerate=true.
func (s *Service) Reject(ctx context.Context, tenantID, artifactID, feedback string, regenerate bool) (*RejectResult, error) {
	var (
		result     *RejectResult
		newRun     *domain.PipelineRun
		newRunTask string
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		a, err := repos.Artifacts.GetByID(ctx, tenantID, artifactID)
		if err != nil {
			return err
		}

		if err := a.Reject(feedback); err != nil {
			return mapArtifactTransitionErr(err)
		}
		if err := repos.Artifacts.Update(ctx, a); err != nil {
			return err
		}

		result = &RejectResult{ArtifactID: a.ID, Status: a.Status}

		metadata := map[string]any{"pipeline_run_id": a.PipelineRunID}
		if feedback != "" {
			metadata["feedback"] = feedback
		}

		if regenerate {
			r := domain.NewPipelineRun(uuid.New().String(), a.TaskID, tenantID)
			if err := repos.Pipelines.Create(ctx, r); err != nil {
				return err
			}
			for _, spec := range domain.Steps {
				step := domain.NewPipelineStepRun(uuid.New().String(), r.ID, spec)
				if err := repos.Steps.Create(ctx, step); err != nil {
					return err
				}
			}
			newRun = r
			newRunTask = a.TaskID
			result.NewPipelineRunID = r.ID
			metadata["new_pipeline_run_id"] = r.ID
		}

		s.audit.LogEvent(ctx, audit.EventArtifactRejected, tenantID, "", "artifact", a.ID, metadata)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if newRun != nil {
		if err := s.runner.EnqueueFromStep(ctx, tenantID, newRun.ID, newRunTask, 1); err != nil {
			s.log.Error("failed to dispatch regenerated pipeline run", "pipelineRunId", newRun.ID, "error", err)
		}
	}

	return result, nil
}

// Archive runs §4.5: supersede a non-latest artifact of its
// (task_id, artifact_type) group.
func (s *Service) Archive(ctx context.Context, tenantID, artifactID string) error {
	return s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		a, err := repos.Artifacts.GetByID(ctx, tenantID, artifactID)
		if err != nil {
			return err
		}

		latest, err := repos.Artifacts.GetLatest(ctx, a.TaskID, a.ArtifactType)
		if err != nil {
			return err
		}

		isLatest := latest != nil && latest.ID == a.ID
		if err := a.ArchiveAsSuperseded(isLatest); err != nil {
			return mapArtifactTransitionErr(err)
		}
		if err := repos.Artifacts.Update(ctx, a); err != nil {
			return err
		}

		s.audit.LogEvent(ctx, audit.EventArtifactArchived, tenantID, "", "artifact", a.ID, nil)
		return nil
	})
}

// mapArtifactTransitionErr wraps the domain's sentinel transition errors
// into the coded errors §7 requires at the use-case boundary.
func mapArtifactTransitionErr(err error) error {
	switch {
	case errors.Is(err, domain.ErrAlreadyApproved):
		return apperr.CodeConflictErr(apperr.CodeAlreadyApproved, "artifact is already approved")
	case errors.Is(err, domain.ErrCannotApproveRejected):
		return apperr.CodeConflictErr(apperr.CodeCannotApproveRej, "cannot approve a rejected artifact")
	case errors.Is(err, domain.ErrCannotApproveSuperseded):
		return apperr.CodeConflictErr(apperr.CodeCannotApproveSup, "cannot approve a superseded artifact")
	case errors.Is(err, domain.ErrAlreadyRejected):
		return apperr.CodeConflictErr(apperr.CodeAlreadyRejected, "artifact is already rejected")
	case errors.Is(err, domain.ErrCannotRejectApproved):
		return apperr.CodeConflictErr(apperr.CodeCannotRejectAppr, "cannot reject an approved artifact")
	case errors.Is(err, domain.ErrAlreadyArchived):
		return apperr.CodeConflictErr(apperr.CodeAlreadyArchived, "artifact is already archived")
	case errors.Is(err, domain.ErrCannotArchiveLatest):
		return apperr.CodeConflictErr(apperr.CodeCannotArchiveLast, "cannot archive the latest version")
	default:
		return fmt.Errorf("approval: unexpected artifact transition error: %w", err)
	}
}

// Package lifecycle implements the three PipelineRun-level use cases (§4.6,
// §4.7, §4.8): Cancel, Resume and Replay. Grounded on
// internal/leads/orchestrator.go's transactional use-case shape, the same
// pattern approval uses for artifact-level mutations.
package lifecycle

import (
	"context"

	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/apperr"
	"pipelineengine/platform/logger"
)

// PipelineRunner is the subset of dispatch.Dispatcher Replay needs to
// schedule the forked run it creates. Kept as a consumer-defined interface,
// the same way approval.PipelineRunner is, so this package never imports
// dispatch in a way that could cycle back.
type PipelineRunner interface {
	EnqueueFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) error
}

// Service implements Cancel, Resume and Replay.
type Service struct {
	uow    repository.UnitOfWork
	runner PipelineRunner
	audit  audit.Sink
	log    *logger.Logger
}

func New(uow repository.UnitOfWork, runner PipelineRunner, auditSink audit.Sink, log *logger.Logger) *Service {
	return &Service{uow: uow, runner: runner, audit: auditSink, log: log}
}

// CancelResult is the exact response shape §4.6's Concrete Scenario S4
// names: previous/new status plus how many steps fell on each side of the
// cancellation.
type CancelResult struct {
	PipelineRunID  string
	PreviousStatus domain.PipelineStatus
	NewStatus      domain.PipelineStatus
	StepsCompleted int
	StepsCancelled int
}

// Cancel runs §4.6: cancel a non-terminal run, transitioning every
// non-terminal step to cancelled while preserving completed/failed/
// invalidated steps and their artifacts untouched.
func (s *Service) Cancel(ctx context.Context, tenantID, userID, pipelineRunID, reason string) (*CancelResult, error) {
	var result *CancelResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		run, err := repos.Pipelines.GetByID(ctx, tenantID, pipelineRunID)
		if err != nil {
			return err
		}
		if run.TenantID != tenantID {
			return apperr.CodeForbiddenErr(apperr.CodeUnauthorized, "pipeline run does not belong to this tenant")
		}
		if run.IsTerminal() {
			return apperr.CodeConflictErr(apperr.CodeCannotCancelDone, "pipeline run is already in a terminal state")
		}

		steps, err := repos.Steps.ListByPipelineRun(ctx, pipelineRunID)
		if err != nil {
			return err
		}

		var completed, cancelled int
		for _, step := range steps {
			if step.Status.IsTerminal() {
				if step.Status == domain.StepStatusCompleted {
					completed++
				}
				continue
			}
			step.Cancel()
			if err := repos.Steps.Update(ctx, step); err != nil {
				return err
			}
			cancelled++
		}

		previousStatus := run.Cancel()
		if err := repos.Pipelines.Update(ctx, run); err != nil {
			return err
		}

		metadata := map[string]any{
			"previous_status": previousStatus,
			"steps_completed": completed,
			"steps_cancelled": cancelled,
		}
		if reason != "" {
			metadata["reason"] = reason
		}
		s.audit.LogEvent(ctx, audit.EventPipelineCancelled, tenantID, userID, "pipeline_run", run.ID, metadata)

		result = &CancelResult{
			PipelineRunID:  run.ID,
			PreviousStatus: previousStatus,
			NewStatus:      run.Status,
			StepsCompleted: completed,
			StepsCancelled: cancelled,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Resume runs §4.7: flip a fully-unpaused run back to running without
// itself driving any step — the next Execute/ExecuteStepRetry call (or the
// retry worker's next tick) is what actually makes progress.
func (s *Service) Resume(ctx context.Context, tenantID, pipelineRunID string) (*domain.PipelineRun, error) {
	var run *domain.PipelineRun

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		r, err := repos.Pipelines.GetByID(ctx, tenantID, pipelineRunID)
		if err != nil {
			return err
		}
		if r.Status != domain.PipelineStatusPaused {
			return apperr.CodeConflictErr(apperr.CodeNotPaused, "pipeline run is not paused")
		}
		if !r.CanResume() {
			return apperr.CodeConflictErr(apperr.CodeCannotResume, "pipeline run still has open pause reasons").
				WithDetails(map[string]any{"pause_reasons": r.PauseReasons})
		}

		r.Resume()
		if err := repos.Pipelines.Update(ctx, r); err != nil {
			return err
		}
		run = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ReplayResult is the §4.8 response shape.
type ReplayResult struct {
	NewPipelineRunID string
	Status           domain.PipelineStatus
	StartedFromStep  string
}

// Replay runs §4.8: fork a new PipelineRun for the same task as source,
// starting at fromStepID's step_number if it resolves within the source
// run, else at step 1.
func (s *Service) Replay(ctx context.Context, tenantID, sourcePipelineRunID, fromStepID string) (*ReplayResult, error) {
	var (
		result *ReplayResult
		newRun *domain.PipelineRun
	)

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		source, err := repos.Pipelines.GetByID(ctx, tenantID, sourcePipelineRunID)
		if err != nil {
			return err
		}

		startStepNumber := 1
		startedFromStep := "STEP_1"
		if fromStepID != "" {
			if step, err := repos.Steps.GetByID(ctx, fromStepID); err == nil && step.PipelineRunID == source.ID {
				startStepNumber = step.StepNumber
				startedFromStep = string(step.StepType)
			}
		}

		r := domain.NewPipelineRun(uuid.New().String(), source.TaskID, tenantID)
		r.CurrentStep = startStepNumber
		if err := repos.Pipelines.Create(ctx, r); err != nil {
			return err
		}
		for _, spec := range domain.Steps {
			step := domain.NewPipelineStepRun(uuid.New().String(), r.ID, spec)
			if err := repos.Steps.Create(ctx, step); err != nil {
				return err
			}
		}

		s.audit.LogEvent(ctx, audit.EventPipelineReplayed, tenantID, "", "pipeline_run", r.ID, map[string]any{
			"source_pipeline_run_id": source.ID,
			"started_from_step":      startedFromStep,
		})

		newRun = r
		result = &ReplayResult{NewPipelineRunID: r.ID, Status: r.Status, StartedFromStep: startedFromStep}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.runner.EnqueueFromStep(ctx, tenantID, newRun.ID, newRun.TaskID, newRun.CurrentStep); err != nil {
		s.log.Error("failed to dispatch replayed pipeline run", "pipelineRunId", newRun.ID, "error", err)
	}
	return result, nil
}

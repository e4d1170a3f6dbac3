// Package executor implements PipelineExecutor (§4.1): the orchestrator
// that drives a task's four fixed steps end to end, one AgentExecutor call
// and one BillingClient.Consume call per step, persisting an AgentRun and
// Artifact on success. Grounded on internal/leads/orchestrator.go's shape —
// a long-lived driver holding its collaborators by interface, logging
// through the shared structured logger, never letting an agent/network
// failure escape as a panic or an unhandled exception.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/agentexec"
	"pipelineengine/internal/pipeline/artifact"
	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/billing"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/notify"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/apperr"
	"pipelineengine/platform/logger"
)

// RetryScheduler is the subset of retry.Scheduler the executor needs. Kept
// as a consumer-defined interface so this package never imports retry —
// retry.Worker is the one that imports executor, not the reverse.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, repos *repository.Repositories, stepRunID string, retryCount int) error
}

// BillingUnavailableHandler is the subset of billingretry.Handler the
// executor needs, kept as a consumer-defined interface for the same reason.
type BillingUnavailableHandler interface {
	Handle(ctx context.Context, repos *repository.Repositories, stepRunID, tenantID string, amount float64, idempotencyKey string, retryAttempt int, errorMessage string) error
}

// Executor drives one PipelineRun's four-step sequence.
type Executor struct {
	uow                repository.UnitOfWork
	agents             agentexec.Executor
	billingClient      billing.Client
	artifacts          *artifact.Service
	retryScheduler     RetryScheduler
	billingUnavailable BillingUnavailableHandler
	audit              audit.Sink
	publisher          *notify.Publisher
	log                *logger.Logger
}

func New(
	uow repository.UnitOfWork,
	agents agentexec.Executor,
	billingClient billing.Client,
	artifacts *artifact.Service,
	retryScheduler RetryScheduler,
	billingUnavailable BillingUnavailableHandler,
	auditSink audit.Sink,
	publisher *notify.Publisher,
	log *logger.Logger,
) *Executor {
	return &Executor{
		uow:                uow,
		agents:             agents,
		billingClient:      billingClient,
		artifacts:          artifacts,
		retryScheduler:     retryScheduler,
		billingUnavailable: billingUnavailable,
		audit:              auditSink,
		publisher:          publisher,
		log:                log,
	}
}

// stepCostCredits is the per-agent-type share of the fixed MVP cost (§4.2),
// mirrored from agentexec/validate so billing.Consume's amount matches what
// Validator priced in advance. Kept local rather than shared to avoid a
// three-way import cycle between executor, validate and agentexec.
var stepCostCredits = map[domain.AgentType]float64{
	domain.AgentTypeArchitect: 30,
	domain.AgentTypePM:        30,
	domain.AgentTypeEngineer:  60,
	domain.AgentTypeQA:        30,
}

// Execute runs the full §4.1 sequence for a queued task: task setup
// (task.status=queued precondition), PipelineRun + four PipelineStepRun
// rows, then the per-step loop. It returns control to its caller — the
// background dispatcher — without blocking on any retry it schedules.
func (e *Executor) Execute(ctx context.Context, taskID, tenantID string) error {
	var run *domain.PipelineRun
	var task *domain.Task

	err := e.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		t, err := repos.Tasks.GetByID(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		if t.Status != domain.TaskStatusQueued {
			return apperr.CodeBadRequestErr(apperr.CodeInvalidStatus, fmt.Sprintf("task %s is not queued", taskID))
		}
		t.MarkRunning()
		if err := repos.Tasks.Update(ctx, t); err != nil {
			return err
		}

		r := domain.NewPipelineRun(uuid.New().String(), taskID, tenantID)
		if err := repos.Pipelines.Create(ctx, r); err != nil {
			return err
		}

		for _, spec := range domain.Steps {
			step := domain.NewPipelineStepRun(uuid.New().String(), r.ID, spec)
			if err := repos.Steps.Create(ctx, step); err != nil {
				return err
			}
		}

		task = t
		run = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("executor: setup: %w", err)
	}

	e.audit.LogEvent(ctx, audit.EventPipelineStarted, tenantID, "", "pipeline_run", run.ID, map[string]any{"task_id": taskID})

	e.runFromStep(ctx, tenantID, run.ID, taskID, 1)
	return nil
}

// runFromStep drives the step loop starting at fromStepNumber (inclusive)
// and, if every remaining step completes, finalizes the run and its task.
// Execute calls this at step 1; ExecuteStepRetry calls it at the step after
// the one that just finished retrying, so that a step recovered by a retry
// does not strand the steps after it.
func (e *Executor) runFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) {
	for _, spec := range domain.Steps {
		if spec.StepNumber < fromStepNumber {
			continue
		}
		outcome, err := e.runStep(ctx, tenantID, pipelineRunID, spec.StepNumber)
		if err != nil {
			e.log.WithContext(ctx).Error("executor: step execution failed", "pipeline_run_id", pipelineRunID, "step_number", spec.StepNumber, "error", err)
			return
		}
		switch outcome {
		case outcomeCancelled, outcomePaused, outcomeBillingUnavailable, outcomeFailedTerminal:
			return
		case outcomeCompleted:
			continue
		}
	}

	var completed bool
	e.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		r, err := repos.Pipelines.GetByID(ctx, tenantID, pipelineRunID)
		if err != nil {
			return err
		}
		if r.Status != domain.PipelineStatusRunning {
			return nil
		}
		r.Complete()
		if err := repos.Pipelines.Update(ctx, r); err != nil {
			return err
		}
		t, err := repos.Tasks.GetByID(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		t.MarkCompleted()
		if err := repos.Tasks.Update(ctx, t); err != nil {
			return err
		}
		completed = true
		return nil
	})

	if completed {
		e.audit.LogEvent(ctx, audit.EventPipelineCompleted, tenantID, "", "pipeline_run", pipelineRunID, nil)
		e.publisher.Publish(tenantID, "pipeline:completed", map[string]any{"pipeline_run_id": pipelineRunID, "task_id": taskID})
	}
}

type stepOutcome int

const (
	outcomeCompleted stepOutcome = iota
	outcomeCancelled
	outcomePaused
	outcomeBillingUnavailable
	outcomeFailedTerminal
)

// runStep executes one attempt of one step of one pipeline run. Execute
// calls it for the first attempt of each step; retry.Worker calls it again
// (via ExecuteStepRetry) for every subsequent attempt, relying on the
// step's own persisted status/retry_count to pick up where it left off.
func (e *Executor) runStep(ctx context.Context, tenantID, pipelineRunID string, stepNumber int) (stepOutcome, error) {
	var outcome stepOutcome

	txErr := e.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		run, err := repos.Pipelines.GetByID(ctx, tenantID, pipelineRunID)
		if err != nil {
			return err
		}
		step, err := repos.Steps.GetByPipelineRunAndNumber(ctx, pipelineRunID, stepNumber)
		if err != nil {
			return err
		}
		task, err := repos.Tasks.GetByID(ctx, tenantID, run.TaskID)
		if err != nil {
			return err
		}

		if run.Status != domain.PipelineStatusRunning {
			step.Cancel()
			outcome = outcomeCancelled
			return repos.Steps.Update(ctx, step)
		}

		priorSteps, err := repos.Steps.ListByPipelineRun(ctx, pipelineRunID)
		if err != nil {
			return err
		}
		step.FreezeInputSnapshot(buildInputSnapshot(task, priorSteps, stepNumber))
		step.Start()
		if err := repos.Steps.Update(ctx, step); err != nil {
			return err
		}

		spec := domain.Steps[stepNumber-1]
		result, agentErr := e.agents.Execute(ctx, spec.AgentType, step.InputSnapshot)
		if agentErr != nil {
			step.Fail(agentErr.Error())

			if step.IsRetryable() {
				retryCountForDelay := step.RetryCount
				if err := e.retryScheduler.ScheduleRetry(ctx, repos, step.ID, retryCountForDelay); err != nil {
					return err
				}
				step.IncrementRetry()
				outcome = outcomeCancelled // loop stops; retry worker will resume this step later
				return repos.Steps.Update(ctx, step)
			}

			dead := domain.NewDeadLetterEvent(uuid.New().String(), pipelineRunID, step.ID, step.RetryCount, step.StepType, step.StepNumber, step.MaxRetries)
			if err := repos.DeadLetters.Create(ctx, dead); err != nil {
				return err
			}
			run.Fail("step " + string(spec.StepType) + " exhausted retries")
			if err := repos.Pipelines.Update(ctx, run); err != nil {
				return err
			}
			task.MarkFailed()
			if err := repos.Tasks.Update(ctx, task); err != nil {
				return err
			}
			if err := repos.Steps.Update(ctx, step); err != nil {
				return err
			}
			outcome = outcomeFailedTerminal
			return nil
		}

		if _, err := e.artifacts.CreateArtifact(ctx, repos, artifact.CreateArtifactParams{
			TenantID:      tenantID,
			TaskID:        task.ID,
			PipelineRunID: pipelineRunID,
			StepRunID:     step.ID,
			ArtifactType:  spec.ArtifactType,
			ContentText:   outputText(result.Output),
			Metadata:      result.Output,
		}); err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}

		agentRun := &domain.AgentRun{ID: uuid.New().String(), StepRunID: step.ID, AgentType: spec.AgentType}
		agentRun.Complete(result.PromptTokens, result.CompletionTokens, result.EstimatedCostCredits, result.EstimatedCostCredits)
		if err := repos.AgentRuns.Create(ctx, agentRun); err != nil {
			return err
		}

		step.Complete(result.Output)
		if err := repos.Steps.Update(ctx, step); err != nil {
			return err
		}

		idempotencyKey := fmt.Sprintf("%s:%s", pipelineRunID, step.ID)
		if step.RetryCount > 0 {
			idempotencyKey = fmt.Sprintf("%s:retry_%d", idempotencyKey, step.RetryCount)
		}

		cost := stepCostCredits[spec.AgentType]
		_, consumeErr := e.billingClient.Consume(ctx, billing.CreditRequest{
			TenantID:       tenantID,
			Amount:         fmt.Sprintf("%.2f", cost),
			IdempotencyKey: idempotencyKey,
			ReferenceType:  "pipeline_step",
			ReferenceID:    step.ID,
		})
		if consumeErr != nil {
			if errors.Is(consumeErr, billing.ErrInsufficientCredits) {
				run.AddPauseReason(domain.PauseReasonInsufficientCredit)
				sevenDays := run.PausedAt.AddDate(0, 0, 7)
				run.PauseExpiresAt = &sevenDays
				if err := repos.Pipelines.Update(ctx, run); err != nil {
					return err
				}
				outcome = outcomePaused
				return nil
			}
			if errors.Is(consumeErr, billing.ErrServiceUnavailable) {
				priorAttempt := 0
				if prior, lookupErr := repos.RetryJobs.GetLatestByStepRun(ctx, step.ID); lookupErr == nil && prior != nil {
					priorAttempt = prior.RetryAttempt
				}
				if err := e.billingUnavailable.Handle(ctx, repos, step.ID, tenantID, cost, idempotencyKey, priorAttempt, consumeErr.Error()); err != nil {
					return err
				}
				outcome = outcomeBillingUnavailable
				return nil
			}
			return consumeErr
		}

		if stepNumber < len(domain.Steps) {
			run.CurrentStep = stepNumber + 1
			if err := repos.Pipelines.Update(ctx, run); err != nil {
				return err
			}
		}
		outcome = outcomeCompleted
		return nil
	})

	return outcome, txErr
}

// buildInputSnapshot merges the task's input_spec with the accumulated
// output of every completed step before stepNumber, in step_number order.
func buildInputSnapshot(task *domain.Task, steps []*domain.PipelineStepRun, stepNumber int) map[string]any {
	merged := map[string]any{}
	for k, v := range task.InputSpec {
		merged[k] = v
	}
	ordered := make([]*domain.PipelineStepRun, len(steps))
	copy(ordered, steps)
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].StepNumber < ordered[i].StepNumber {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	for _, s := range ordered {
		if s.StepNumber >= stepNumber || s.Status != domain.StepStatusCompleted {
			continue
		}
		for k, v := range s.Output {
			merged[k] = v
		}
	}
	return merged
}

func outputText(output map[string]any) string {
	if text, ok := output["text"].(string); ok {
		return text
	}
	return fmt.Sprintf("%v", output)
}

// ExecuteStepRetry re-runs one step attempt on behalf of retry.Worker,
// using the step's already-frozen input_snapshot rather than re-deriving
// it (retries MUST reuse the original snapshot, §4.1 step 2). On success
// it continues driving the remaining steps of the run, the same way
// Execute drives the first attempt of each — a step recovered by a retry
// must not strand the run at that step forever.
func (e *Executor) ExecuteStepRetry(ctx context.Context, tenantID, pipelineRunID string, stepNumber int) error {
	outcome, err := e.runStep(ctx, tenantID, pipelineRunID, stepNumber)
	if err != nil {
		return err
	}
	if outcome != outcomeCompleted {
		return nil
	}

	run, err := e.lookupRun(ctx, tenantID, pipelineRunID)
	if err != nil {
		return err
	}
	e.runFromStep(ctx, tenantID, pipelineRunID, run.TaskID, stepNumber+1)
	return nil
}

// RunFromStep exposes runFromStep to dispatch.Worker. approval's
// reject-regenerate path and lifecycle's Replay fork a new PipelineRun and
// its step rows directly, rather than going through Execute's task-queued
// precondition, and hand it to Dispatcher.EnqueueFromStep; the worker then
// calls this from its own queued task, so the HTTP response is not held open
// for the full run.
func (e *Executor) RunFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) {
	e.runFromStep(ctx, tenantID, pipelineRunID, taskID, fromStepNumber)
}

func (e *Executor) lookupRun(ctx context.Context, tenantID, pipelineRunID string) (*domain.PipelineRun, error) {
	var run *domain.PipelineRun
	err := e.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		r, err := repos.Pipelines.GetByID(ctx, tenantID, pipelineRunID)
		if err != nil {
			return err
		}
		run = r
		return nil
	})
	return run, err
}

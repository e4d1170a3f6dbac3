package retry

import (
	"context"
	"time"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/logger"
)

// StepReExecutor is the subset of executor.Executor the worker needs, kept
// as a consumer-defined interface so this package imports executor
// one-directionally and executor never imports retry.
type StepReExecutor interface {
	ExecuteStepRetry(ctx context.Context, tenantID, pipelineRunID string, stepNumber int) error
}

// Worker is RetryWorker (§4.11): a long-lived poller that picks up due
// RetryJob rows and re-drives the step they reference. Grounded on the
// teacher's internal/scheduler asynq consumer loop shape — a ticker plus a
// per-tick batch fetch, logging and continuing past per-item failures
// instead of crashing the loop.
type Worker struct {
	uow      repository.UnitOfWork
	executor StepReExecutor
	interval time.Duration
	batch    int
	log      *logger.Logger
}

// Option configures a Worker at construction time.
type Option func(*Worker)

// WithInterval overrides the default 5s poll interval.
func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

func NewWorker(uow repository.UnitOfWork, executor StepReExecutor, log *logger.Logger, opts ...Option) *Worker {
	w := &Worker{
		uow:      uow,
		executor: executor,
		interval: 5 * time.Second,
		batch:    20,
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks, polling until ctx is cancelled. A single tick's error never
// stops the loop — each is logged and the worker waits for the next tick.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.log.WithContext(ctx).Error("retry worker: tick failed", "error", err)
			}
		}
	}
}

// tick fetches due jobs and processes each in its own transaction — one
// job's failure must not roll back another's progress.
func (w *Worker) tick(ctx context.Context) error {
	var due []*domain.RetryJob
	err := w.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		jobs, err := repos.RetryJobs.ListDue(ctx, w.batch)
		if err != nil {
			return err
		}
		due = jobs
		return nil
	})
	if err != nil {
		return err
	}

	for _, job := range due {
		w.processJob(ctx, job)
	}
	return nil
}

// processJob drives one due RetryJob: look up the step and its run, bail
// out (marking the job failed) if either is gone or the run is no longer
// running, otherwise hand the step back to the executor for a full
// re-attempt using its frozen input_snapshot.
func (w *Worker) processJob(ctx context.Context, job *domain.RetryJob) {
	var (
		tenantID      string
		pipelineRunID string
		stepNumber    int
		runnable      bool
	)

	err := w.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		job.MarkProcessing()
		if err := repos.RetryJobs.Update(ctx, job); err != nil {
			return err
		}

		step, err := repos.Steps.GetByID(ctx, job.StepRunID)
		if err != nil {
			job.MarkFailed()
			return repos.RetryJobs.Update(ctx, job)
		}

		run, err := repos.Pipelines.GetByIDUnscoped(ctx, step.PipelineRunID)
		if err != nil {
			job.MarkFailed()
			return repos.RetryJobs.Update(ctx, job)
		}

		if run.Status != domain.PipelineStatusRunning {
			step.Cancel()
			if err := repos.Steps.Update(ctx, step); err != nil {
				return err
			}
			job.MarkFailed()
			return repos.RetryJobs.Update(ctx, job)
		}

		tenantID = run.TenantID
		pipelineRunID = run.ID
		stepNumber = step.StepNumber
		runnable = true
		return nil
	})
	if err != nil {
		w.log.WithContext(ctx).Error("retry worker: job setup failed", "retry_job_id", job.ID, "error", err)
		return
	}
	if !runnable {
		return
	}

	if err := w.executor.ExecuteStepRetry(ctx, tenantID, pipelineRunID, stepNumber); err != nil {
		w.log.WithContext(ctx).Error("retry worker: step re-execution failed", "retry_job_id", job.ID, "pipeline_run_id", pipelineRunID, "step_number", stepNumber, "error", err)
		return
	}

	w.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		j, err := repos.RetryJobs.GetByID(ctx, job.ID)
		if err != nil {
			return err
		}
		j.MarkCompleted()
		return repos.RetryJobs.Update(ctx, j)
	})
}

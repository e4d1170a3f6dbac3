package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/logger"
)

type fakeUOW struct {
	repos *repository.Repositories
}

func (u *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	return fn(ctx, u.repos)
}

type fakeStepRepo struct {
	steps map[string]*domain.PipelineStepRun
}

func (f *fakeStepRepo) Create(ctx context.Context, s *domain.PipelineStepRun) error {
	f.steps[s.ID] = s
	return nil
}
func (f *fakeStepRepo) GetByID(ctx context.Context, id string) (*domain.PipelineStepRun, error) {
	s, ok := f.steps[id]
	if !ok {
		return nil, errors.New("step not found")
	}
	return s, nil
}
func (f *fakeStepRepo) Update(ctx context.Context, s *domain.PipelineStepRun) error {
	f.steps[s.ID] = s
	return nil
}
func (f *fakeStepRepo) ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.PipelineStepRun, error) {
	return nil, nil
}
func (f *fakeStepRepo) GetByPipelineRunAndNumber(ctx context.Context, pipelineRunID string, stepNumber int) (*domain.PipelineStepRun, error) {
	return nil, errors.New("not implemented")
}

type fakePipelineRepo struct {
	runs map[string]*domain.PipelineRun
}

func (f *fakePipelineRepo) Create(ctx context.Context, r *domain.PipelineRun) error { return nil }
func (f *fakePipelineRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.PipelineRun, error) {
	return nil, errors.New("not implemented")
}
func (f *fakePipelineRepo) GetByIDUnscoped(ctx context.Context, id string) (*domain.PipelineRun, error) {
	r, ok := f.runs[id]
	if !ok {
		return nil, errors.New("pipeline run not found")
	}
	return r, nil
}
func (f *fakePipelineRepo) Update(ctx context.Context, r *domain.PipelineRun) error {
	f.runs[r.ID] = r
	return nil
}
func (f *fakePipelineRepo) List(ctx context.Context, tenantID string, status domain.PipelineStatus, limit, offset int) ([]*domain.PipelineRun, error) {
	return nil, nil
}

type fakeExecutor struct {
	calls []string
	err   error
}

func (f *fakeExecutor) ExecuteStepRetry(ctx context.Context, tenantID, pipelineRunID string, stepNumber int) error {
	f.calls = append(f.calls, pipelineRunID)
	return f.err
}

func TestWorkerProcessesDueJobAndCompletesIt(t *testing.T) {
	step := &domain.PipelineStepRun{ID: "step-1", PipelineRunID: "run-1", StepNumber: 2}
	run := &domain.PipelineRun{ID: "run-1", TenantID: "tenant-1", Status: domain.PipelineStatusRunning}
	job := &domain.RetryJob{ID: "job-1", StepRunID: "step-1", Status: domain.RetryStatusPending, ScheduledAt: time.Now().UTC().Add(-time.Second)}

	jobRepo := &fakeRetryJobRepo{jobs: []*domain.RetryJob{job}}
	stepRepo := &fakeStepRepo{steps: map[string]*domain.PipelineStepRun{"step-1": step}}
	pipelineRepo := &fakePipelineRepo{runs: map[string]*domain.PipelineRun{"run-1": run}}
	repos := &repository.Repositories{RetryJobs: jobRepo, Steps: stepRepo, Pipelines: pipelineRepo}
	uow := &fakeUOW{repos: repos}

	exec := &fakeExecutor{}
	w := NewWorker(uow, exec, logger.New("test"))

	w.processJob(context.Background(), job)

	if len(exec.calls) != 1 || exec.calls[0] != "run-1" {
		t.Fatalf("expected executor to be called once for run-1, got %v", exec.calls)
	}
	if job.Status != domain.RetryStatusCompleted {
		t.Fatalf("job status = %v, want completed", job.Status)
	}
}

func TestWorkerFailsJobWhenPipelineNoLongerRunning(t *testing.T) {
	step := &domain.PipelineStepRun{ID: "step-1", PipelineRunID: "run-1", StepNumber: 2, Status: domain.StepStatusFailed}
	run := &domain.PipelineRun{ID: "run-1", TenantID: "tenant-1", Status: domain.PipelineStatusCancelled}
	job := &domain.RetryJob{ID: "job-1", StepRunID: "step-1", Status: domain.RetryStatusPending, ScheduledAt: time.Now().UTC().Add(-time.Second)}

	jobRepo := &fakeRetryJobRepo{jobs: []*domain.RetryJob{job}}
	stepRepo := &fakeStepRepo{steps: map[string]*domain.PipelineStepRun{"step-1": step}}
	pipelineRepo := &fakePipelineRepo{runs: map[string]*domain.PipelineRun{"run-1": run}}
	repos := &repository.Repositories{RetryJobs: jobRepo, Steps: stepRepo, Pipelines: pipelineRepo}
	uow := &fakeUOW{repos: repos}

	exec := &fakeExecutor{}
	w := NewWorker(uow, exec, logger.New("test"))

	w.processJob(context.Background(), job)

	if len(exec.calls) != 0 {
		t.Fatalf("expected executor not to be called for a cancelled run, got %v", exec.calls)
	}
	if job.Status != domain.RetryStatusFailed {
		t.Fatalf("job status = %v, want failed", job.Status)
	}
	if step.Status != domain.StepStatusCancelled {
		t.Fatalf("step status = %v, want cancelled", step.Status)
	}
}

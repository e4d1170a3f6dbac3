package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pipelineengine/internal/pipeline/audit"
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

type fakePipelineRepo struct {
	runs map[string]*domain.PipelineRun
}

func newFakePipelineRepo() *fakePipelineRepo {
	return &fakePipelineRepo{runs: map[string]*domain.PipelineRun{}}
}
func (f *fakePipelineRepo) Create(ctx context.Context, r *domain.PipelineRun) error {
	f.runs[r.ID] = r
	return nil
}
func (f *fakePipelineRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.PipelineRun, error) {
	r, ok := f.runs[id]
	if !ok || r.TenantID != tenantID {
		return nil, errors.New("pipeline run not found")
	}
	return r, nil
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

type fakeStepRepo struct {
	steps map[string]*domain.PipelineStepRun
}

func newFakeStepRepo() *fakeStepRepo { return &fakeStepRepo{steps: map[string]*domain.PipelineStepRun{}} }
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
	var out []*domain.PipelineStepRun
	for _, s := range f.steps {
		if s.PipelineRunID == pipelineRunID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeStepRepo) GetByPipelineRunAndNumber(ctx context.Context, pipelineRunID string, stepNumber int) (*domain.PipelineStepRun, error) {
	for _, s := range f.steps {
		if s.PipelineRunID == pipelineRunID && s.StepNumber == stepNumber {
			return s, nil
		}
	}
	return nil, errors.New("step not found")
}

type fakeAuditSink struct {
	mu     sync.Mutex
	events []audit.EventType
	meta   []map[string]any
}

func (f *fakeAuditSink) LogEvent(ctx context.Context, eventType audit.EventType, tenantID, userID, resourceType, resourceID string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	f.meta = append(f.meta, metadata)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
}

func newFakeRunner() *fakeRunner { return &fakeRunner{} }

func (f *fakeRunner) EnqueueFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) error {
	f.mu.Lock()
	f.calls = append(f.calls, pipelineRunID)
	f.mu.Unlock()
	return nil
}

func newTestService() (*Service, *fakePipelineRepo, *fakeStepRepo, *fakeAuditSink, *fakeRunner) {
	pipelines := newFakePipelineRepo()
	steps := newFakeStepRepo()
	uow := &fakeUOW{repos: &repository.Repositories{Pipelines: pipelines, Steps: steps}}
	sink := &fakeAuditSink{}
	runner := newFakeRunner()
	return New(uow, runner, sink, logger.New("development")), pipelines, steps, sink, runner
}

func putStep(steps *fakeStepRepo, pipelineRunID string, spec domain.StepSpec, status domain.StepStatus) *domain.PipelineStepRun {
	s := domain.NewPipelineStepRun(pipelineRunID+"-"+string(spec.StepType), pipelineRunID, spec)
	s.Status = status
	steps.steps[s.ID] = s
	return s
}

func TestCancelTransitionsOnlyNonTerminalSteps(t *testing.T) {
	svc, pipelines, steps, sink, _ := newTestService()
	run := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	pipelines.runs[run.ID] = run

	putStep(steps, run.ID, domain.Steps[0], domain.StepStatusCompleted)
	putStep(steps, run.ID, domain.Steps[1], domain.StepStatusRunning)
	putStep(steps, run.ID, domain.Steps[2], domain.StepStatusPending)
	putStep(steps, run.ID, domain.Steps[3], domain.StepStatusFailed)

	result, err := svc.Cancel(context.Background(), "tenant-1", "user-1", run.ID, "no longer needed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PreviousStatus != domain.PipelineStatusRunning {
		t.Fatalf("previous_status = %v, want running", result.PreviousStatus)
	}
	if result.NewStatus != domain.PipelineStatusCancelled {
		t.Fatalf("new_status = %v, want cancelled", result.NewStatus)
	}
	if result.StepsCompleted != 1 {
		t.Fatalf("steps_completed = %d, want 1", result.StepsCompleted)
	}
	if result.StepsCancelled != 2 {
		t.Fatalf("steps_cancelled = %d, want 2 (running + pending)", result.StepsCancelled)
	}
	if len(sink.events) != 1 || sink.events[0] != audit.EventPipelineCancelled {
		t.Fatalf("expected pipeline_cancelled event, got %v", sink.events)
	}
}

func TestCancelTerminalRunIsRejected(t *testing.T) {
	svc, pipelines, _, _, _ := newTestService()
	run := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	run.Complete()
	pipelines.runs[run.ID] = run

	if _, err := svc.Cancel(context.Background(), "tenant-1", "user-1", run.ID, ""); err == nil {
		t.Fatalf("expected CANNOT_CANCEL_COMPLETED error")
	}
}

func TestResumeRequiresEmptyPauseReasons(t *testing.T) {
	svc, pipelines, _, _, _ := newTestService()
	run := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	run.AddPauseReason(domain.PauseReasonInsufficientCredit)
	pipelines.runs[run.ID] = run

	if _, err := svc.Resume(context.Background(), "tenant-1", run.ID); err == nil {
		t.Fatalf("expected CANNOT_RESUME while a pause reason remains")
	}

	run.RemovePauseReason(domain.PauseReasonInsufficientCredit)
	resumed, err := svc.Resume(context.Background(), "tenant-1", run.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resumed.Status != domain.PipelineStatusRunning {
		t.Fatalf("status = %v, want running", resumed.Status)
	}
}

func TestResumeRejectsNonPausedRun(t *testing.T) {
	svc, pipelines, _, _, _ := newTestService()
	run := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	pipelines.runs[run.ID] = run

	if _, err := svc.Resume(context.Background(), "tenant-1", run.ID); err == nil {
		t.Fatalf("expected NOT_PAUSED error for an already-running run")
	}
}

func TestReplayFromKnownStepUsesItsStepNumber(t *testing.T) {
	svc, pipelines, steps, sink, runner := newTestService()
	source := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	pipelines.runs[source.ID] = source
	step3 := putStep(steps, source.ID, domain.Steps[2], domain.StepStatusCompleted)

	result, err := svc.Replay(context.Background(), "tenant-1", source.ID, step3.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StartedFromStep != string(domain.StepTypeCodeSkeleton) {
		t.Fatalf("started_from_step = %q, want %q", result.StartedFromStep, domain.StepTypeCodeSkeleton)
	}
	newRun := pipelines.runs[result.NewPipelineRunID]
	if newRun.CurrentStep != 3 {
		t.Fatalf("current_step = %d, want 3", newRun.CurrentStep)
	}
	if len(sink.events) != 1 || sink.events[0] != audit.EventPipelineReplayed {
		t.Fatalf("expected pipeline_replayed event, got %v", sink.events)
	}

	if len(runner.calls) != 1 || runner.calls[0] != result.NewPipelineRunID {
		t.Fatalf("runner invoked with %v, want %s", runner.calls, result.NewPipelineRunID)
	}
}

func TestReplayWithUnknownStepFallsBackToStepOne(t *testing.T) {
	svc, pipelines, _, _, runner := newTestService()
	source := domain.NewPipelineRun("run-1", "task-1", "tenant-1")
	pipelines.runs[source.ID] = source

	result, err := svc.Replay(context.Background(), "tenant-1", source.ID, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StartedFromStep != "STEP_1" {
		t.Fatalf("started_from_step = %q, want STEP_1", result.StartedFromStep)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("expected runner to be invoked once, got %d", len(runner.calls))
	}
}

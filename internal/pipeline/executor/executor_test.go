package executor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pipelineengine/internal/adapters/storage"
	"pipelineengine/internal/pipeline/agentexec"
	"pipelineengine/internal/pipeline/artifact"
	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/billing"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/notify"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/logger"
)

// fakeUOW runs callbacks directly against shared in-memory fakes — no real
// isolation, which is fine for single-goroutine tests exercising the
// executor's control flow rather than its concurrency guarantees.
type fakeUOW struct {
	repos *repository.Repositories
}

func (u *fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *repository.Repositories) error) error {
	return fn(ctx, u.repos)
}

type fakeTaskRepo struct {
	tasks map[string]*domain.Task
}

func newFakeTaskRepo() *fakeTaskRepo { return &fakeTaskRepo{tasks: map[string]*domain.Task{}} }
func (f *fakeTaskRepo) put(t *domain.Task)                              { f.tasks[t.TenantID+"|"+t.ID] = t }
func (f *fakeTaskRepo) Create(ctx context.Context, t *domain.Task) error { f.put(t); return nil }
func (f *fakeTaskRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Task, error) {
	t, ok := f.tasks[tenantID+"|"+id]
	if !ok {
		return nil, errors.New("task not found")
	}
	return t, nil
}
func (f *fakeTaskRepo) Update(ctx context.Context, t *domain.Task) error { f.put(t); return nil }
func (f *fakeTaskRepo) ListByProject(ctx context.Context, tenantID, projectID string, limit, offset int) ([]*domain.Task, error) {
	return nil, nil
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

type fakeAgentRunRepo struct {
	runs []*domain.AgentRun
}

func (f *fakeAgentRunRepo) Create(ctx context.Context, a *domain.AgentRun) error {
	f.runs = append(f.runs, a)
	return nil
}
func (f *fakeAgentRunRepo) ListByStepRun(ctx context.Context, stepRunID string) ([]*domain.AgentRun, error) {
	return nil, nil
}
func (f *fakeAgentRunRepo) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.AgentRun, error) {
	return nil, errors.New("not found")
}

type fakeArtifactRepoExec struct {
	versions  map[string]int
	artifacts map[string]*domain.Artifact
}

func newFakeArtifactRepoExec() *fakeArtifactRepoExec {
	return &fakeArtifactRepoExec{versions: map[string]int{}, artifacts: map[string]*domain.Artifact{}}
}
func (f *fakeArtifactRepoExec) Create(ctx context.Context, a *domain.Artifact) error {
	f.artifacts[a.ID] = a
	f.versions[a.TaskID+"|"+string(a.ArtifactType)] = a.Version
	return nil
}
func (f *fakeArtifactRepoExec) GetByID(ctx context.Context, tenantID, id string) (*domain.Artifact, error) {
	a, ok := f.artifacts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}
func (f *fakeArtifactRepoExec) Update(ctx context.Context, a *domain.Artifact) error {
	f.artifacts[a.ID] = a
	return nil
}
func (f *fakeArtifactRepoExec) MaxVersion(ctx context.Context, taskID string, artifactType domain.ArtifactType) (int, error) {
	return f.versions[taskID+"|"+string(artifactType)], nil
}
func (f *fakeArtifactRepoExec) GetLatest(ctx context.Context, taskID string, artifactType domain.ArtifactType) (*domain.Artifact, error) {
	return nil, errors.New("not found")
}
func (f *fakeArtifactRepoExec) ListByTask(ctx context.Context, tenantID, taskID string) ([]*domain.Artifact, error) {
	return nil, nil
}

type fakeRetryJobRepo struct {
	jobs []*domain.RetryJob
}

func (f *fakeRetryJobRepo) Create(ctx context.Context, j *domain.RetryJob) error {
	f.jobs = append(f.jobs, j)
	return nil
}
func (f *fakeRetryJobRepo) GetByID(ctx context.Context, id string) (*domain.RetryJob, error) {
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, errors.New("not found")
}
func (f *fakeRetryJobRepo) Update(ctx context.Context, j *domain.RetryJob) error { return nil }
func (f *fakeRetryJobRepo) ListDue(ctx context.Context, limit int) ([]*domain.RetryJob, error) {
	return nil, nil
}
func (f *fakeRetryJobRepo) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.RetryJob, error) {
	return nil, nil
}

type fakeDeadLetterRepo struct {
	events []*domain.DeadLetterEvent
}

func (f *fakeDeadLetterRepo) Create(ctx context.Context, e *domain.DeadLetterEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeDeadLetterRepo) ListByPipelineRun(ctx context.Context, pipelineRunID string) ([]*domain.DeadLetterEvent, error) {
	return nil, nil
}

type fakeStorage struct{}

func (f *fakeStorage) GenerateUploadURL(ctx context.Context, bucket, folder, fileName, contentType string, sizeBytes int64) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://storage.local/" + bucket + "/" + folder + "/" + fileName}, nil
}
func (f *fakeStorage) GenerateDownloadURL(ctx context.Context, bucket, fileKey string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://storage.local/" + bucket + "/" + fileKey}, nil
}
func (f *fakeStorage) DownloadFile(ctx context.Context, bucket, fileKey string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}
func (f *fakeStorage) DeleteObject(ctx context.Context, bucket, fileKey string) error { return nil }
func (f *fakeStorage) UploadFile(ctx context.Context, bucket, folder, fileName, contentType string, reader io.Reader, size int64) (string, error) {
	return bucket + "/" + folder + "/" + fileName, nil
}
func (f *fakeStorage) EnsureBucketExists(ctx context.Context, bucket string) error { return nil }
func (f *fakeStorage) ValidateContentType(contentType string) error               { return nil }
func (f *fakeStorage) ValidateFileSize(sizeBytes int64) error                      { return nil }
func (f *fakeStorage) GetMaxFileSize() int64                                       { return 0 }

type fakeMinIOConfig struct{}

func (fakeMinIOConfig) GetMinIOEndpoint() string      { return "localhost:9000" }
func (fakeMinIOConfig) GetMinIOAccessKey() string     { return "test" }
func (fakeMinIOConfig) GetMinIOSecretKey() string     { return "test" }
func (fakeMinIOConfig) GetMinIOUseSSL() bool          { return false }
func (fakeMinIOConfig) GetMinIOMaxFileSize() int64    { return 0 }
func (fakeMinIOConfig) GetMinioBucketArtifacts() string { return "artifacts" }
func (fakeMinIOConfig) IsMinIOEnabled() bool          { return true }

type fakeAuditSink struct {
	events []audit.EventType
}

func (f *fakeAuditSink) LogEvent(ctx context.Context, eventType audit.EventType, tenantID, userID, resourceType, resourceID string, metadata map[string]any) {
	f.events = append(f.events, eventType)
}

type fakeAgents struct {
	fail func(agentType domain.AgentType) error
}

func (f *fakeAgents) Execute(ctx context.Context, agentType domain.AgentType, inputs map[string]any) (*agentexec.Result, error) {
	if f.fail != nil {
		if err := f.fail(agentType); err != nil {
			return nil, err
		}
	}
	return &agentexec.Result{
		Output:               map[string]any{"text": string(agentType) + " output"},
		PromptTokens:         10,
		CompletionTokens:     5,
		EstimatedCostCredits: 1,
	}, nil
}

type fakeBilling struct {
	fail func() error
}

func (f *fakeBilling) Consume(ctx context.Context, req billing.CreditRequest) (*billing.Transaction, error) {
	if f.fail != nil {
		if err := f.fail(); err != nil {
			return nil, err
		}
	}
	return &billing.Transaction{IdempotencyKey: req.IdempotencyKey}, nil
}
func (f *fakeBilling) Refund(ctx context.Context, req billing.CreditRequest) (*billing.Transaction, error) {
	return nil, nil
}
func (f *fakeBilling) Balance(ctx context.Context, tenantID string) (*billing.Balance, error) {
	return &billing.Balance{TenantID: tenantID, Balance: 1000}, nil
}

type fakeRetryScheduler struct {
	scheduled []string
}

func (f *fakeRetryScheduler) ScheduleRetry(ctx context.Context, repos *repository.Repositories, stepRunID string, retryCount int) error {
	f.scheduled = append(f.scheduled, stepRunID)
	return nil
}

type fakeBillingUnavailableHandler struct {
	calls int
}

func (f *fakeBillingUnavailableHandler) Handle(ctx context.Context, repos *repository.Repositories, stepRunID, tenantID string, amount float64, idempotencyKey string, retryAttempt int, errorMessage string) error {
	f.calls++
	return nil
}

func newTestExecutor(t *testing.T, agents agentexec.Executor, billingClient billing.Client) (*Executor, *repository.Repositories, *fakeRetryScheduler) {
	t.Helper()
	repos := &repository.Repositories{
		Tasks:       newFakeTaskRepo(),
		Pipelines:   newFakePipelineRepo(),
		Steps:       newFakeStepRepo(),
		AgentRuns:   &fakeAgentRunRepo{},
		Artifacts:   newFakeArtifactRepoExec(),
		RetryJobs:   &fakeRetryJobRepo{},
		DeadLetters: &fakeDeadLetterRepo{},
	}
	uow := &fakeUOW{repos: repos}
	artifactSvc := artifact.NewService(&fakeStorage{}, fakeMinIOConfig{})
	retrySched := &fakeRetryScheduler{}
	billingHandler := &fakeBillingUnavailableHandler{}
	auditSink := &fakeAuditSink{}
	publisher := notify.New()
	log := logger.New("test")

	exec := New(uow, agents, billingClient, artifactSvc, retrySched, billingHandler, auditSink, publisher, log)
	return exec, repos, retrySched
}

func TestExecuteHappyPathCompletesAllFourSteps(t *testing.T) {
	exec, repos, _ := newTestExecutor(t, &fakeAgents{}, &fakeBilling{})

	task := &domain.Task{ID: "task-1", TenantID: "tenant-1", Status: domain.TaskStatusQueued, InputSpec: domain.InputSpec{"goal": "build a thing"}}
	repos.Tasks.Create(context.Background(), task)

	if err := exec.Execute(context.Background(), "task-1", "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updatedTask, _ := repos.Tasks.GetByID(context.Background(), "tenant-1", "task-1")
	if updatedTask.Status != domain.TaskStatusCompleted {
		t.Fatalf("task status = %v, want completed", updatedTask.Status)
	}

	runs, _ := repos.Pipelines.(*fakePipelineRepo)
	if len(runs.runs) != 1 {
		t.Fatalf("expected exactly one pipeline run, got %d", len(runs.runs))
	}
	for _, r := range runs.runs {
		if r.Status != domain.PipelineStatusCompleted {
			t.Fatalf("pipeline status = %v, want completed", r.Status)
		}
		if r.CurrentStep != 4 {
			t.Fatalf("current_step = %d, want 4", r.CurrentStep)
		}
	}

	steps, _ := repos.Steps.ListByPipelineRun(context.Background(), anyRunID(runs))
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}
	for _, s := range steps {
		if s.Status != domain.StepStatusCompleted {
			t.Fatalf("step %d status = %v, want completed", s.StepNumber, s.Status)
		}
	}
}

func anyRunID(repo *fakePipelineRepo) string {
	for id := range repo.runs {
		return id
	}
	return ""
}

func TestExecutePausesOnInsufficientCredits(t *testing.T) {
	billingClient := &fakeBilling{fail: func() error { return billing.ErrInsufficientCredits }}
	exec, repos, _ := newTestExecutor(t, &fakeAgents{}, billingClient)

	task := &domain.Task{ID: "task-1", TenantID: "tenant-1", Status: domain.TaskStatusQueued, InputSpec: domain.InputSpec{"goal": "x"}}
	repos.Tasks.Create(context.Background(), task)

	if err := exec.Execute(context.Background(), "task-1", "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs := repos.Pipelines.(*fakePipelineRepo)
	for _, r := range runs.runs {
		if r.Status != domain.PipelineStatusPaused {
			t.Fatalf("pipeline status = %v, want paused", r.Status)
		}
		if len(r.PauseReasons) != 1 || r.PauseReasons[0] != domain.PauseReasonInsufficientCredit {
			t.Fatalf("pause reasons = %v, want [INSUFFICIENT_CREDIT]", r.PauseReasons)
		}
		if r.PauseExpiresAt == nil {
			t.Fatalf("expected pause_expires_at to be set")
		}
	}
}

func TestExecuteSchedulesRetryOnAgentFailure(t *testing.T) {
	agents := &fakeAgents{fail: func(agentType domain.AgentType) error {
		if agentType == domain.AgentTypeArchitect {
			return errors.New("agent timed out")
		}
		return nil
	}}
	exec, repos, retrySched := newTestExecutor(t, agents, &fakeBilling{})

	task := &domain.Task{ID: "task-1", TenantID: "tenant-1", Status: domain.TaskStatusQueued, InputSpec: domain.InputSpec{"goal": "x"}}
	repos.Tasks.Create(context.Background(), task)

	if err := exec.Execute(context.Background(), "task-1", "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(retrySched.scheduled) != 1 {
		t.Fatalf("expected exactly one retry scheduled, got %d", len(retrySched.scheduled))
	}

	runs := repos.Pipelines.(*fakePipelineRepo)
	for _, r := range runs.runs {
		if r.Status != domain.PipelineStatusRunning {
			t.Fatalf("pipeline status = %v, want still running while a retry is pending", r.Status)
		}
	}

	stepRepo := repos.Steps.(*fakeStepRepo)
	var step1 *domain.PipelineStepRun
	for _, s := range stepRepo.steps {
		if s.StepNumber == 1 {
			step1 = s
		}
	}
	if step1 == nil || step1.Status != domain.StepStatusFailed {
		t.Fatalf("expected step 1 to be failed pending retry")
	}
	if step1.RetryCount != 1 {
		t.Fatalf("retry_count = %d, want 1 after the first scheduled retry", step1.RetryCount)
	}
}

func TestExecuteStepRetryContinuesRemainingSteps(t *testing.T) {
	exec, repos, _ := newTestExecutor(t, &fakeAgents{}, &fakeBilling{})

	task := &domain.Task{ID: "task-1", TenantID: "tenant-1", Status: domain.TaskStatusQueued, InputSpec: domain.InputSpec{"goal": "x"}}
	repos.Tasks.Create(context.Background(), task)

	agentsWithOneFailure := &fakeAgents{fail: func(agentType domain.AgentType) error {
		if agentType == domain.AgentTypeArchitect {
			return errors.New("transient")
		}
		return nil
	}}
	exec.agents = agentsWithOneFailure

	if err := exec.Execute(context.Background(), "task-1", "tenant-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runs := repos.Pipelines.(*fakePipelineRepo)
	var runID string
	for id := range runs.runs {
		runID = id
	}

	exec.agents = &fakeAgents{}
	if err := exec.ExecuteStepRetry(context.Background(), "tenant-1", runID, 1); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}

	run := runs.runs[runID]
	if run.Status != domain.PipelineStatusCompleted {
		t.Fatalf("pipeline status = %v, want completed after the retry recovers and the rest of the steps run", run.Status)
	}

	stepRepo := repos.Steps.(*fakeStepRepo)
	for _, s := range stepRepo.steps {
		if s.Status != domain.StepStatusCompleted {
			t.Fatalf("step %d status = %v, want completed", s.StepNumber, s.Status)
		}
	}

	updatedTask, _ := repos.Tasks.GetByID(context.Background(), "tenant-1", "task-1")
	if updatedTask.Status != domain.TaskStatusCompleted {
		t.Fatalf("task status = %v, want completed", updatedTask.Status)
	}
}

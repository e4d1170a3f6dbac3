// Package jobs implements the C14 Export/GitSync job lifecycle: a
// pending->processing->completed/failed state machine with retry counters,
// scheduled and re-driven over asynq the same way the teacher's
// internal/scheduler schedules GenerateQuoteJob. Per §1, the job
// *scheduling* is in scope; the ZIP-archive and git-push mechanics
// themselves are out of scope and are represented here only as sink seam
// interfaces (ExportSink, GitSink) a caller supplies.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/config"
	"pipelineengine/platform/logger"
)

const (
	// TaskExportProject is the asynq task type for a pending ExportJob.
	TaskExportProject = "jobs.export_project"
	// TaskGitSync is the asynq task type for a pending GitSyncJob.
	TaskGitSync = "jobs.git_sync"
)

// ExportJobPayload identifies the job an export worker should process.
type ExportJobPayload struct {
	JobID    string `json:"jobId"`
	TenantID string `json:"tenantId"`
}

// GitSyncJobPayload identifies the job a git-sync worker should process.
type GitSyncJobPayload struct {
	JobID    string `json:"jobId"`
	TenantID string `json:"tenantId"`
}

// ExportSink produces a downloadable archive for a project's artifacts.
// The archive format and storage mechanics are an out-of-scope collaborator
// (§1); Service only drives the job's state machine around a call to it.
type ExportSink interface {
	Export(ctx context.Context, tenantID, projectID string) (filePath, downloadURL string, expiresAt time.Time, err error)
}

// GitSink pushes an approved artifact's content to an external repository.
// Git plumbing is an out-of-scope collaborator (§1); Service only drives
// the job's state machine around a call to it.
type GitSink interface {
	Push(ctx context.Context, artifactID, repositoryURL, branch, commitMessage string) (commitSHA string, err error)
}

func redisClientOpt(cfg config.SchedulerConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	}
}

// Client is the producer half: it persists a pending job row and enqueues
// its processing, mirroring the teacher's Client.EnqueueGenerateQuoteJob.
type Client struct {
	asynqClient *asynq.Client
	uow         repository.UnitOfWork
	queue       string
}

// NewClient creates the jobs producer.
func NewClient(cfg config.SchedulerConfig, uow repository.UnitOfWork) *Client {
	return &Client{
		asynqClient: asynq.NewClient(redisClientOpt(cfg)),
		uow:         uow,
		queue:       "jobs",
	}
}

// Close releases the underlying asynq client connection.
func (c *Client) Close() error {
	if c == nil || c.asynqClient == nil {
		return nil
	}
	return c.asynqClient.Close()
}

// CreateExportJob persists a pending ExportJob for projectID and enqueues
// its processing.
func (c *Client) CreateExportJob(ctx context.Context, tenantID, projectID string) (*domain.ExportJob, error) {
	job := domain.NewExportJob(uuid.New().String(), projectID, tenantID)

	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		return repos.Exports.Create(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: create export job: %w", err)
	}

	payload, err := json.Marshal(ExportJobPayload{JobID: job.ID, TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal export payload: %w", err)
	}
	if _, err := c.asynqClient.EnqueueContext(ctx, asynq.NewTask(TaskExportProject, payload), asynq.Queue(c.queue)); err != nil {
		return nil, fmt.Errorf("jobs: enqueue export job: %w", err)
	}
	return job, nil
}

// CreateGitSyncJob persists a pending GitSyncJob for artifactID and
// enqueues its processing.
func (c *Client) CreateGitSyncJob(ctx context.Context, tenantID, artifactID, repositoryURL, commitMessage string) (*domain.GitSyncJob, error) {
	job := domain.NewGitSyncJob(uuid.New().String(), artifactID, tenantID, repositoryURL, commitMessage)

	err := c.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		return repos.GitSyncs.Create(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: create git sync job: %w", err)
	}

	if err := c.enqueueGitSync(ctx, job.ID, tenantID); err != nil {
		return nil, err
	}
	return job, nil
}

func (c *Client) enqueueGitSync(ctx context.Context, jobID, tenantID string) error {
	payload, err := json.Marshal(GitSyncJobPayload{JobID: jobID, TenantID: tenantID})
	if err != nil {
		return fmt.Errorf("jobs: marshal git sync payload: %w", err)
	}
	if _, err := c.asynqClient.EnqueueContext(ctx, asynq.NewTask(TaskGitSync, payload), asynq.Queue(c.queue)); err != nil {
		return fmt.Errorf("jobs: enqueue git sync job: %w", err)
	}
	return nil
}

// Worker is the consumer half: an asynq server processing export and
// git-sync jobs against their sink seams, grounded on the teacher's
// Worker.handleGenerateQuoteJob (parse payload -> load row -> delegate to
// an injected processor -> persist the outcome).
type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	uow        repository.UnitOfWork
	exportSink ExportSink
	gitSink    GitSink
	audit      audit.Sink
	log        *logger.Logger
	enqueueGitSyncRetry func(ctx context.Context, jobID, tenantID string) error
}

// NewWorker creates the jobs worker. Either sink may be nil if that job
// type is not configured for this deployment; jobs of that type then fail
// immediately with a descriptive error instead of panicking.
func NewWorker(cfg config.SchedulerConfig, uow repository.UnitOfWork, exportSink ExportSink, gitSink GitSink, auditSink audit.Sink, log *logger.Logger) *Worker {
	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"jobs": 1,
		},
	})

	w := &Worker{
		server:     server,
		mux:        asynq.NewServeMux(),
		uow:        uow,
		exportSink: exportSink,
		gitSink:    gitSink,
		audit:      auditSink,
		log:        log,
	}
	asynqClient := asynq.NewClient(redisClientOpt(cfg))
	w.enqueueGitSyncRetry = func(ctx context.Context, jobID, tenantID string) error {
		payload, err := json.Marshal(GitSyncJobPayload{JobID: jobID, TenantID: tenantID})
		if err != nil {
			return err
		}
		_, err = asynqClient.EnqueueContext(ctx, asynq.NewTask(TaskGitSync, payload), asynq.Queue("jobs"), asynq.ProcessIn(30*time.Second))
		return err
	}
	w.mux.HandleFunc(TaskExportProject, w.handleExport)
	w.mux.HandleFunc(TaskGitSync, w.handleGitSync)
	return w
}

// Run blocks serving tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("jobs worker stopped", "error", err)
	}
}

func (w *Worker) handleExport(ctx context.Context, task *asynq.Task) error {
	var payload ExportJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: unmarshal export payload: %w", err)
	}

	return w.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		job, err := repos.Exports.GetByID(ctx, payload.TenantID, payload.JobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusPending {
			return nil
		}
		job.StartProcessing()

		if w.exportSink == nil {
			job.Fail("export sink not configured")
			return repos.Exports.Update(ctx, job)
		}

		filePath, downloadURL, expiresAt, err := w.exportSink.Export(ctx, payload.TenantID, job.ProjectID)
		if err != nil {
			job.Fail(err.Error())
		} else {
			job.Complete(filePath, downloadURL, expiresAt)
		}
		if updateErr := repos.Exports.Update(ctx, job); updateErr != nil {
			return updateErr
		}
		w.audit.LogEvent(ctx, exportJobEvent(job.Status), payload.TenantID, "", "export_job", job.ID, nil)
		return nil
	})
}

func exportJobEvent(status domain.JobStatus) audit.EventType {
	if status == domain.JobStatusCompleted {
		return audit.EventExportJobCompleted
	}
	return audit.EventExportJobFailed
}

func gitSyncJobEvent(status domain.JobStatus) audit.EventType {
	if status == domain.JobStatusCompleted {
		return audit.EventGitSyncJobCompleted
	}
	return audit.EventGitSyncJobFailed
}

func (w *Worker) handleGitSync(ctx context.Context, task *asynq.Task) error {
	var payload GitSyncJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: unmarshal git sync payload: %w", err)
	}

	var retryNeeded bool
	err := w.uow.WithinTx(ctx, func(ctx context.Context, repos *repository.Repositories) error {
		job, err := repos.GitSyncs.GetByID(ctx, payload.TenantID, payload.JobID)
		if err != nil {
			return err
		}
		if job.Status != domain.JobStatusPending {
			return nil
		}
		job.StartProcessing()

		if w.gitSink == nil {
			job.Fail("git sink not configured")
			return repos.GitSyncs.Update(ctx, job)
		}

		commitSHA, pushErr := w.gitSink.Push(ctx, job.ArtifactID, job.RepositoryURL, job.Branch, job.CommitMessage)
		if pushErr != nil {
			job.Fail(pushErr.Error())
			if job.CanRetry() {
				job.IncrementRetry()
				retryNeeded = true
			}
		} else {
			job.Complete(commitSHA)
		}
		if updateErr := repos.GitSyncs.Update(ctx, job); updateErr != nil {
			return updateErr
		}
		w.audit.LogEvent(ctx, gitSyncJobEvent(job.Status), payload.TenantID, "", "git_sync_job", job.ID, nil)
		return nil
	})
	if err != nil {
		return err
	}
	if retryNeeded {
		return w.enqueueGitSyncRetry(ctx, payload.JobID, payload.TenantID)
	}
	return nil
}

// Package dispatch implements the background pipeline dispatcher (§9's
// "bounded task dispatcher" / execute_pipeline_in_background): an asynq
// producer/consumer pair that decouples a task's queued->running transition
// from the HTTP request that triggered it. Grounded on the teacher's
// internal/scheduler package (client.go's redis-opt construction and
// task-enqueue shape, worker.go's asynq.Server+ServeMux wiring), retargeted
// from appointment reminders/quote generation to pipeline execution.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"pipelineengine/platform/config"
	"pipelineengine/platform/logger"
)

// TaskExecutePipeline is the asynq task type for a queued pipeline run.
const TaskExecutePipeline = "pipeline.execute"

// TaskResumePipelineFromStep is the asynq task type for a forked pipeline
// run that must resume from a specific step, used by approval's
// reject-regenerate path and lifecycle's Replay instead of a bare goroutine.
const TaskResumePipelineFromStep = "pipeline.resume_from_step"

// ExecutePipelinePayload identifies the task/tenant pair a PipelineExecutor
// run operates on, mirroring executor.Executor.Execute's parameters.
type ExecutePipelinePayload struct {
	TaskID   string `json:"taskId"`
	TenantID string `json:"tenantId"`
}

// ResumeFromStepPayload identifies the forked PipelineRun a resume task
// should drive forward, mirroring executor.Executor.RunFromStep's parameters.
type ResumeFromStepPayload struct {
	TenantID      string `json:"tenantId"`
	PipelineRunID string `json:"pipelineRunId"`
	TaskID        string `json:"taskId"`
	FromStep      int    `json:"fromStep"`
}

// Executor is the subset of executor.Executor the dispatch worker needs.
// Declared locally to avoid an import cycle back into the executor package.
type Executor interface {
	Execute(ctx context.Context, taskID, tenantID string) error
	RunFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int)
}

func redisClientOpt(cfg config.SchedulerConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	}
}

// Dispatcher is the producer half: HTTP handlers call Enqueue instead of
// spawning a bare goroutine, so a process restart between "marked queued"
// and "executor ran" does not silently drop the run.
type Dispatcher struct {
	client *asynq.Client
	queue  string
}

// NewDispatcher creates the asynq-backed dispatcher.
func NewDispatcher(cfg config.SchedulerConfig) *Dispatcher {
	return &Dispatcher{
		client: asynq.NewClient(redisClientOpt(cfg)),
		queue:  "pipeline",
	}
}

// Close releases the underlying asynq client connection.
func (d *Dispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// Enqueue schedules a pipeline run for background execution. It satisfies
// the httpapi.Handler's dispatcher dependency.
func (d *Dispatcher) Enqueue(ctx context.Context, taskID, tenantID string) error {
	payload, err := json.Marshal(ExecutePipelinePayload{TaskID: taskID, TenantID: tenantID})
	if err != nil {
		return fmt.Errorf("dispatch: marshal payload: %w", err)
	}

	task := asynq.NewTask(TaskExecutePipeline, payload)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
	if err != nil {
		return fmt.Errorf("dispatch: enqueue: %w", err)
	}
	return nil
}

// EnqueueFromStep schedules a forked PipelineRun to resume from fromStep.
// Satisfies approval.PipelineRunner and lifecycle.PipelineRunner, replacing
// their previous bare `go s.runner.RunFromStep(context.Background(), ...)`
// goroutines with the same durable queue QueueTask/RunTask already use.
func (d *Dispatcher) EnqueueFromStep(ctx context.Context, tenantID, pipelineRunID, taskID string, fromStepNumber int) error {
	payload, err := json.Marshal(ResumeFromStepPayload{
		TenantID:      tenantID,
		PipelineRunID: pipelineRunID,
		TaskID:        taskID,
		FromStep:      fromStepNumber,
	})
	if err != nil {
		return fmt.Errorf("dispatch: marshal resume payload: %w", err)
	}

	task := asynq.NewTask(TaskResumePipelineFromStep, payload)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue))
	if err != nil {
		return fmt.Errorf("dispatch: enqueue resume: %w", err)
	}
	return nil
}

// Worker is the consumer half: a bounded pool of asynq processor goroutines,
// each pulling one (task_id, tenant_id) pair at a time and handing it to the
// PipelineExecutor with a fresh background context, matching
// execute_pipeline_in_background's "its own context + UnitOfWork" semantics
// (the UnitOfWork is owned by the Executor itself, constructed once at
// wiring time and safe for concurrent use across goroutines).
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	exec   Executor
	log    *logger.Logger
}

// NewWorker creates the dispatch worker. concurrency bounds how many
// pipeline runs execute at once within this process.
func NewWorker(cfg config.SchedulerConfig, exec Executor, log *logger.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 5
	}

	server := asynq.NewServer(redisClientOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"pipeline": 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		exec:   exec,
		log:    log,
	}
	w.mux.HandleFunc(TaskExecutePipeline, w.handleExecutePipeline)
	w.mux.HandleFunc(TaskResumePipelineFromStep, w.handleResumeFromStep)
	return w
}

func (w *Worker) handleExecutePipeline(ctx context.Context, task *asynq.Task) error {
	var payload ExecutePipelinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("dispatch: unmarshal payload: %w", err)
	}

	if err := w.exec.Execute(ctx, payload.TaskID, payload.TenantID); err != nil {
		w.log.Error("pipeline execution failed", "taskId", payload.TaskID, "tenantId", payload.TenantID, "error", err)
		// Not returned as a task error: the executor's own retry/billing-unavailable
		// paths already own recovery, and asynq retries would duplicate a run that
		// has already written partial PipelineRun/step state.
	}
	return nil
}

func (w *Worker) handleResumeFromStep(ctx context.Context, task *asynq.Task) error {
	var payload ResumeFromStepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("dispatch: unmarshal resume payload: %w", err)
	}

	w.exec.RunFromStep(ctx, payload.TenantID, payload.PipelineRunID, payload.TaskID, payload.FromStep)
	return nil
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
		w.log.Error("dispatch worker stopped", "error", err)
	}
}

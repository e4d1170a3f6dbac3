package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/approval"
	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/lifecycle"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/internal/pipeline/validate"
	"pipelineengine/platform/apperr"
	"pipelineengine/platform/httpkit"
	"pipelineengine/platform/logger"
	"pipelineengine/platform/validator"
)

const (
	msgInvalidRequest = "invalid request"
	msgValidationFail = "validation failed"
	msgInvalidID      = "invalid id"
)

// Dispatcher hands a (task_id, tenant_id) pair off for background pipeline
// execution (§9's execute_pipeline_in_background) without blocking the HTTP
// request that triggered it. Satisfied by dispatch.Dispatcher.
type Dispatcher interface {
	Enqueue(ctx context.Context, taskID, tenantID string) error
}

// Handler serves the §6.4 HTTP surface. Grounded on
// internal/catalog/handler/handler.go's bind->validate->identity->tenant->
// service->HandleError->response shape; every method here follows the same
// sequence.
type Handler struct {
	uow        repository.UnitOfWork
	reads      *repository.Repositories
	dispatcher Dispatcher
	validator  *validate.Validator
	approval   *approval.Service
	lifecycle  *lifecycle.Service
	audit      audit.Sink
	val        *validator.Validator
	log        *logger.Logger
}

// New creates the pipeline HTTP handler.
func New(
	uow repository.UnitOfWork,
	reads *repository.Repositories,
	dispatcher Dispatcher,
	val *validate.Validator,
	approvalSvc *approval.Service,
	lifecycleSvc *lifecycle.Service,
	auditSink audit.Sink,
	reqValidator *validator.Validator,
	log *logger.Logger,
) *Handler {
	return &Handler{
		uow:        uow,
		reads:      reads,
		dispatcher: dispatcher,
		validator:  val,
		approval:   approvalSvc,
		lifecycle:  lifecycleSvc,
		audit:      auditSink,
		val:        reqValidator,
		log:        log,
	}
}

func mustGetTenantID(c *gin.Context, identity httpkit.Identity) (string, bool) {
	tenantID := identity.TenantID()
	if tenantID == nil {
		httpkit.Error(c, http.StatusBadRequest, "tenant ID is required", nil)
		return "", false
	}
	return tenantID.String(), true
}

func validID(c *gin.Context, raw string) (string, bool) {
	if _, err := uuid.Parse(raw); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return "", false
	}
	return raw, true
}

// CreateProject handles POST /projects.
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFail, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	project := &domain.Project{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.ProjectStatusActive,
	}

	err := h.uow.WithinTx(c.Request.Context(), func(ctx context.Context, repos *repository.Repositories) error {
		return repos.Projects.Create(ctx, project)
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.audit.LogEvent(c.Request.Context(), audit.EventProjectCreated, tenantID, identity.UserID().String(), "project", project.ID, nil)
	httpkit.JSON(c, http.StatusCreated, newProjectResponse(project))
}

// ListProjects handles GET /projects.
func (h *Handler) ListProjects(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	limit, offset := parsePagination(c)
	projects, err := h.reads.Projects.List(c.Request.Context(), tenantID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]ProjectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, newProjectResponse(p))
	}
	httpkit.OK(c, out)
}

// CreateTask handles POST /projects/:projectId/tasks.
func (h *Handler) CreateTask(c *gin.Context) {
	projectID, ok := validID(c, c.Param("projectId"))
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	inputSpec := domain.InputSpec(req.InputSpec)
	if err := inputSpec.Validate(); err != nil {
		httpkit.HandleError(c, apperr.CodeBadRequestErr(apperr.CodeInvalidInputSpec, err.Error()))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	task := &domain.Task{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		ProjectID: projectID,
		InputSpec: inputSpec,
		Status:    domain.TaskStatusDraft,
	}

	err := h.uow.WithinTx(c.Request.Context(), func(ctx context.Context, repos *repository.Repositories) error {
		project, err := repos.Projects.GetByID(ctx, tenantID, projectID)
		if err != nil {
			return err
		}
		if !project.IsActive() {
			return apperr.CodeBadRequestErr(apperr.CodeProjectNotActive, "project is not active")
		}
		return repos.Tasks.Create(ctx, task)
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.audit.LogEvent(c.Request.Context(), audit.EventTaskCreated, tenantID, identity.UserID().String(), "task", task.ID, nil)
	httpkit.JSON(c, http.StatusCreated, newTaskResponse(task))
}

// ListTasks handles GET /projects/:projectId/tasks.
func (h *Handler) ListTasks(c *gin.Context) {
	projectID, ok := validID(c, c.Param("projectId"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	limit, offset := parsePagination(c)
	tasks, err := h.reads.Tasks.ListByProject(c.Request.Context(), tenantID, projectID, limit, offset)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, newTaskResponse(t))
	}
	httpkit.OK(c, out)
}

// GetTask handles GET /tasks/:id.
func (h *Handler) GetTask(c *gin.Context) {
	taskID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	task, err := h.reads.Tasks.GetByID(c.Request.Context(), tenantID, taskID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newTaskResponse(task))
}

// QueueTask handles POST /tasks/:id/queue (§6.4): transitions draft->queued
// and enqueues the executor run on the background dispatcher so the request
// does not block for the full four-step run (§5).
func (h *Handler) QueueTask(c *gin.Context) {
	taskID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	var task *domain.Task
	err := h.uow.WithinTx(c.Request.Context(), func(ctx context.Context, repos *repository.Repositories) error {
		t, err := repos.Tasks.GetByID(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		if err := t.MarkQueued(); err != nil {
			return apperr.CodeBadRequestErr(apperr.CodeInvalidStatus, err.Error())
		}
		if err := repos.Tasks.Update(ctx, t); err != nil {
			return err
		}
		task = t
		return nil
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.audit.LogEvent(c.Request.Context(), audit.EventTaskQueued, tenantID, identity.UserID().String(), "task", taskID, nil)

	if err := h.dispatcher.Enqueue(c.Request.Context(), taskID, tenantID); err != nil {
		h.log.Error("failed to dispatch pipeline run", "taskId", taskID, "error", err)
	}

	httpkit.OK(c, newTaskResponse(task))
}

// ValidateTask handles POST /pipeline/tasks/:id/validate (§4.2).
func (h *Handler) ValidateTask(c *gin.Context) {
	taskID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), taskID, tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ValidationResponse{
		Eligible:       result.Eligible,
		EstimatedCost:  result.EstimatedCost,
		CurrentBalance: result.CurrentBalance,
		Reason:         result.Reason,
	})
}

// RunTask handles POST /pipeline/tasks/:id/run (§6.4): validate then start.
func (h *Handler) RunTask(c *gin.Context) {
	taskID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.validator.Validate(c.Request.Context(), taskID, tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	if !result.Eligible {
		httpkit.HandleError(c, apperr.CodeBadRequestErr(apperr.CodeInsufficientCredi, result.Reason))
		return
	}

	err = h.uow.WithinTx(c.Request.Context(), func(ctx context.Context, repos *repository.Repositories) error {
		t, err := repos.Tasks.GetByID(ctx, tenantID, taskID)
		if err != nil {
			return err
		}
		if !t.CanQueue() {
			return apperr.CodeBadRequestErr(apperr.CodeInvalidStatus, "task is not in draft status")
		}
		if err := t.MarkQueued(); err != nil {
			return apperr.CodeBadRequestErr(apperr.CodeInvalidStatus, err.Error())
		}
		return repos.Tasks.Update(ctx, t)
	})
	if httpkit.HandleError(c, err) {
		return
	}
	h.audit.LogEvent(c.Request.Context(), audit.EventTaskQueued, tenantID, identity.UserID().String(), "task", taskID, nil)

	if err := h.dispatcher.Enqueue(c.Request.Context(), taskID, tenantID); err != nil {
		h.log.Error("failed to dispatch pipeline run", "taskId", taskID, "error", err)
	}

	httpkit.JSON(c, http.StatusAccepted, RunAcceptedResponse{
		TaskID:  taskID,
		Status:  string(domain.TaskStatusQueued),
		Message: "pipeline run dispatched",
	})
}

// GetPipelineRun handles GET /pipeline/:run_id (§6.4 full-state view).
func (h *Handler) GetPipelineRun(c *gin.Context) {
	runID, ok := validID(c, c.Param("runId"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	run, err := h.reads.Pipelines.GetByID(c.Request.Context(), tenantID, runID)
	if httpkit.HandleError(c, err) {
		return
	}
	steps, err := h.reads.Steps.ListByPipelineRun(c.Request.Context(), runID)
	if httpkit.HandleError(c, err) {
		return
	}
	var creditsConsumed float64
	for _, s := range steps {
		runs, err := h.reads.AgentRuns.ListByStepRun(c.Request.Context(), s.ID)
		if httpkit.HandleError(c, err) {
			return
		}
		for _, a := range runs {
			creditsConsumed += a.ActualCostCredits
		}
	}
	httpkit.OK(c, newPipelineRunResponse(run, steps, creditsConsumed))
}

// ListPipelineRuns handles GET /pipeline/pipelines?status=&limit=&offset=.
func (h *Handler) ListPipelineRuns(c *gin.Context) {
	var query ListPipelinesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.HandleError(c, apperr.CodeBadRequestErr(apperr.CodeInvalidStatus, err.Error()))
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	limit := query.Limit
	if limit == 0 {
		limit = 50
	}

	runs, err := h.reads.Pipelines.List(c.Request.Context(), tenantID, domain.PipelineStatus(query.Status), limit, query.Offset)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]PipelineRunResponse, 0, len(runs))
	for _, r := range runs {
		steps, err := h.reads.Steps.ListByPipelineRun(c.Request.Context(), r.ID)
		if httpkit.HandleError(c, err) {
			return
		}
		items = append(items, newPipelineRunResponse(r, steps, 0))
	}
	httpkit.OK(c, PipelineListResponse{Items: items, Limit: limit, Offset: query.Offset})
}

// GetStep handles GET /pipeline/:run_id/steps/:step_id.
func (h *Handler) GetStep(c *gin.Context) {
	runID, ok := validID(c, c.Param("runId"))
	if !ok {
		return
	}
	stepID, ok := validID(c, c.Param("stepId"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	run, err := h.reads.Pipelines.GetByID(c.Request.Context(), tenantID, runID)
	if httpkit.HandleError(c, err) {
		return
	}
	step, err := h.reads.Steps.GetByID(c.Request.Context(), stepID)
	if httpkit.HandleError(c, err) {
		return
	}
	if step.PipelineRunID != runID {
		httpkit.HandleError(c, apperr.CodeNotFoundErr(apperr.CodeStepRunNotFound, "step not found for this pipeline run"))
		return
	}

	agentRuns, err := h.reads.AgentRuns.ListByStepRun(c.Request.Context(), stepID)
	if httpkit.HandleError(c, err) {
		return
	}
	agentOut := make([]AgentRunResponse, 0, len(agentRuns))
	for _, a := range agentRuns {
		agentOut = append(agentOut, newAgentRunResponse(a))
	}

	resp := StepDetailResponse{Step: newStepSummary(step), AgentRuns: agentOut}
	spec := stepSpecFor(step.StepNumber)
	if spec != nil {
		artifact, err := h.reads.Artifacts.GetLatest(c.Request.Context(), run.TaskID, spec.ArtifactType)
		if err == nil && artifact != nil && artifact.StepRunID == step.ID {
			out := newArtifactResponse(artifact)
			resp.Artifact = &out
		}
	}
	httpkit.OK(c, resp)
}

func stepSpecFor(stepNumber int) *domain.StepSpec {
	for _, s := range domain.Steps {
		if s.StepNumber == stepNumber {
			return &s
		}
	}
	return nil
}

// CancelPipelineRun handles POST /pipeline/:run_id/cancel (§4.6).
func (h *Handler) CancelPipelineRun(c *gin.Context) {
	runID, ok := validID(c, c.Param("runId"))
	if !ok {
		return
	}
	var req CancelPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.lifecycle.Cancel(c.Request.Context(), tenantID, identity.UserID().String(), runID, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, CancelPipelineResponse{
		PipelineRunID:  result.PipelineRunID,
		PreviousStatus: string(result.PreviousStatus),
		NewStatus:      string(result.NewStatus),
		StepsCompleted: result.StepsCompleted,
		StepsCancelled: result.StepsCancelled,
	})
}

// ResumePipelineRun handles POST /pipeline/:run_id/resume (§4.7).
func (h *Handler) ResumePipelineRun(c *gin.Context) {
	runID, ok := validID(c, c.Param("runId"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	run, err := h.lifecycle.Resume(c.Request.Context(), tenantID, runID)
	if httpkit.HandleError(c, err) {
		return
	}
	steps, err := h.reads.Steps.ListByPipelineRun(c.Request.Context(), runID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newPipelineRunResponse(run, steps, 0))
}

// ReplayPipelineRun handles POST /pipeline/:run_id/replay (§4.8).
func (h *Handler) ReplayPipelineRun(c *gin.Context) {
	runID, ok := validID(c, c.Param("runId"))
	if !ok {
		return
	}
	var req ReplayPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.lifecycle.Replay(c.Request.Context(), tenantID, runID, req.FromStepID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ReplayPipelineResponse{
		NewPipelineRunID: result.NewPipelineRunID,
		SourceRunID:      runID,
	})
}

// GetArtifact handles GET /artifacts/:id.
func (h *Handler) GetArtifact(c *gin.Context) {
	artifactID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	artifact, err := h.reads.Artifacts.GetByID(c.Request.Context(), tenantID, artifactID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newArtifactResponse(artifact))
}

// ApproveArtifact handles POST /artifacts/:id/approve (§4.3).
func (h *Handler) ApproveArtifact(c *gin.Context) {
	artifactID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.approval.Approve(c.Request.Context(), tenantID, artifactID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ApproveArtifactResponse{
		ArtifactID:      result.ArtifactID,
		Status:          string(result.Status),
		PipelineRunID:   result.PipelineRunID,
		PipelineResumed: result.PipelineResumed,
		TaskID:          result.TaskID,
	})
}

// RejectArtifact handles POST /artifacts/:id/reject (§4.4).
func (h *Handler) RejectArtifact(c *gin.Context) {
	artifactID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	var req RejectArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFail, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	result, err := h.approval.Reject(c.Request.Context(), tenantID, artifactID, req.Feedback, req.Regenerate)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, RejectArtifactResponse{
		ArtifactID:       result.ArtifactID,
		Status:           string(result.Status),
		RegeneratedRunID: result.NewPipelineRunID,
	})
}

// ArchiveArtifact handles POST /artifacts/:id/archive (§4.5).
func (h *Handler) ArchiveArtifact(c *gin.Context) {
	artifactID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	tenantID, ok := mustGetTenantID(c, identity)
	if !ok {
		return
	}

	err := h.approval.Archive(c.Request.Context(), tenantID, artifactID)
	if httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func parsePagination(c *gin.Context) (limit, offset int) {
	limit = 50
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

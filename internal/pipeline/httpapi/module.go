package httpapi

import (
	apphttp "pipelineengine/internal/http"
)

// Module is the pipeline bounded context's HTTP module, implementing
// apphttp.Module the same way internal/catalog does.
type Module struct {
	handler *Handler
	jobs    *JobsHandler
}

// NewModule wraps an already-constructed Handler as an apphttp.Module.
// jobsHandler may be nil when the jobs subsystem is not configured (e.g.
// Redis unavailable in a given deployment); its routes are then omitted.
func NewModule(h *Handler, jobsHandler *JobsHandler) *Module {
	return &Module{handler: h, jobs: jobsHandler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// RegisterRoutes mounts the §6.4 route table on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	protected := ctx.Protected

	protected.POST("/projects", m.handler.CreateProject)
	protected.GET("/projects", m.handler.ListProjects)
	protected.POST("/projects/:projectId/tasks", m.handler.CreateTask)
	protected.GET("/projects/:projectId/tasks", m.handler.ListTasks)

	protected.GET("/tasks/:id", m.handler.GetTask)
	protected.POST("/tasks/:id/queue", m.handler.QueueTask)

	pipeline := protected.Group("/pipeline")
	pipeline.POST("/tasks/:id/validate", m.handler.ValidateTask)
	pipeline.POST("/tasks/:id/run", m.handler.RunTask)
	pipeline.GET("/pipelines", m.handler.ListPipelineRuns)
	pipeline.GET("/:runId", m.handler.GetPipelineRun)
	pipeline.POST("/:runId/cancel", m.handler.CancelPipelineRun)
	pipeline.POST("/:runId/resume", m.handler.ResumePipelineRun)
	pipeline.POST("/:runId/replay", m.handler.ReplayPipelineRun)
	pipeline.GET("/:runId/steps/:stepId", m.handler.GetStep)

	protected.GET("/artifacts/:id", m.handler.GetArtifact)
	protected.POST("/artifacts/:id/approve", m.handler.ApproveArtifact)
	protected.POST("/artifacts/:id/reject", m.handler.RejectArtifact)
	protected.POST("/artifacts/:id/archive", m.handler.ArchiveArtifact)

	if m.jobs != nil {
		protected.POST("/projects/:projectId/export", m.jobs.CreateExportJob)
		protected.GET("/exports/:id", m.jobs.GetExportJob)
		protected.POST("/artifacts/:id/git-sync", m.jobs.CreateGitSyncJob)
		protected.GET("/git-syncs/:id", m.jobs.GetGitSyncJob)
	}
}

// Compile-time check that Module implements apphttp.Module.
var _ apphttp.Module = (*Module)(nil)

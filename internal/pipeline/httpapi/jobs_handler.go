package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pipelineengine/internal/pipeline/jobs"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/httpkit"
	"pipelineengine/platform/validator"
)

// JobsHandler serves the C14 export/git-sync job-creation endpoints. Kept
// separate from Handler since C14 has no entry in spec.md's own §6.4 route
// table — this is a SPEC_FULL addition exercising the asynq-backed
// jobs.Client end to end, not part of the pipeline-core contract.
type JobsHandler struct {
	jobs  *jobs.Client
	reads *repository.Repositories
	val   *validator.Validator
}

// NewJobsHandler creates the jobs HTTP handler.
func NewJobsHandler(jobsClient *jobs.Client, reads *repository.Repositories, val *validator.Validator) *JobsHandler {
	return &JobsHandler{jobs: jobsClient, reads: reads, val: val}
}

// CreateExportJob handles POST /projects/:projectId/export.
func (h *JobsHandler) CreateExportJob(c *gin.Context) {
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

	job, err := h.jobs.CreateExportJob(c.Request.Context(), tenantID, projectID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, newExportJobResponse(job))
}

// GetExportJob handles GET /exports/:id.
func (h *JobsHandler) GetExportJob(c *gin.Context) {
	jobID, ok := validID(c, c.Param("id"))
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

	job, err := h.reads.Exports.GetByID(c.Request.Context(), tenantID, jobID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newExportJobResponse(job))
}

// CreateGitSyncJob handles POST /artifacts/:id/git-sync.
func (h *JobsHandler) CreateGitSyncJob(c *gin.Context) {
	artifactID, ok := validID(c, c.Param("id"))
	if !ok {
		return
	}
	var req CreateGitSyncJobRequest
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

	if _, err := h.reads.Artifacts.GetByID(c.Request.Context(), tenantID, artifactID); httpkit.HandleError(c, err) {
		return
	}

	job, err := h.jobs.CreateGitSyncJob(c.Request.Context(), tenantID, artifactID, req.RepositoryURL, req.CommitMessage)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusAccepted, newGitSyncJobResponse(job))
}

// GetGitSyncJob handles GET /git-syncs/:id.
func (h *JobsHandler) GetGitSyncJob(c *gin.Context) {
	jobID, ok := validID(c, c.Param("id"))
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

	job, err := h.reads.GitSyncs.GetByID(c.Request.Context(), tenantID, jobID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newGitSyncJobResponse(job))
}

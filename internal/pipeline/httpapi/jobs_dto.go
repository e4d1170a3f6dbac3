package httpapi

import (
	"time"

	"pipelineengine/internal/pipeline/domain"
)

// CreateGitSyncJobRequest is the request body for POST /artifacts/:id/git-sync.
type CreateGitSyncJobRequest struct {
	RepositoryURL string `json:"repository_url" validate:"required,url"`
	CommitMessage string `json:"commit_message" validate:"required"`
}

// ExportJobResponse is the wire shape of an ExportJob.
type ExportJobResponse struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"project_id"`
	Status       string     `json:"status"`
	DownloadURL  string     `json:"download_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func newExportJobResponse(j *domain.ExportJob) ExportJobResponse {
	return ExportJobResponse{
		ID:           j.ID,
		ProjectID:    j.ProjectID,
		Status:       string(j.Status),
		DownloadURL:  j.DownloadURL,
		ExpiresAt:    j.ExpiresAt,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		CompletedAt:  j.CompletedAt,
	}
}

// GitSyncJobResponse is the wire shape of a GitSyncJob.
type GitSyncJobResponse struct {
	ID            string    `json:"id"`
	ArtifactID    string    `json:"artifact_id"`
	RepositoryURL string    `json:"repository_url"`
	Branch        string    `json:"branch"`
	Status        string    `json:"status"`
	CommitSHA     string    `json:"commit_sha,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	RetryCount    int       `json:"retry_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func newGitSyncJobResponse(j *domain.GitSyncJob) GitSyncJobResponse {
	return GitSyncJobResponse{
		ID:            j.ID,
		ArtifactID:    j.ArtifactID,
		RepositoryURL: j.RepositoryURL,
		Branch:        j.Branch,
		Status:        string(j.Status),
		CommitSHA:     j.CommitSHA,
		ErrorMessage:  j.ErrorMessage,
		RetryCount:    j.RetryCount,
		CreatedAt:     j.CreatedAt,
	}
}

package domain

import "time"

// ExportJob tracks an async job that generates a downloadable archive of a
// project's artifacts. The archive mechanics are out of scope (§1); only
// the state machine lives here.
type ExportJob struct {
	ID          string
	ProjectID   string
	TenantID    string
	Status      JobStatus
	FilePath    string
	DownloadURL string
	ExpiresAt   *time.Time
	ErrorMessage string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// NewExportJob creates a pending export job.
func NewExportJob(id, projectID, tenantID string) *ExportJob {
	return &ExportJob{ID: id, ProjectID: projectID, TenantID: tenantID, Status: JobStatusPending, CreatedAt: time.Now().UTC()}
}

// StartProcessing transitions pending -> processing.
func (j *ExportJob) StartProcessing() {
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
}

// Complete transitions processing -> completed with the sink's result.
func (j *ExportJob) Complete(filePath, downloadURL string, expiresAt time.Time) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.FilePath = filePath
	j.DownloadURL = downloadURL
	j.ExpiresAt = &expiresAt
	j.CompletedAt = &now
}

// Fail transitions to failed with an error message.
func (j *ExportJob) Fail(message string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
}

package domain

import "time"

// GitSyncJob tracks an async job that pushes an approved artifact to an
// external Git repository. The push mechanics are out of scope (§1); only
// the state machine lives here.
type GitSyncJob struct {
	ID              string
	ArtifactID      string
	TenantID        string
	RepositoryURL   string
	Branch          string
	CommitMessage   string
	Status          JobStatus
	CommitSHA       string
	ErrorMessage    string
	RetryCount      int
	MaxRetries      int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// NewGitSyncJob creates a pending Git sync job targeting "main" by default.
func NewGitSyncJob(id, artifactID, tenantID, repositoryURL, commitMessage string) *GitSyncJob {
	return &GitSyncJob{
		ID:            id,
		ArtifactID:    artifactID,
		TenantID:      tenantID,
		RepositoryURL: repositoryURL,
		Branch:        "main",
		CommitMessage: commitMessage,
		Status:        JobStatusPending,
		MaxRetries:    3,
		CreatedAt:     time.Now().UTC(),
	}
}

// StartProcessing transitions pending -> processing.
func (j *GitSyncJob) StartProcessing() {
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
}

// Complete transitions processing -> completed with the resulting commit.
func (j *GitSyncJob) Complete(commitSHA string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CommitSHA = commitSHA
	j.CompletedAt = &now
}

// Fail transitions to failed with an error message.
func (j *GitSyncJob) Fail(message string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = message
	j.CompletedAt = &now
}

// CanRetry reports whether another attempt is allowed.
func (j *GitSyncJob) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry bumps the retry counter and resets the job back to
// pending, clearing the previous attempt's result fields.
func (j *GitSyncJob) IncrementRetry() {
	j.RetryCount++
	j.Status = JobStatusPending
	j.StartedAt = nil
	j.CompletedAt = nil
	j.ErrorMessage = ""
}

package domain

import "time"

// RetryJob schedules a deferred re-execution of a failed step (§3).
type RetryJob struct {
	ID           string
	StepRunID    string
	RetryAttempt int
	ScheduledAt  time.Time
	Status       RetryStatus
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// IsReady implements "ready iff status=pending ∧ scheduled_at ≤ now".
func (j *RetryJob) IsReady() bool {
	return j.Status == RetryStatusPending && !j.ScheduledAt.After(time.Now().UTC())
}

// MarkProcessing transitions the job into processing.
func (j *RetryJob) MarkProcessing() {
	j.Status = RetryStatusProcessing
}

// MarkCompleted transitions the job to completed.
func (j *RetryJob) MarkCompleted() {
	now := time.Now().UTC()
	j.Status = RetryStatusCompleted
	j.ProcessedAt = &now
}

// MarkFailed transitions the job to failed.
func (j *RetryJob) MarkFailed() {
	now := time.Now().UTC()
	j.Status = RetryStatusFailed
	j.ProcessedAt = &now
}

package domain

import "time"

// PipelineStepRun tracks one step's execution within a PipelineRun (§3).
type PipelineStepRun struct {
	ID            string
	PipelineRunID string
	StepNumber    int
	StepName      string
	StepType      StepType
	Status        StepStatus
	RetryCount    int
	MaxRetries    int
	InputSnapshot map[string]any
	Output        map[string]any
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// NewPipelineStepRun creates a pending step at the given position.
func NewPipelineStepRun(id, pipelineRunID string, spec StepSpec) *PipelineStepRun {
	return &PipelineStepRun{
		ID:            id,
		PipelineRunID: pipelineRunID,
		StepNumber:    spec.StepNumber,
		StepName:      string(spec.StepType),
		StepType:      spec.StepType,
		Status:        StepStatusPending,
		MaxRetries:    3,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsRetryable implements "retryable iff status=failed ∧ retry_count < max_retries".
func (s *PipelineStepRun) IsRetryable() bool {
	return s.Status == StepStatusFailed && s.RetryCount < s.MaxRetries
}

// FreezeInputSnapshot writes the input snapshot exactly once; subsequent
// calls are no-ops, since retries MUST reuse the snapshot from first attempt.
func (s *PipelineStepRun) FreezeInputSnapshot(merged map[string]any) {
	if s.InputSnapshot != nil {
		return
	}
	s.InputSnapshot = merged
}

// Start transitions pending -> running.
func (s *PipelineStepRun) Start() {
	now := time.Now().UTC()
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// Complete transitions running -> completed, recording output.
func (s *PipelineStepRun) Complete(output map[string]any) {
	now := time.Now().UTC()
	s.Status = StepStatusCompleted
	s.Output = output
	s.CompletedAt = &now
}

// Fail transitions to failed with an error message.
func (s *PipelineStepRun) Fail(message string) {
	now := time.Now().UTC()
	s.Status = StepStatusFailed
	s.ErrorMessage = message
	s.CompletedAt = &now
}

// Cancel transitions a non-terminal step to cancelled.
func (s *PipelineStepRun) Cancel() {
	now := time.Now().UTC()
	s.Status = StepStatusCancelled
	s.CompletedAt = &now
}

// IncrementRetry bumps the retry counter. Callers must check retry_count <
// max_retries (via IsRetryable) before scheduling another attempt.
func (s *PipelineStepRun) IncrementRetry() {
	s.RetryCount++
}

// IsLastStep reports whether this is the final step in the fixed sequence.
func (s *PipelineStepRun) IsLastStep() bool {
	return s.StepNumber == len(Steps)
}

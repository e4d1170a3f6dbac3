package domain

import "time"

// DeadLetterEvent records a step that exhausted all retries (§3). Requires
// manual resolution through an admin-facing workflow that is out of scope
// here beyond the resolution fields themselves.
type DeadLetterEvent struct {
	ID             string
	PipelineRunID  string
	StepRunID      string
	FailureReason  string
	RetryCount     int
	Context        map[string]any
	Resolved       bool
	ResolvedAt     *time.Time
	ResolutionNotes string
	CreatedAt      time.Time
}

// NewDeadLetterEvent builds the record emitted when a step's retries are
// exhausted (§4.11).
func NewDeadLetterEvent(id, pipelineRunID, stepRunID string, retryCount int, stepType StepType, stepNumber, maxRetries int) *DeadLetterEvent {
	return &DeadLetterEvent{
		ID:            id,
		PipelineRunID: pipelineRunID,
		StepRunID:     stepRunID,
		FailureReason: "Retries exhausted",
		RetryCount:    retryCount,
		Context: map[string]any{
			"step_type":   string(stepType),
			"step_number": stepNumber,
			"max_retries": maxRetries,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// Resolve marks the event resolved with optional operator notes. This is
// the only mutation a terminal PipelineRun's linked records may still
// undergo (§8 universal invariant 1).
func (e *DeadLetterEvent) Resolve(notes string) {
	now := time.Now().UTC()
	e.Resolved = true
	e.ResolvedAt = &now
	e.ResolutionNotes = notes
}

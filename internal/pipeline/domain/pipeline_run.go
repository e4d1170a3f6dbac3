package domain

import "time"

// PipelineRun tracks one end-to-end execution of the four-step agent
// sequence for a single task (§3).
type PipelineRun struct {
	ID            string
	TaskID        string
	TenantID      string
	Status        PipelineStatus
	CurrentStep   int
	PauseReasons  []PauseReason
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	PausedAt      *time.Time
	PauseExpiresAt *time.Time
	CompletedAt   *time.Time
}

// NewPipelineRun creates a fresh run at step 1 in the running state.
func NewPipelineRun(id, taskID, tenantID string) *PipelineRun {
	now := time.Now().UTC()
	return &PipelineRun{
		ID:          id,
		TaskID:      taskID,
		TenantID:    tenantID,
		Status:      PipelineStatusRunning,
		CurrentStep: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
		StartedAt:   &now,
	}
}

// CanResume implements the invariant can_resume() ⇔ |pause_reasons| = 0.
func (r *PipelineRun) CanResume() bool {
	return len(r.PauseReasons) == 0
}

// IsTerminal reports whether the run admits no further transitions.
func (r *PipelineRun) IsTerminal() bool {
	return r.Status.IsTerminal()
}

func (r *PipelineRun) hasPauseReason(reason PauseReason) bool {
	for _, pr := range r.PauseReasons {
		if pr == reason {
			return true
		}
	}
	return false
}

// AddPauseReason adds a pause reason (set semantics; a no-op if already
// present) and sets status=paused, matching the invariant
// status=paused ⇔ |pause_reasons| ≥ 1.
func (r *PipelineRun) AddPauseReason(reason PauseReason) {
	if r.hasPauseReason(reason) {
		return
	}
	r.PauseReasons = append(r.PauseReasons, reason)
	r.Status = PipelineStatusPaused
	now := time.Now().UTC()
	if r.PausedAt == nil {
		r.PausedAt = &now
	}
	r.UpdatedAt = now
}

// RemovePauseReason removes a pause reason if present. If the reason set
// becomes empty, the caller is responsible for deciding whether to resume
// (see lifecycle.Resume / approval's resume linkage) — this method only
// updates the reason set and touches updated_at, per §3's invariant that
// adding/removing a reason touches updated_at.
func (r *PipelineRun) RemovePauseReason(reason PauseReason) {
	if !r.hasPauseReason(reason) {
		return
	}
	next := make([]PauseReason, 0, len(r.PauseReasons))
	for _, pr := range r.PauseReasons {
		if pr != reason {
			next = append(next, pr)
		}
	}
	r.PauseReasons = next
	r.UpdatedAt = time.Now().UTC()
}

// Resume clears the paused state. Callers must check CanResume first.
func (r *PipelineRun) Resume() {
	r.Status = PipelineStatusRunning
	r.PausedAt = nil
	r.UpdatedAt = time.Now().UTC()
}

// IsExpired reports whether the pause has outlived pause_expires_at.
// Informational only — no sweeper transitions the run automatically
// (see Open Question decisions in DESIGN.md).
func (r *PipelineRun) IsExpired() bool {
	if r.PauseExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*r.PauseExpiresAt)
}

// Complete transitions the run to completed.
func (r *PipelineRun) Complete() {
	now := time.Now().UTC()
	r.Status = PipelineStatusCompleted
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Fail transitions the run to failed with an error message.
func (r *PipelineRun) Fail(message string) {
	now := time.Now().UTC()
	r.Status = PipelineStatusFailed
	r.ErrorMessage = message
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// Cancel transitions the run to cancelled, recording the status it had
// before cancellation (the caller persists previousStatus for the response).
func (r *PipelineRun) Cancel() (previousStatus PipelineStatus) {
	previousStatus = r.Status
	now := time.Now().UTC()
	r.Status = PipelineStatusCancelled
	r.CompletedAt = &now
	r.UpdatedAt = now
	return previousStatus
}

package domain

import (
	"fmt"
	"time"
)

// ArtifactContent is the stored shape: the text plus where it was written
// in the content sink, plus caller-supplied metadata.
type ArtifactContent struct {
	Text     string
	URL      string
	Metadata map[string]any
}

// Artifact is the persisted output of a step, versioned per
// (task_id, artifact_type) and gated by user approval (§3).
type Artifact struct {
	ID            string
	TenantID      string
	TaskID        string
	PipelineRunID string
	StepRunID     string
	ArtifactType  ArtifactType
	Status        ArtifactStatus
	Version       int
	Content       ArtifactContent
	ExtraData     map[string]any
	SupersededBy  string
	ApprovedAt    *time.Time
	RejectedAt    *time.Time
	CreatedAt     time.Time
}

// Approve transitions a draft artifact to approved. Only a draft may
// transition to approved or rejected (§3).
func (a *Artifact) Approve() error {
	switch a.Status {
	case ArtifactStatusApproved:
		return fmt.Errorf("%w", ErrAlreadyApproved)
	case ArtifactStatusRejected:
		return fmt.Errorf("%w", ErrCannotApproveRejected)
	case ArtifactStatusSuperseded:
		return fmt.Errorf("%w", ErrCannotApproveSuperseded)
	case ArtifactStatusDraft:
		now := time.Now().UTC()
		a.Status = ArtifactStatusApproved
		a.ApprovedAt = &now
		return nil
	default:
		return fmt.Errorf("artifact %s: unexpected status %s", a.ID, a.Status)
	}
}

// Reject transitions a draft artifact to rejected, storing optional feedback.
func (a *Artifact) Reject(feedback string) error {
	switch a.Status {
	case ArtifactStatusRejected:
		return fmt.Errorf("%w", ErrAlreadyRejected)
	case ArtifactStatusApproved:
		return fmt.Errorf("%w", ErrCannotRejectApproved)
	case ArtifactStatusDraft:
		now := time.Now().UTC()
		a.Status = ArtifactStatusRejected
		a.RejectedAt = &now
		if feedback != "" {
			if a.ExtraData == nil {
				a.ExtraData = map[string]any{}
			}
			a.ExtraData["rejection_feedback"] = feedback
		}
		return nil
	default:
		return fmt.Errorf("artifact %s: cannot reject from status %s", a.ID, a.Status)
	}
}

// ArchiveAsSuperseded transitions a non-latest artifact of its group to
// superseded. The caller resolves "latest" by comparing against the
// group's max version before calling this.
func (a *Artifact) ArchiveAsSuperseded(isLatest bool) error {
	if a.Status == ArtifactStatusSuperseded {
		return fmt.Errorf("%w", ErrAlreadyArchived)
	}
	if isLatest {
		return fmt.Errorf("%w", ErrCannotArchiveLatest)
	}
	a.Status = ArtifactStatusSuperseded
	return nil
}

// sentinel errors for artifact state transitions; the approval/lifecycle
// use-case layer wraps these into coded *apperr.Error values.
var (
	ErrAlreadyApproved         = fmt.Errorf("already approved")
	ErrCannotApproveRejected   = fmt.Errorf("cannot approve a rejected artifact")
	ErrCannotApproveSuperseded = fmt.Errorf("cannot approve a superseded artifact")
	ErrAlreadyRejected         = fmt.Errorf("already rejected")
	ErrCannotRejectApproved    = fmt.Errorf("cannot reject an approved artifact")
	ErrAlreadyArchived         = fmt.Errorf("already archived")
	ErrCannotArchiveLatest     = fmt.Errorf("cannot archive the latest version")
)

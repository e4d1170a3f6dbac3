// Package domain holds the pipeline engine's entities and their
// state-transition methods. These are plain structs with business rules —
// no persistence concerns live here; the repository layer maps them to rows.
package domain

// ProjectStatus is the lifecycle status of a Project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusArchived ProjectStatus = "archived"
)

// TaskStatus is the one-way lifecycle of a Task.
type TaskStatus string

const (
	TaskStatusDraft     TaskStatus = "draft"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// PipelineStatus is the status of a PipelineRun.
type PipelineStatus string

const (
	PipelineStatusRunning                   PipelineStatus = "running"
	PipelineStatusPaused                    PipelineStatus = "paused"
	PipelineStatusCompleted                 PipelineStatus = "completed"
	PipelineStatusCancelled                 PipelineStatus = "cancelled"
	PipelineStatusCancelledDueToInactivity   PipelineStatus = "cancelled_due_to_inactivity"
	PipelineStatusFailed                     PipelineStatus = "failed"
)

// IsTerminal reports whether a PipelineStatus admits no further transitions.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusCancelled, PipelineStatusCancelledDueToInactivity, PipelineStatusFailed:
		return true
	default:
		return false
	}
}

// StepStatus is the status of a PipelineStepRun.
type StepStatus string

const (
	StepStatusPending     StepStatus = "pending"
	StepStatusRunning     StepStatus = "running"
	StepStatusCompleted   StepStatus = "completed"
	StepStatusFailed      StepStatus = "failed"
	StepStatusInvalidated StepStatus = "invalidated"
	StepStatusCancelled   StepStatus = "cancelled"
)

// IsTerminal reports whether a step status is final for the step.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusInvalidated, StepStatusCancelled:
		return true
	default:
		return false
	}
}

// StepType is the fixed four-stage pipeline sequence.
type StepType string

const (
	StepTypeAnalysis     StepType = "ANALYSIS"
	StepTypeUserStories  StepType = "USER_STORIES"
	StepTypeCodeSkeleton StepType = "CODE_SKELETON"
	StepTypeTestCases    StepType = "TEST_CASES"
)

// AgentType is the kind of AI agent invoked for a step.
type AgentType string

const (
	AgentTypeArchitect AgentType = "ARCHITECT"
	AgentTypePM        AgentType = "PM"
	AgentTypeEngineer  AgentType = "ENGINEER"
	AgentTypeQA        AgentType = "QA"
)

// StepSpec is one entry of the compile-time-constant step mix (spec §9).
type StepSpec struct {
	StepNumber   int
	StepType     StepType
	AgentType    AgentType
	ArtifactType ArtifactType
}

// Steps is the fixed linear sequence every pipeline run executes.
var Steps = []StepSpec{
	{1, StepTypeAnalysis, AgentTypeArchitect, ArtifactTypeAnalysisReport},
	{2, StepTypeUserStories, AgentTypePM, ArtifactTypeUserStories},
	{3, StepTypeCodeSkeleton, AgentTypeEngineer, ArtifactTypeCodeFiles},
	{4, StepTypeTestCases, AgentTypeQA, ArtifactTypeTestSuite},
}

// AgentTypeForStep returns the agent mapped to a step type, per the fixed
// 1-to-1 mapping in §3. Returns the zero value if the step type is unknown.
func AgentTypeForStep(st StepType) AgentType {
	for _, s := range Steps {
		if s.StepType == st {
			return s.AgentType
		}
	}
	return ""
}

// ArtifactType is the type of artifact a step produces. Only the canonical
// names are accepted (see Open Question decisions in DESIGN.md); the
// lowercase legacy aliases from the source are not implemented.
type ArtifactType string

const (
	ArtifactTypeAnalysisReport ArtifactType = "ANALYSIS_REPORT"
	ArtifactTypeUserStories    ArtifactType = "USER_STORIES"
	ArtifactTypeCodeFiles      ArtifactType = "CODE_FILES"
	ArtifactTypeTestSuite      ArtifactType = "TEST_SUITE"
)

// ArtifactStatus is the status of an Artifact.
type ArtifactStatus string

const (
	ArtifactStatusDraft      ArtifactStatus = "draft"
	ArtifactStatusApproved   ArtifactStatus = "approved"
	ArtifactStatusRejected   ArtifactStatus = "rejected"
	ArtifactStatusSuperseded ArtifactStatus = "superseded"
)

// PauseReason is a machine-readable reason a pipeline is not progressing.
type PauseReason string

const (
	PauseReasonRejection            PauseReason = "REJECTION"
	PauseReasonInsufficientCredit   PauseReason = "INSUFFICIENT_CREDIT"
	PauseReasonAwaitingUserApproval PauseReason = "AWAITING_USER_APPROVAL"
)

// RetryStatus is the status of a RetryJob.
type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"
	RetryStatusProcessing RetryStatus = "processing"
	RetryStatusCompleted  RetryStatus = "completed"
	RetryStatusFailed     RetryStatus = "failed"
)

// JobStatus is the shared status enum for ExportJob and GitSyncJob.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

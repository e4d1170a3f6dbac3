package domain

import (
	"testing"
	"time"
)

func TestPipelineRunPauseReasonsDriveStatus(t *testing.T) {
	r := NewPipelineRun("run-1", "task-1", "tenant-1")

	if !r.CanResume() {
		t.Fatalf("fresh run should be resumable")
	}

	r.AddPauseReason(PauseReasonInsufficientCredit)
	if r.Status != PipelineStatusPaused {
		t.Fatalf("expected status=paused, got %s", r.Status)
	}
	if r.CanResume() {
		t.Fatalf("run with a pause reason should not be resumable")
	}

	r.AddPauseReason(PauseReasonInsufficientCredit)
	if len(r.PauseReasons) != 1 {
		t.Fatalf("adding the same reason twice must be a no-op, got %v", r.PauseReasons)
	}

	r.RemovePauseReason(PauseReasonInsufficientCredit)
	if !r.CanResume() {
		t.Fatalf("expected can_resume after removing the only pause reason")
	}
}

func TestPipelineRunTerminalStates(t *testing.T) {
	cases := []struct {
		status   PipelineStatus
		terminal bool
	}{
		{PipelineStatusRunning, false},
		{PipelineStatusPaused, false},
		{PipelineStatusCompleted, true},
		{PipelineStatusCancelled, true},
		{PipelineStatusCancelledDueToInactivity, true},
		{PipelineStatusFailed, true},
	}
	for _, tc := range cases {
		r := &PipelineRun{Status: tc.status}
		if got := r.IsTerminal(); got != tc.terminal {
			t.Errorf("status %s: IsTerminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestPipelineStepRunRetryable(t *testing.T) {
	s := NewPipelineStepRun("step-1", "run-1", Steps[0])
	s.Status = StepStatusFailed
	s.RetryCount = 2
	s.MaxRetries = 3

	if !s.IsRetryable() {
		t.Fatalf("expected retryable at retry_count < max_retries")
	}

	s.RetryCount = 3
	if s.IsRetryable() {
		t.Fatalf("expected not retryable once retry_count = max_retries")
	}
}

func TestInputSnapshotFrozenOnce(t *testing.T) {
	s := NewPipelineStepRun("step-1", "run-1", Steps[0])
	s.FreezeInputSnapshot(map[string]any{"requirement": "Build API"})
	s.FreezeInputSnapshot(map[string]any{"requirement": "should not overwrite"})

	if s.InputSnapshot["requirement"] != "Build API" {
		t.Fatalf("input snapshot must not be overwritten on retry, got %v", s.InputSnapshot)
	}
}

func TestArtifactApprovalTransitions(t *testing.T) {
	a := &Artifact{Status: ArtifactStatusDraft}
	if err := a.Approve(); err != nil {
		t.Fatalf("draft should approve cleanly: %v", err)
	}
	if a.Status != ArtifactStatusApproved || a.ApprovedAt == nil {
		t.Fatalf("expected approved status and timestamp")
	}

	if err := a.Approve(); err == nil {
		t.Fatalf("expected ALREADY_APPROVED on second approve")
	}
}

func TestArtifactArchiveLatestRejected(t *testing.T) {
	a := &Artifact{Status: ArtifactStatusApproved}
	if err := a.ArchiveAsSuperseded(true); err == nil {
		t.Fatalf("archiving the latest version must fail")
	}
	if err := a.ArchiveAsSuperseded(false); err != nil {
		t.Fatalf("archiving a non-latest version should succeed: %v", err)
	}
	if a.Status != ArtifactStatusSuperseded {
		t.Fatalf("expected superseded status")
	}
}

func TestAgentTypeForStepMapping(t *testing.T) {
	cases := map[StepType]AgentType{
		StepTypeAnalysis:     AgentTypeArchitect,
		StepTypeUserStories:  AgentTypePM,
		StepTypeCodeSkeleton: AgentTypeEngineer,
		StepTypeTestCases:    AgentTypeQA,
	}
	for st, want := range cases {
		if got := AgentTypeForStep(st); got != want {
			t.Errorf("step %s: agent = %s, want %s", st, got, want)
		}
	}
}

func TestRetryJobReadiness(t *testing.T) {
	job := &RetryJob{Status: RetryStatusPending, ScheduledAt: time.Now().UTC().Add(-time.Second)}
	if !job.IsReady() {
		t.Fatalf("expected job scheduled in the past to be ready")
	}

	job.MarkProcessing()
	if job.IsReady() {
		t.Fatalf("a processing job must not be ready")
	}
}

func TestGitSyncJobRetryResetsFields(t *testing.T) {
	j := NewGitSyncJob("gsj-1", "artifact-1", "tenant-1", "git@example.com:repo.git", "sync")
	j.Fail("push rejected")
	if !j.CanRetry() {
		t.Fatalf("expected retry allowed on first failure")
	}
	j.IncrementRetry()
	if j.Status != JobStatusPending || j.ErrorMessage != "" {
		t.Fatalf("increment retry must reset status and clear error, got %+v", j)
	}
}

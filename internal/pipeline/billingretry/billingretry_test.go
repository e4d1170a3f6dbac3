package billingretry

import (
	"context"
	"testing"
	"time"

	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
)

type fakeRetryJobRepo struct {
	jobs []*domain.RetryJob
}

func (f *fakeRetryJobRepo) Create(ctx context.Context, j *domain.RetryJob) error {
	f.jobs = append(f.jobs, j)
	return nil
}
func (f *fakeRetryJobRepo) GetByID(ctx context.Context, id string) (*domain.RetryJob, error) {
	return nil, nil
}
func (f *fakeRetryJobRepo) Update(ctx context.Context, j *domain.RetryJob) error { return nil }
func (f *fakeRetryJobRepo) ListDue(ctx context.Context, limit int) ([]*domain.RetryJob, error) {
	return nil, nil
}
func (f *fakeRetryJobRepo) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.RetryJob, error) {
	return nil, nil
}

type fakeAuditSink struct {
	events []audit.EventType
	meta   []map[string]any
}

func (f *fakeAuditSink) LogEvent(ctx context.Context, eventType audit.EventType, tenantID, userID, resourceType, resourceID string, metadata map[string]any) {
	f.events = append(f.events, eventType)
	f.meta = append(f.meta, metadata)
}

func TestHandleSchedulesRetryWithExponentialBackoff(t *testing.T) {
	jobRepo := &fakeRetryJobRepo{}
	repos := &repository.Repositories{RetryJobs: jobRepo}
	sink := &fakeAuditSink{}
	h := New(sink)

	before := time.Now().UTC()
	err := h.Handle(context.Background(), repos, "step-1", "tenant-1", 30, "run-1:step-1", 1, "connection refused")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(jobRepo.jobs) != 1 {
		t.Fatalf("expected one retry job, got %d", len(jobRepo.jobs))
	}
	job := jobRepo.jobs[0]
	if job.RetryAttempt != 2 {
		t.Fatalf("retry_attempt = %d, want 2 (retryAttempt+1)", job.RetryAttempt)
	}
	wantDelay := 120 * time.Second // 60 * 2^1
	gotDelay := job.ScheduledAt.Sub(before)
	if gotDelay < wantDelay-time.Second || gotDelay > wantDelay+time.Second {
		t.Fatalf("delay = %v, want ~%v", gotDelay, wantDelay)
	}

	if len(sink.events) != 1 || sink.events[0] != audit.EventBillingUnavailable {
		t.Fatalf("expected a billing_unavailable audit event, got %v", sink.events)
	}
}

func TestHandleReturnsMaxRetriesExceededPastCeiling(t *testing.T) {
	jobRepo := &fakeRetryJobRepo{}
	repos := &repository.Repositories{RetryJobs: jobRepo}
	h := New(&fakeAuditSink{})

	err := h.Handle(context.Background(), repos, "step-1", "tenant-1", 30, "run-1:step-1", 5, "still down")
	if err == nil {
		t.Fatalf("expected an error once retry_attempt reaches the ceiling")
	}
	if len(jobRepo.jobs) != 0 {
		t.Fatalf("expected no retry job to be scheduled past the ceiling")
	}
}

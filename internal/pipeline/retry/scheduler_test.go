package retry

import (
	"context"
	"testing"
	"time"

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
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, nil
}
func (f *fakeRetryJobRepo) Update(ctx context.Context, j *domain.RetryJob) error { return nil }
func (f *fakeRetryJobRepo) ListDue(ctx context.Context, limit int) ([]*domain.RetryJob, error) {
	var due []*domain.RetryJob
	for _, j := range f.jobs {
		if j.IsReady() {
			due = append(due, j)
		}
	}
	return due, nil
}
func (f *fakeRetryJobRepo) GetLatestByStepRun(ctx context.Context, stepRunID string) (*domain.RetryJob, error) {
	var latest *domain.RetryJob
	for _, j := range f.jobs {
		if j.StepRunID == stepRunID && (latest == nil || j.CreatedAt.After(latest.CreatedAt)) {
			latest = j
		}
	}
	return latest, nil
}

func TestScheduleRetryDelayDoublesWithRetryCount(t *testing.T) {
	jobRepo := &fakeRetryJobRepo{}
	repos := &repository.Repositories{RetryJobs: jobRepo}
	s := NewScheduler()

	cases := []struct {
		retryCount    int
		wantDelaySecs int
	}{
		{0, 1},
		{1, 2},
		{2, 4},
		{3, 8},
	}

	for _, c := range cases {
		before := time.Now().UTC()
		if err := s.ScheduleRetry(context.Background(), repos, "step-1", c.retryCount); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		job := jobRepo.jobs[len(jobRepo.jobs)-1]
		if job.RetryAttempt != c.retryCount {
			t.Fatalf("retry_attempt = %d, want %d", job.RetryAttempt, c.retryCount)
		}
		gotDelay := job.ScheduledAt.Sub(before)
		wantDelay := time.Duration(c.wantDelaySecs) * time.Second
		if gotDelay < wantDelay-time.Second || gotDelay > wantDelay+time.Second {
			t.Fatalf("retry_count=%d: delay = %v, want ~%v", c.retryCount, gotDelay, wantDelay)
		}
		if job.Status != domain.RetryStatusPending {
			t.Fatalf("status = %v, want pending", job.Status)
		}
	}
}

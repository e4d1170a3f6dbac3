// Package retry implements RetryScheduler (§4.10) and RetryWorker (§4.11):
// persisting a deferred re-execution for a failed step, then polling for
// due jobs and re-driving them through the same step-execution path the
// main executor uses.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
)

// Scheduler persists RetryJob rows. It implements executor.RetryScheduler
// structurally — no import of the executor package is needed here, only
// the matching method signature.
type Scheduler struct{}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// ScheduleRetry persists a RetryJob with delay_seconds = 2^retryCount
// (0→1s, 1→2s, 2→4s, 3→8s, per §4.10's own worked example). retryCount is
// the step's retry_count AS OF THE FAILURE, before the caller increments
// it — the caller (executor/worker) increments the step's counter in the
// same transaction after this call succeeds.
func (s *Scheduler) ScheduleRetry(ctx context.Context, repos *repository.Repositories, stepRunID string, retryCount int) error {
	delay := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	job := &domain.RetryJob{
		ID:           uuid.New().String(),
		StepRunID:    stepRunID,
		RetryAttempt: retryCount,
		ScheduledAt:  time.Now().UTC().Add(delay),
		Status:       domain.RetryStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	return repos.RetryJobs.Create(ctx, job)
}

// Package billingretry implements the billing-unavailable handler (§4.12):
// when the billing peer cannot be reached after its own internal retries,
// this is the escalation path that schedules a coarser, longer-backoff
// retry of just the billing call rather than surfacing the failure to the
// caller immediately. Grounded on retry's own RetryJob persistence shape.
package billingretry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pipelineengine/internal/pipeline/audit"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/apperr"
)

// maxRetries is the billing-unavailable escalation path's own ceiling,
// independent of a step's agent-failure MaxRetries (§4.12): five attempts
// at consuming credits before the pipeline is abandoned outright.
const maxRetries = 5

// Handler schedules a deferred re-attempt of a billing consume call and
// records the escalation as an audit event. It implements
// executor.BillingUnavailableHandler structurally.
type Handler struct {
	audit audit.Sink
}

func New(auditSink audit.Sink) *Handler {
	return &Handler{audit: auditSink}
}

// Handle runs the §4.12 sequence: past the retry ceiling it returns
// MAX_RETRIES_EXCEEDED: the caller is expected to fail the pipeline.
// Otherwise it persists a RetryJob with exponential backoff seeded at 60s
// (60 * 2^retryAttempt) and emits a billing_unavailable audit event.
func (h *Handler) Handle(ctx context.Context, repos *repository.Repositories, stepRunID, tenantID string, amount float64, idempotencyKey string, retryAttempt int, errorMessage string) error {
	if retryAttempt >= maxRetries {
		return apperr.CodeConflictErr(apperr.CodeMaxRetriesExceed, "billing retry attempts exhausted")
	}

	nextAttempt := retryAttempt + 1
	delay := time.Duration(60) * time.Second
	for i := 0; i < retryAttempt; i++ {
		delay *= 2
	}
	scheduledAt := time.Now().UTC().Add(delay)

	job := &domain.RetryJob{
		ID:           uuid.New().String(),
		StepRunID:    stepRunID,
		RetryAttempt: nextAttempt,
		ScheduledAt:  scheduledAt,
		Status:       domain.RetryStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repos.RetryJobs.Create(ctx, job); err != nil {
		return apperr.Wrap(apperr.KindInternal, apperr.CodeRetryJobCreateErr, "failed to schedule billing retry", err)
	}

	h.audit.LogEvent(ctx, audit.EventBillingUnavailable, tenantID, "", "pipeline_step_run", stepRunID, map[string]any{
		"amount":          amount,
		"idempotency_key": idempotencyKey,
		"retry_attempt":   nextAttempt,
		"scheduled_at":    scheduledAt,
		"delay_seconds":   int(delay.Seconds()),
		"error_message":   errorMessage,
	})

	return nil
}

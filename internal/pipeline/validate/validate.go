// Package validate implements the pre-flight Validator (§4.2): is this
// task eligible to run, given its fixed MVP cost and the tenant's current
// balance. Grounded on internal/services/service/service.go's
// validate-then-decide shape (load, compute, check, return a structured
// result rather than a side effect).
package validate

import (
	"context"
	"errors"
	"fmt"

	"pipelineengine/internal/pipeline/billing"
	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/internal/pipeline/repository"
	"pipelineengine/platform/apperr"
)

// stepCostCredits mirrors agentexec's per-agent-type cost table. It is
// redefined here rather than imported to keep validate decoupled from the
// executor package; both packages derive from the same fixed 150-credit
// MVP total named in §4.2.
var stepCostCredits = map[domain.AgentType]float64{
	domain.AgentTypeArchitect: 30,
	domain.AgentTypePM:        30,
	domain.AgentTypeEngineer:  60,
	domain.AgentTypeQA:        30,
}

// EstimatedCost is the hardcoded MVP total across all four steps.
func EstimatedCost() float64 {
	var total float64
	for _, cost := range stepCostCredits {
		total += cost
	}
	return total
}

// Result is the outcome of a pre-flight check.
type Result struct {
	Eligible       bool
	EstimatedCost  float64
	CurrentBalance float64
	Reason         string
}

// Validator checks whether a task's tenant can afford the fixed step
// sequence before a run is started.
type Validator struct {
	repos   *repository.Repositories
	billing billing.Client
}

func New(repos *repository.Repositories, billingClient billing.Client) *Validator {
	return &Validator{repos: repos, billing: billingClient}
}

// Validate runs the §4.2 sequence: look up the task scoped to tenantID
// (TASK_NOT_FOUND if absent, without revealing cross-tenant existence),
// compute the fixed cost, fetch the tenant's balance, and decide
// eligibility.
func (v *Validator) Validate(ctx context.Context, taskID, tenantID string) (*Result, error) {
	task, err := v.repos.Tasks.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	_ = task

	estimatedCost := EstimatedCost()

	balance, err := v.billing.Balance(ctx, tenantID)
	if err != nil {
		if errors.Is(err, billing.ErrServiceUnavailable) {
			return nil, apperr.CodeUnavailableErr(apperr.CodeBillingUnavail, "billing service unavailable")
		}
		return nil, apperr.CodeInternalErr(apperr.CodeBalanceCheckFail, "failed to check balance")
	}

	result := &Result{
		EstimatedCost:  estimatedCost,
		CurrentBalance: balance.Balance,
		Eligible:       balance.Balance >= estimatedCost,
	}
	if !result.Eligible {
		result.Reason = fmt.Sprintf("Insufficient credits. Required: %v, Available: %v", estimatedCost, balance.Balance)
	}
	return result, nil
}

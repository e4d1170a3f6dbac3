package domain

import "time"

// AgentRun records one AI agent invocation for a step (§3).
type AgentRun struct {
	ID                   string
	StepRunID            string
	AgentType            AgentType
	Model                string
	PromptTokens         int
	CompletionTokens     int
	EstimatedCostCredits float64
	ActualCostCredits    float64
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

// Complete records token counts and cost once the agent call returns.
func (a *AgentRun) Complete(promptTokens, completionTokens int, estimatedCost, actualCost float64) {
	now := time.Now().UTC()
	a.PromptTokens = promptTokens
	a.CompletionTokens = completionTokens
	a.EstimatedCostCredits = estimatedCost
	a.ActualCostCredits = actualCost
	a.CompletedAt = &now
}

package agentexec

import (
	"context"
	"fmt"

	"pipelineengine/internal/pipeline/domain"
)

// stepCostCredits is the per-step share of the hardcoded 150-credit MVP
// total (§4.2), mirrored here so the mock executor's estimated cost lines
// up with Validator's balance check without importing it.
var stepCostCredits = map[domain.AgentType]float64{
	domain.AgentTypeArchitect: 30,
	domain.AgentTypePM:        30,
	domain.AgentTypeEngineer:  60,
	domain.AgentTypeQA:        30,
}

// MockExecutor is a deterministic stand-in for a real agent backend. It
// never calls out to the network, making it the default for tests and for
// AGENT_EXECUTOR_KIND=mock deployments. Output shape is intentionally
// minimal — a single text field plus the inputs it was given — since the
// spec's contract only requires a non-empty mapping.
type MockExecutor struct{}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{}
}

func (e *MockExecutor) Execute(ctx context.Context, agentType domain.AgentType, inputs map[string]any) (*Result, error) {
	cost, ok := stepCostCredits[agentType]
	if !ok {
		return nil, fmt.Errorf("mock executor: unknown agent type %q", agentType)
	}

	text := fmt.Sprintf("%s output generated from %d input field(s)", agentType, len(inputs))

	return &Result{
		Output: map[string]any{
			"text":       text,
			"agent_type": string(agentType),
		},
		PromptTokens:         100 + len(inputs)*10,
		CompletionTokens:     80,
		EstimatedCostCredits: cost,
	}, nil
}

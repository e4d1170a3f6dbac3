// Package agentexec implements the AgentExecutor contract (§6.2): a single
// call per step that turns a merged input snapshot into agent output plus
// token/cost accounting. Failures raise — the executor encodes no error
// codes of its own (that's the caller's job).
package agentexec

import (
	"context"

	"pipelineengine/internal/pipeline/domain"
)

// Result is the executor's output for one step invocation.
type Result struct {
	Output               map[string]any
	PromptTokens         int
	CompletionTokens     int
	EstimatedCostCredits float64
}

// Executor runs one agent invocation for a pipeline step.
type Executor interface {
	Execute(ctx context.Context, agentType domain.AgentType, inputs map[string]any) (*Result, error)
}

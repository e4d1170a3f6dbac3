package agentexec

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"pipelineengine/internal/pipeline/domain"
	"pipelineengine/platform/ai/moonshot"
	"pipelineengine/platform/config"
)

// agentInstructions gives each AgentType a short system framing. The spec
// explicitly excludes prompt-authorship heuristics beyond this (§1
// Non-goals) — these are fixed strings, not a templating system.
var agentInstructions = map[domain.AgentType]string{
	domain.AgentTypeArchitect: "You are a software architect. Analyze the requirement and produce a concise analysis report.",
	domain.AgentTypePM:        "You are a product manager. Turn the requirement into a list of user stories.",
	domain.AgentTypeEngineer:  "You are a software engineer. Produce a code skeleton satisfying the requirement.",
	domain.AgentTypeQA:        "You are a QA engineer. Produce a test case suite covering the requirement.",
}

// LLMExecutor calls a Moonshot/Kimi-compatible chat model directly through
// the ADK model.LLM interface, bypassing the llmagent/runner/session
// machinery the teacher's estimator agent uses — a pipeline step is a
// single request/response, not a multi-turn tool-calling conversation.
type LLMExecutor struct {
	kimi *moonshot.KimiModel
}

func NewLLMExecutor(cfg config.AgentConfig) *LLMExecutor {
	return &LLMExecutor{
		kimi: moonshot.NewModel(moonshot.Config{
			APIKey:          cfg.GetMoonshotAPIKey(),
			Model:           cfg.GetAgentModel(),
			DisableThinking: true,
		}),
	}
}

func (e *LLMExecutor) Execute(ctx context.Context, agentType domain.AgentType, inputs map[string]any) (*Result, error) {
	instruction, ok := agentInstructions[agentType]
	if !ok {
		return nil, fmt.Errorf("llm executor: unknown agent type %q", agentType)
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("llm executor: marshal inputs: %w", err)
	}
	prompt := instruction + "\n\nInput:\n" + string(inputsJSON)

	req := &model.LLMRequest{
		Contents: []*genai.Content{
			{Role: genai.RoleUser, Parts: []*genai.Part{genai.NewPartFromText(prompt)}},
		},
	}

	var output string
	var genErr error
	for resp, err := range e.kimi.GenerateContent(ctx, req, false) {
		if err != nil {
			genErr = err
			break
		}
		if resp != nil && resp.Content != nil {
			for _, part := range resp.Content.Parts {
				output += part.Text
			}
		}
	}
	if genErr != nil {
		return nil, fmt.Errorf("llm executor: generate content: %w", genErr)
	}
	if output == "" {
		return nil, fmt.Errorf("llm executor: empty response for agent type %q", agentType)
	}

	// moonshot.KimiModel doesn't surface provider usage counts (see its
	// openAIResponse, which has no usage field), so token counts are
	// estimated from text length rather than read off the wire.
	promptTokens := len(prompt) / 4
	completionTokens := len(output) / 4

	return &Result{
		Output: map[string]any{
			"text":       output,
			"agent_type": string(agentType),
		},
		PromptTokens:         promptTokens,
		CompletionTokens:     completionTokens,
		EstimatedCostCredits: stepCostCredits[agentType],
	}, nil
}

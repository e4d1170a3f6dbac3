package agentexec

import (
	"context"
	"testing"

	"pipelineengine/internal/pipeline/domain"
)

func TestMockExecutorDeterministicCostPerAgentType(t *testing.T) {
	e := NewMockExecutor()

	cases := []struct {
		agentType domain.AgentType
		wantCost  float64
	}{
		{domain.AgentTypeArchitect, 30},
		{domain.AgentTypePM, 30},
		{domain.AgentTypeEngineer, 60},
		{domain.AgentTypeQA, 30},
	}

	var total float64
	for _, tc := range cases {
		result, err := e.Execute(context.Background(), tc.agentType, map[string]any{"requirement": "Build API"})
		if err != nil {
			t.Fatalf("agent type %s: unexpected error: %v", tc.agentType, err)
		}
		if result.EstimatedCostCredits != tc.wantCost {
			t.Errorf("agent type %s: cost = %v, want %v", tc.agentType, result.EstimatedCostCredits, tc.wantCost)
		}
		if result.PromptTokens+result.CompletionTokens == 0 {
			t.Errorf("agent type %s: expected non-zero token counts", tc.agentType)
		}
		total += result.EstimatedCostCredits
	}

	if total != 150 {
		t.Fatalf("total MVP cost across all four steps = %v, want 150", total)
	}
}

func TestMockExecutorRejectsUnknownAgentType(t *testing.T) {
	e := NewMockExecutor()
	if _, err := e.Execute(context.Background(), domain.AgentType("UNKNOWN"), map[string]any{}); err == nil {
		t.Fatalf("expected error for unknown agent type")
	}
}

package agentexec

import "pipelineengine/platform/config"

// New selects the configured Executor implementation. "mock" (the default)
// never leaves the process; "llm" calls out to Moonshot/Kimi.
func New(cfg config.AgentConfig) Executor {
	if cfg.GetAgentExecutorKind() == "llm" {
		return NewLLMExecutor(cfg)
	}
	return NewMockExecutor()
}

package agents

import "time"

// AgentConfig is the configuration snapshot attached to an Agent Record
// (spec.md §3) and consulted by the Agent Executor (C8) before dispatching
// a request: whether the agent is enabled, its instance cap, timeout,
// retry policy, and dispatch priority.
type AgentConfig struct {
	Enabled       bool           `yaml:"enabled"`
	MaxInstances  int            `yaml:"max_instances"`
	Timeout       time.Duration  `yaml:"timeout"`
	RetryAttempts int            `yaml:"retry_attempts"`
	Priority      Priority       `yaml:"priority"`
	Resources     ResourceLimits `yaml:"resources"`
}

// DefaultAgentConfig returns conservative defaults for a newly registered agent.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Enabled:       true,
		MaxInstances:  1,
		Timeout:       2 * time.Minute,
		RetryAttempts: 3,
		Priority:      PriorityMedium,
		Resources: ResourceLimits{
			MaxMemoryMB:   512,
			MaxCPUPercent: 100,
		},
	}
}

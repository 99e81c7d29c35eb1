package main

import (
	"context"
	"fmt"

	"github.com/agentfabric/coordinator/pkg/agents"
)

// echoAgent is the minimal stand-in implementation of pkg/agents.Agent
// that `fabricd agents demo` registers so C8's executor has something
// real to dispatch a Request against from the CLI. A production
// deployment would register agents backed by whatever the agent actually
// does (a model call, a shell task runner, a remote worker); this one
// just echoes its task payload back, which is enough to exercise
// AgentRegistry -> Executor -> Agent end to end.
type echoAgent struct {
	id     agents.AgentID
	status agents.AgentStatus
}

func newEchoAgent(agents.AgentConfig) (agents.Agent, error) {
	return &echoAgent{status: agents.StatusIdle}, nil
}

func (a *echoAgent) GetID() agents.AgentID { return a.id }

func (a *echoAgent) GetStatus() agents.AgentStatus { return a.status }

func (a *echoAgent) Start(ctx context.Context) error {
	a.status = agents.StatusIdle
	return nil
}

func (a *echoAgent) Stop(ctx context.Context) error {
	a.status = agents.StatusOffline
	return nil
}

func (a *echoAgent) ProcessMessage(ctx context.Context, msg *agents.AgentMessage) error {
	a.status = agents.StatusBusy
	defer func() { a.status = agents.StatusIdle }()

	fmt.Printf("echo[%s]: %v\n", msg.Type, msg.Payload)
	return nil
}

func (a *echoAgent) GetCapabilities() []string { return []string{"echo"} }

func (a *echoAgent) HealthCheck(ctx context.Context) error { return nil }

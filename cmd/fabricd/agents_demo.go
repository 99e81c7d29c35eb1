package main

import (
	"fmt"
	"time"

	"github.com/agentfabric/coordinator/pkg/agents"
	"github.com/agentfabric/coordinator/pkg/executor"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Exercise the agent registry and executor directly",
}

var agentsDemoCmd = &cobra.Command{
	Use:   "demo [agent-id] [payload]",
	Short: "Register an echo agent and dispatch one task to it through the executor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := agents.AgentID(args[0])
		payload := args[1]

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close()

		if err := rt.agentReg.RegisterFactory(agentID, newEchoAgent); err != nil {
			return fmt.Errorf("register factory: %w", err)
		}
		if err := rt.agentReg.CreateAgent(agentID, agents.DefaultAgentConfig()); err != nil {
			return fmt.Errorf("create agent: %w", err)
		}
		if err := rt.agentReg.StartAgent(cmd.Context(), agentID); err != nil {
			return fmt.Errorf("start agent: %w", err)
		}

		req := executor.Request{
			ID:      uuid.NewString(),
			AgentID: agentID,
			Task: &agents.AgentMessage{
				ID:        uuid.NewString(),
				Type:      agents.MessageType("task_dispatch"),
				Payload:   payload,
				Timestamp: time.Now(),
			},
		}

		record, err := rt.agentExec.Execute(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("execute: %w", err)
		}

		fmt.Printf("execution %s: success=%t attempts=%d duration=%s\n",
			record.ID, record.Success, record.Attempts, record.FinishedAt.Sub(record.StartedAt))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsDemoCmd)
}

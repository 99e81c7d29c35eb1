package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var leaveCmd = &cobra.Command{
	Use:   "leave [agent-id]",
	Short: "Remove an agent from the fabric, releasing its locks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := args[0]

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close()

		released, err := rt.coordinator.AgentLeave(agentID)
		if err != nil {
			return fmt.Errorf("leave %s: %w", agentID, err)
		}

		if len(released) == 0 {
			fmt.Printf("agent %s left (no locks held)\n", agentID)
		} else {
			fmt.Printf("agent %s left, released locks: %s\n", agentID, strings.Join(released, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(leaveCmd)
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var joinCmd = &cobra.Command{
	Use:   "join [agent-id]",
	Short: "Admit an agent into the fabric",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := args[0]

		caps, err := cmd.Flags().GetStringSlice("capabilities")
		if err != nil {
			return err
		}

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close()

		rec, err := rt.coordinator.AgentJoin(agentID, caps, map[string]interface{}{})
		if err != nil {
			return fmt.Errorf("join %s: %w", agentID, err)
		}

		fmt.Printf("agent %s joined (state=%s, capabilities=%s)\n", rec.ID, rec.State, strings.Join(rec.Capabilities, ","))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(joinCmd)
	joinCmd.Flags().StringSlice("capabilities", nil, "comma-separated capability tags for the joining agent")
}

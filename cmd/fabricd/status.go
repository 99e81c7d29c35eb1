package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a snapshot of the fabric, or watch it live with --watch",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, err := cmd.Flags().GetBool("watch")
		if err != nil {
			return err
		}

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close()

		if watch {
			return runStatusTUI(rt)
		}

		printStatus(rt)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("watch", false, "open a live-updating terminal view")
}

func printStatus(rt *runtime) {
	st := rt.coordinator.GetStatus()

	fmt.Printf("agents (%d):\n", len(st.Agents))
	for _, a := range st.Agents {
		fmt.Printf("  %-20s %-12s locks=%v\n", a.ID, a.State, a.HeldLocks)
	}

	fmt.Printf("locks (%d):\n", len(st.Locks))
	for _, l := range st.Locks {
		fmt.Printf("  %-20s held by %s until %s\n", l.ScopePath, l.HolderID, l.ExpiresAt.Format("15:04:05"))
	}

	fmt.Printf("syncs (%d):\n", len(st.Syncs))
	for scope, status := range st.Syncs {
		fmt.Printf("  %-20s %s\n", scope, status)
	}

	if len(st.Violations) > 0 {
		fmt.Printf("safety violations (%d):\n", len(st.Violations))
		for _, v := range st.Violations {
			fmt.Printf("  %s\n", v.String())
		}
	}

	stalls := rt.coordinator.CheckProgress()
	if len(stalls) > 0 {
		fmt.Printf("stalled agents (%d):\n", len(stalls))
		for _, s := range stalls {
			fmt.Printf("  %-20s blocked %s\n", s.AgentID, s.Blocked)
		}
	}
}

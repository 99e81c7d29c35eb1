package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage cross-scope syncs",
}

var syncAddCmd = &cobra.Command{
	Use:   "add [scope-path]",
	Short: "Register a scope with the sync coordinator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := cmd.Flags().GetStringSlice("depends-on")
		if err != nil {
			return err
		}
		scopePath := normalizeScopePath(args[0])

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.coordinator.AddSyncScope(scopePath, deps); err != nil {
			return fmt.Errorf("register scope %s: %w", scopePath, err)
		}
		fmt.Printf("registered scope %s (depends on: %v)\n", scopePath, deps)
		return nil
	},
}

var syncStartCmd = &cobra.Command{
	Use:   "start [scope-path]",
	Short: "Start a sync for a scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopePath := normalizeScopePath(args[0])

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.coordinator.Sync(scopePath); err != nil {
			return fmt.Errorf("start sync for %s: %w", scopePath, err)
		}
		fmt.Printf("sync started for %s\n", scopePath)
		return nil
	},
}

var syncCompleteCmd = &cobra.Command{
	Use:   "complete [scope-path]",
	Short: "Mark a sync complete",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopePath := normalizeScopePath(args[0])

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.coordinator.CompleteSync(scopePath); err != nil {
			return fmt.Errorf("complete sync for %s: %w", scopePath, err)
		}
		fmt.Printf("sync completed for %s\n", scopePath)
		return nil
	},
}

var syncFailCmd = &cobra.Command{
	Use:   "fail [scope-path] [reason]",
	Short: "Mark a sync failed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopePath := normalizeScopePath(args[0])
		reason := args[1]

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.coordinator.FailSync(scopePath, reason); err != nil {
			return fmt.Errorf("fail sync for %s: %w", scopePath, err)
		}
		fmt.Printf("sync failed for %s: %s\n", scopePath, reason)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncAddCmd, syncStartCmd, syncCompleteCmd, syncFailCmd)
	syncAddCmd.Flags().StringSlice("depends-on", nil, "scope paths this scope must sync after")
}

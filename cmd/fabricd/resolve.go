package main

import (
	"fmt"
	"strings"

	"github.com/agentfabric/coordinator/pkg/conflict"
	"github.com/spf13/cobra"
)

// resolveCmd exercises C6 directly from the CLI: seed a dependency's known
// versions, describe each scope's semver range requirement, and print
// what the Conflict Resolver picks (or why it couldn't).
var resolveCmd = &cobra.Command{
	Use:   "resolve [dependency-name]",
	Short: "Resolve a dependency's version across scopes",
	Long: `resolve seeds a dependency's known versions and a set of per-scope
semver range requirements, then runs the Conflict Resolver against them.

Example:
  fabricd resolve left-pad \
    --version 1.0.0 --version 1.2.0 --version 2.0.0 \
    --require "svc-a=^1.0.0" --require "svc-b=^1.2.0"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		versions, err := cmd.Flags().GetStringSlice("version")
		if err != nil {
			return err
		}
		requirements, err := cmd.Flags().GetStringSlice("require")
		if err != nil {
			return err
		}
		if len(requirements) == 0 {
			return fmt.Errorf("at least one --require scope=range pair is needed")
		}

		rt, err := newRuntime(activeConfig, contentDir)
		if err != nil {
			return fmt.Errorf("start runtime: %w", err)
		}
		defer rt.Close()

		rt.registry.Seed(name, versions)

		specs := make([]conflict.Spec, 0, len(requirements))
		for _, req := range requirements {
			scope, rangeExpr, ok := strings.Cut(req, "=")
			if !ok {
				return fmt.Errorf("invalid --require %q, expected scope=range", req)
			}

			constraint, err := conflict.ParseRangeConstraint(rangeExpr)
			if err != nil {
				return fmt.Errorf("scope %s: %w", scope, err)
			}

			specs = append(specs, conflict.Spec{
				DependencyName: name,
				ScopePath:      normalizeScopePath(scope),
				Constraint:     constraint,
			})
		}

		result, err := rt.resolver.ResolveConflicts(specs)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", name, err)
		}

		if resolved, ok := result.ResolvedDependencies[name]; ok {
			fmt.Printf("resolved %s -> %s\n", name, resolved)
		} else {
			fmt.Printf("no resolution selected for %s\n", name)
		}
		for _, c := range result.DetectedConflicts {
			fmt.Printf("conflict: %s\n", c.Type)
		}
		for _, w := range result.Warnings {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringSlice("version", nil, "a known version of the dependency (repeatable)")
	resolveCmd.Flags().StringSlice("require", nil, "scope=semver-range requirement (repeatable)")
}

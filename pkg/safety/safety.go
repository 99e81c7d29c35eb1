// Package safety implements the coordination runtime's post-mutation
// invariant checks: a pure, stateless pass over a point-in-time snapshot of
// the fabric that never mutates state and never blocks. The Coordination
// Service facade (pkg/coordination) runs a Validator after every mutating
// call and rolls the mutation back if any check fails.
package safety

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ViolationKind classifies which invariant a Violation breaks.
type ViolationKind string

const (
	// ViolationConcurrencyCap reports more active agents than the fabric allows.
	ViolationConcurrencyCap ViolationKind = "concurrency_cap"
	// ViolationLockConsistency reports a lock whose holder is not a known agent.
	ViolationLockConsistency ViolationKind = "lock_consistency"
	// ViolationSyncCycle reports a cycle in the sync dependency graph.
	ViolationSyncCycle ViolationKind = "sync_cycle"
	// ViolationSyncStatus reports a sync record whose dependencies contradict its status.
	ViolationSyncStatus ViolationKind = "sync_status"
	// ViolationContent reports scope content that failed to parse as YAML.
	ViolationContent ViolationKind = "content"
)

// Violation is a single invariant breach found in a Snapshot.
type Violation struct {
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// AgentSnapshot is the subset of Agent Record state the validator needs.
type AgentSnapshot struct {
	ID          string
	Active      bool
	HeldLocks   []string
}

// LockSnapshot is the subset of Scope Lock state the validator needs.
type LockSnapshot struct {
	ScopePath string
	HolderID  string
}

// SyncSnapshot is the subset of Sync Record state the validator needs.
type SyncSnapshot struct {
	ScopePath    string
	Status       string
	Dependencies []string
}

// Snapshot is a point-in-time, read-only view of the fabric assembled by
// the Coordination Service immediately after a mutation. It holds no
// locks of its own and is safe to pass across goroutines.
type Snapshot struct {
	Agents             []AgentSnapshot
	Locks              []LockSnapshot
	Syncs              []SyncSnapshot
	MaxConcurrentAgents int
	// ScopeContent holds raw scope file bytes keyed by scope path, for the
	// content-sanity check. Scopes with no content registered are skipped.
	ScopeContent map[string][]byte
}

// Validator runs the fixed set of fabric-wide invariant checks against a
// Snapshot. It carries no state of its own: two Validators with the same
// config applied to the same Snapshot always produce the same Violations.
type Validator struct{}

// NewValidator returns a stateless safety Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Check runs every invariant check against snap, always in the same
// order, and returns every Violation found. Violations from the sync-cycle
// and content checks follow map iteration order and are not sorted. A
// nil/empty result means the snapshot is safe.
func (v *Validator) Check(snap Snapshot) []Violation {
	var violations []Violation
	violations = append(violations, checkConcurrencyCap(snap)...)
	violations = append(violations, checkLockConsistency(snap)...)
	violations = append(violations, checkSyncAcyclic(snap)...)
	violations = append(violations, checkSyncStatusConsistency(snap)...)
	violations = append(violations, checkContentSanity(snap)...)
	return violations
}

func checkConcurrencyCap(snap Snapshot) []Violation {
	if snap.MaxConcurrentAgents <= 0 {
		return nil
	}
	active := 0
	for _, a := range snap.Agents {
		if a.Active {
			active++
		}
	}
	if active > snap.MaxConcurrentAgents {
		return []Violation{{
			Kind:   ViolationConcurrencyCap,
			Detail: fmt.Sprintf("%d active agents exceeds cap of %d", active, snap.MaxConcurrentAgents),
		}}
	}
	return nil
}

func checkLockConsistency(snap Snapshot) []Violation {
	known := make(map[string]struct{}, len(snap.Agents))
	for _, a := range snap.Agents {
		known[a.ID] = struct{}{}
	}

	var violations []Violation
	for _, l := range snap.Locks {
		if l.HolderID == "" {
			continue
		}
		if _, ok := known[l.HolderID]; !ok {
			violations = append(violations, Violation{
				Kind:   ViolationLockConsistency,
				Detail: fmt.Sprintf("lock on %q held by unknown agent %q", l.ScopePath, l.HolderID),
			})
		}
	}
	return violations
}

func checkSyncAcyclic(snap Snapshot) []Violation {
	graph := make(map[string][]string, len(snap.Syncs))
	for _, s := range snap.Syncs {
		graph[s.ScopePath] = s.Dependencies
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))

	var violations []Violation
	var dfs func(node string) bool
	dfs = func(node string) bool {
		color[node] = gray
		for _, dep := range graph[node] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if dfs(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	for node := range graph {
		if color[node] == white {
			if dfs(node) {
				violations = append(violations, Violation{
					Kind:   ViolationSyncCycle,
					Detail: fmt.Sprintf("sync dependency graph contains a cycle reachable from %q", node),
				})
			}
		}
	}
	return violations
}

func checkSyncStatusConsistency(snap Snapshot) []Violation {
	status := make(map[string]string, len(snap.Syncs))
	for _, s := range snap.Syncs {
		status[s.ScopePath] = s.Status
	}

	var violations []Violation
	for _, s := range snap.Syncs {
		if s.Status != "Syncing" {
			continue
		}
		for _, dep := range s.Dependencies {
			if status[dep] != "Completed" {
				violations = append(violations, Violation{
					Kind: ViolationSyncStatus,
					Detail: fmt.Sprintf(
						"%q is Syncing but dependency %q is %q, not Completed",
						s.ScopePath, dep, status[dep],
					),
				})
			}
		}
	}
	return violations
}

func checkContentSanity(snap Snapshot) []Violation {
	var violations []Violation
	for scope, content := range snap.ScopeContent {
		if len(content) == 0 {
			continue
		}
		var probe interface{}
		if err := yaml.Unmarshal(content, &probe); err != nil {
			violations = append(violations, Violation{
				Kind:   ViolationContent,
				Detail: fmt.Sprintf("scope %q content failed to parse: %v", scope, err),
			})
		}
	}
	return violations
}

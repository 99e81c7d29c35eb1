// Package syncfabric implements the coordination runtime's Sync
// Coordinator (spec.md §4.4): the dependency-aware scope sync state
// machine, queue, and history. It is a direct, faithful port of
// original_source's SyncCoordinator (src/agent/coordination.rs):
// add_scope/remove_scope/start_sync/complete_sync/fail_sync/reset_sync,
// the priority-and-dependency-ready sync queue, cascading auto-start of
// dependents, and bounded history, all renamed onto Go idiom and
// pkg/errors' Kind taxonomy in place of the Rust SyncError enum.
package syncfabric

import (
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Status is a Sync Record's state (spec.md §3).
type Status string

const (
	StatusIdle      Status = "Idle"
	StatusSyncing   Status = "Syncing"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
)

// Priority orders queued sync operations; higher values run first among
// operations whose dependencies are ready.
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 1
	PriorityHigh     Priority = 2
	PriorityCritical Priority = 3
)

// Operation is a queued request to sync a scope, carrying the
// dependencies known at enqueue time and its retry count.
type Operation struct {
	ScopePath    string
	Priority     Priority
	CreatedAt    time.Time
	Dependencies []string
	RetryCount   int
}

// Event is one entry in a scope's sync history.
type Event struct {
	Timestamp time.Time
	ScopePath string
	From      *Status
	To        Status
	Reason    string
	Err       string
}

// Statistics summarizes the coordinator's current state.
type Statistics struct {
	TotalScopes int
	Idle        int
	Syncing     int
	Completed   int
	Failed      int
	QueueSize   int
}

// Coordinator owns sync status, the dependency graph, the pending queue,
// and history for every known scope.
type Coordinator struct {
	mu sync.Mutex

	clock clock.Clock

	status       map[string]Status
	dependencies map[string][]string
	queue        []Operation
	history      []Event

	maxRetryAttempts int
	maxQueueSize     int
	maxHistory       int
}

// New returns a Sync Coordinator. maxRetryAttempts and maxQueueSize mirror
// original_source's defaults (3 and 1000) when given as 0.
func New(clk clock.Clock, maxRetryAttempts, maxQueueSize, maxHistory int) *Coordinator {
	if maxRetryAttempts <= 0 {
		maxRetryAttempts = 3
	}
	if maxQueueSize <= 0 {
		maxQueueSize = 1000
	}
	if maxHistory <= 0 {
		maxHistory = 10000
	}
	return &Coordinator{
		clock:            clk,
		status:           make(map[string]Status),
		dependencies:     make(map[string][]string),
		maxRetryAttempts: maxRetryAttempts,
		maxQueueSize:     maxQueueSize,
		maxHistory:       maxHistory,
	}
}

func notFound(scopePath string) error {
	return errors.NewError(errors.KindNotFound).
		WithMessagef("scope %q not found", scopePath).Build()
}

// GetStatus returns the current status of a scope.
func (c *Coordinator) GetStatus(scopePath string) (Status, bool) {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.status[scopePath]
	return s, ok
}

// GetDependencies returns a copy of a scope's declared dependencies.
func (c *Coordinator) GetDependencies(scopePath string) ([]string, bool) {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()
	deps, ok := c.dependencies[scopePath]
	if !ok {
		return nil, false
	}
	out := make([]string, len(deps))
	copy(out, deps)
	return out, true
}

// AddScope registers scopePath with the given dependencies, starting in
// StatusIdle. Every dependency must already be a known scope
// (KindNotFound otherwise), and the new edges must not close a cycle
// (KindCircularDependency otherwise).
func (c *Coordinator) AddScope(scopePath string, dependencies []string) error {
	scopePath = normalizeScope(scopePath)
	dependencies = normalizeScopes(dependencies)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, dep := range dependencies {
		if _, ok := c.status[dep]; !ok {
			return notFound(dep)
		}
	}

	if c.hasCircularDependencyLocked(scopePath, dependencies) {
		return errors.NewError(errors.KindCircularDependency).
			WithMessagef("adding scope %q with given dependencies would create a cycle", scopePath).
			Build()
	}

	c.status[scopePath] = StatusIdle
	c.dependencies[scopePath] = append([]string(nil), dependencies...)
	return nil
}

// RemoveScope drops a scope entirely. It fails if the scope is currently
// Syncing.
func (c *Coordinator) RemoveScope(scopePath string) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.status[scopePath]
	if !ok {
		return notFound(scopePath)
	}
	if status == StatusSyncing {
		return errors.NewError(errors.KindInvalidTransition).
			WithMessagef("scope %q is currently syncing", scopePath).Build()
	}

	delete(c.status, scopePath)
	delete(c.dependencies, scopePath)
	for path, deps := range c.dependencies {
		c.dependencies[path] = removeString(deps, scopePath)
	}
	filtered := c.queue[:0]
	for _, op := range c.queue {
		if op.ScopePath != scopePath {
			filtered = append(filtered, op)
		}
	}
	c.queue = filtered
	return nil
}

// StartSync transitions a scope from Idle to Syncing. It fails if the
// scope isn't Idle, or if any dependency isn't Completed yet.
func (c *Coordinator) StartSync(scopePath string) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startSyncLocked(scopePath)
}

func (c *Coordinator) startSyncLocked(scopePath string) error {
	status, ok := c.status[scopePath]
	if !ok {
		return notFound(scopePath)
	}
	if status != StatusIdle {
		return errors.NewError(errors.KindInvalidTransition).
			WithMessagef("scope %q is %s, not Idle", scopePath, status).Build()
	}
	if !c.dependenciesReadyLocked(scopePath) {
		return errors.NewError(errors.KindDependenciesNotReady).
			WithMessagef("scope %q has dependencies that are not Completed", scopePath).Build()
	}

	c.recordEventLocked(scopePath, &status, StatusSyncing, "sync started", "")
	c.status[scopePath] = StatusSyncing
	return nil
}

// CompleteSync transitions a scope from Syncing to Completed, then
// cascades: any dependent scope whose dependencies are now all Completed
// and which is itself Idle is auto-started. Completed never re-arms to
// Idle on its own; ResetSync is the only path back from Failed.
func (c *Coordinator) CompleteSync(scopePath string) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.status[scopePath]
	if !ok {
		return notFound(scopePath)
	}
	if status != StatusSyncing {
		return errors.NewError(errors.KindInvalidTransition).
			WithMessagef("scope %q is %s, not Syncing", scopePath, status).Build()
	}

	c.recordEventLocked(scopePath, &status, StatusCompleted, "sync completed", "")
	c.status[scopePath] = StatusCompleted

	c.processQueueForDependentsLocked(scopePath)
	return nil
}

// FailSync transitions a scope from Syncing to Failed. If a matching
// queued operation is found with RetryCount below the coordinator's
// limit, it is re-enqueued with RetryCount+1.
func (c *Coordinator) FailSync(scopePath, reason string) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.status[scopePath]
	if !ok {
		return notFound(scopePath)
	}
	if status != StatusSyncing {
		return errors.NewError(errors.KindInvalidTransition).
			WithMessagef("scope %q is %s, not Syncing", scopePath, status).Build()
	}

	c.recordEventLocked(scopePath, &status, StatusFailed, "sync failed", reason)
	c.status[scopePath] = StatusFailed

	if op, idx := c.findQueueOperationLocked(scopePath); idx >= 0 {
		if op.RetryCount < c.maxRetryAttempts {
			c.queue = append(c.queue[:idx], c.queue[idx+1:]...)
			retry := op
			retry.RetryCount++
			retry.CreatedAt = c.clock.Now()
			retry.Dependencies = c.dependencies[scopePath]
			return c.addToQueueLocked(retry)
		}
	}
	return nil
}

// ResetSync is the only path back from Failed to Idle.
func (c *Coordinator) ResetSync(scopePath string) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.status[scopePath]
	if !ok {
		return notFound(scopePath)
	}
	if status != StatusFailed {
		return errors.NewError(errors.KindInvalidTransition).
			WithMessagef("scope %q is %s, not Failed", scopePath, status).Build()
	}

	c.recordEventLocked(scopePath, &status, StatusIdle, "sync reset", "")
	c.status[scopePath] = StatusIdle
	return nil
}

// CheckSyncDependencies reports whether every dependency of scopePath is
// currently Completed.
func (c *Coordinator) CheckSyncDependencies(scopePath string) (bool, error) {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.status[scopePath]; !ok {
		return false, notFound(scopePath)
	}
	return c.dependenciesReadyLocked(scopePath), nil
}

// QueueSync enqueues scopePath for sync at the given priority, capturing
// its current dependency list.
func (c *Coordinator) QueueSync(scopePath string, priority Priority) error {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.status[scopePath]; !ok {
		return notFound(scopePath)
	}

	op := Operation{
		ScopePath:    scopePath,
		Priority:     priority,
		CreatedAt:    c.clock.Now(),
		Dependencies: append([]string(nil), c.dependencies[scopePath]...),
	}
	return c.addToQueueLocked(op)
}

// GetNextSyncOperation pops and returns the highest-priority queued
// operation whose dependencies are all ready, breaking ties by FIFO
// (queue order). Operations whose dependencies aren't ready are skipped
// even if higher priority than a ready one.
func (c *Coordinator) GetNextSyncOperation() (Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bestIdx := -1
	for i, op := range c.queue {
		if !c.dependenciesReadyLocked(op.ScopePath) {
			continue
		}
		if bestIdx == -1 || op.Priority > c.queue[bestIdx].Priority {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return Operation{}, false
	}

	op := c.queue[bestIdx]
	c.queue = append(c.queue[:bestIdx], c.queue[bestIdx+1:]...)
	return op, true
}

// Scopes returns a copy of every known scope's current status.
func (c *Coordinator) Scopes() map[string]Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Status, len(c.status))
	for path, st := range c.status {
		out[path] = st
	}
	return out
}

// GetSyncStatistics summarizes current status counts and queue depth.
func (c *Coordinator) GetSyncStatistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Statistics{TotalScopes: len(c.status), QueueSize: len(c.queue)}
	for _, s := range c.status {
		switch s {
		case StatusIdle:
			stats.Idle++
		case StatusSyncing:
			stats.Syncing++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// SyncHistory returns every recorded event, oldest first.
func (c *Coordinator) SyncHistory() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.history))
	copy(out, c.history)
	return out
}

// GetScopeHistory returns up to limit most-recent events for scopePath,
// newest first. limit<=0 means unlimited.
func (c *Coordinator) GetScopeHistory(scopePath string, limit int) []Event {
	scopePath = normalizeScope(scopePath)
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []Event
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].ScopePath == scopePath {
			matched = append(matched, c.history[i])
			if limit > 0 && len(matched) >= limit {
				break
			}
		}
	}
	return matched
}

// CleanupHistory drops the oldest events until at most maxEntries remain.
func (c *Coordinator) CleanupHistory(maxEntries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxEntries < 0 {
		return
	}
	if len(c.history) > maxEntries {
		c.history = append([]Event(nil), c.history[len(c.history)-maxEntries:]...)
	}
}

func (c *Coordinator) dependenciesReadyLocked(scopePath string) bool {
	for _, dep := range c.dependencies[scopePath] {
		if c.status[dep] != StatusCompleted {
			return false
		}
	}
	return true
}

// hasCircularDependencyLocked builds a tentative graph including the new
// edges from scopePath to newDeps and runs DFS cycle detection from every
// node, matching original_source's has_circular_dependency.
func (c *Coordinator) hasCircularDependencyLocked(scopePath string, newDeps []string) bool {
	graph := make(map[string][]string, len(c.dependencies)+1)
	for path, deps := range c.dependencies {
		graph[path] = deps
	}
	graph[scopePath] = newDeps

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))

	for node := range graph {
		if color[node] == white {
			if dfsCheckCycle(graph, color, node) {
				return true
			}
		}
	}
	return false
}

func dfsCheckCycle(graph map[string][]string, color map[string]int, node string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color[node] = gray
	for _, dep := range graph[node] {
		switch color[dep] {
		case gray:
			return true
		case white:
			if dfsCheckCycle(graph, color, dep) {
				return true
			}
		}
	}
	color[node] = black
	return false
}

// processQueueForDependentsLocked finds scopes that depend on
// completedScope and, for each whose dependencies are now all ready and
// which is currently Idle, starts its sync -- the cascading auto-start
// behavior from original_source's process_queue_for_dependents.
func (c *Coordinator) processQueueForDependentsLocked(completedScope string) {
	for path, deps := range c.dependencies {
		dependsOnCompleted := false
		for _, dep := range deps {
			if dep == completedScope {
				dependsOnCompleted = true
				break
			}
		}
		if !dependsOnCompleted {
			continue
		}
		if c.status[path] != StatusIdle {
			continue
		}
		if !c.dependenciesReadyLocked(path) {
			continue
		}
		_ = c.startSyncLocked(path)
	}
}

func (c *Coordinator) findQueueOperationLocked(scopePath string) (Operation, int) {
	for i, op := range c.queue {
		if op.ScopePath == scopePath {
			return op, i
		}
	}
	return Operation{}, -1
}

func (c *Coordinator) addToQueueLocked(op Operation) error {
	if len(c.queue) >= c.maxQueueSize {
		return errors.NewError(errors.KindQueueFull).
			WithMessagef("sync queue is full (max %d)", c.maxQueueSize).Build()
	}
	c.queue = append(c.queue, op)
	return nil
}

func (c *Coordinator) recordEventLocked(scopePath string, from *Status, to Status, reason, errMsg string) {
	c.history = append(c.history, Event{
		Timestamp: c.clock.Now(),
		ScopePath: scopePath,
		From:      from,
		To:        to,
		Reason:    reason,
		Err:       errMsg,
	})
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
}

func removeString(s []string, target string) []string {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// normalizeScope puts a scope path into NFC form so that two collaborators
// who typed or generated the "same" path with different Unicode
// decompositions still resolve to the same status/dependency/history key.
func normalizeScope(scopePath string) string {
	return norm.NFC.String(scopePath)
}

func normalizeScopes(scopePaths []string) []string {
	out := make([]string, len(scopePaths))
	for i, p := range scopePaths {
		out[i] = normalizeScope(p)
	}
	return out
}

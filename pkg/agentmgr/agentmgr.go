// Package agentmgr implements the coordination runtime's Agent Manager
// (spec.md §4.2): the registry of Agent Records, their lifecycle state
// machine, and stall detection via check_progress. It is grounded on the
// clock-driven bookkeeping pattern in pkg/agents/health.go's HealthMonitor,
// generalized from agent health polling to the Agent Record lifecycle.
package agentmgr

import (
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
)

// State is an Agent Record's lifecycle state (spec.md §3).
type State string

const (
	StateInitializing State = "Initializing"
	StateReady         State = "Ready"
	StateBusy          State = "Busy"
	StateBlocked       State = "Blocked"
	StateStopped       State = "Stopped"
	StateFailed        State = "Failed"
)

// legalTransitions is the explicit state-transition table from spec.md
// §4.2: Initializing->Ready; Ready<->Busy; Ready->Stopped; Busy->Stopped;
// Ready/Busy->Blocked; Blocked->Ready/Busy/Stopped; any->Failed;
// Failed->Ready.
var legalTransitions = map[State]map[State]bool{
	StateInitializing: {StateReady: true, StateFailed: true},
	StateReady:         {StateBusy: true, StateStopped: true, StateBlocked: true, StateFailed: true},
	StateBusy:          {StateReady: true, StateStopped: true, StateBlocked: true, StateFailed: true},
	StateBlocked:       {StateReady: true, StateBusy: true, StateStopped: true, StateFailed: true},
	StateStopped:       {StateFailed: true},
	StateFailed:        {StateReady: true},
}

// Record is an Agent Record: the manager's view of a single joined agent.
type Record struct {
	ID           string
	State        State
	LastActivity time.Time
	HeldLocks    []string
	Capabilities []string
	Config       map[string]interface{}
	MaxBlockTime time.Duration
}

func (r Record) copy() Record {
	locks := make([]string, len(r.HeldLocks))
	copy(locks, r.HeldLocks)
	caps := make([]string, len(r.Capabilities))
	copy(caps, r.Capabilities)
	cfg := make(map[string]interface{}, len(r.Config))
	for k, v := range r.Config {
		cfg[k] = v
	}
	r.HeldLocks = locks
	r.Capabilities = caps
	r.Config = cfg
	return r
}

// StallReport describes an agent that has exceeded its MaxBlockTime while
// Blocked, returned by CheckProgress.
type StallReport struct {
	AgentID string
	Blocked time.Duration
}

// Manager owns the set of Agent Records and enforces the join/leave/
// set_state lifecycle and concurrency cap.
type Manager struct {
	mu                  sync.RWMutex
	clock               clock.Clock
	records             map[string]*Record
	maxConcurrentAgents int
	defaultMaxBlockTime time.Duration
}

// New returns an Agent Manager with the given concurrency cap (0 disables
// the cap) and default stall threshold for agents that don't set their own.
func New(clk clock.Clock, maxConcurrentAgents int, defaultMaxBlockTime time.Duration) *Manager {
	return &Manager{
		clock:               clk,
		records:             make(map[string]*Record),
		maxConcurrentAgents: maxConcurrentAgents,
		defaultMaxBlockTime: defaultMaxBlockTime,
	}
}

// Join registers a new agent and returns its initial Record in
// StateInitializing. It fails with KindAlreadyExists if the agent is
// already known, and KindCapExceeded if the concurrency cap would be
// breached by the join.
func (m *Manager) Join(agentID string, capabilities []string, config map[string]interface{}) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[agentID]; exists {
		return Record{}, errors.NewError(errors.KindAlreadyExists).
			WithMessagef("agent %q already joined", agentID).Build().(*errors.FabricError)
	}

	if m.maxConcurrentAgents > 0 && m.activeCountLocked() >= m.maxConcurrentAgents {
		return Record{}, errors.NewError(errors.KindCapExceeded).
			WithMessagef("concurrency cap of %d reached", m.maxConcurrentAgents).Build().(*errors.FabricError)
	}

	rec := &Record{
		ID:           agentID,
		State:        StateInitializing,
		LastActivity: m.clock.Now(),
		Capabilities: capabilities,
		Config:       config,
		MaxBlockTime: m.defaultMaxBlockTime,
	}
	m.records[agentID] = rec
	return rec.copy(), nil
}

// Leave removes an agent's record. It does not release locks; callers
// coordinate lock release via pkg/lockmgr before or after calling Leave.
func (m *Manager) Leave(agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[agentID]; !exists {
		return errors.NewError(errors.KindNotFound).
			WithMessagef("agent %q not found", agentID).Build().(*errors.FabricError)
	}
	delete(m.records, agentID)
	return nil
}

// SetState attempts a state transition for agentID, validated against the
// legal-transition table. Every successful transition refreshes
// LastActivity, which check_progress relies on for stall detection.
func (m *Manager) SetState(agentID string, next State) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[agentID]
	if !exists {
		return Record{}, errors.NewError(errors.KindNotFound).
			WithMessagef("agent %q not found", agentID).Build().(*errors.FabricError)
	}

	if rec.State == next {
		rec.LastActivity = m.clock.Now()
		return rec.copy(), nil
	}

	allowed := legalTransitions[rec.State]
	if !allowed[next] {
		return Record{}, errors.NewError(errors.KindInvalidTransition).
			WithMessagef("agent %q cannot transition %s -> %s", agentID, rec.State, next).
			Build().(*errors.FabricError)
	}

	rec.State = next
	rec.LastActivity = m.clock.Now()
	return rec.copy(), nil
}

// Get returns a copy of an agent's current Record.
func (m *Manager) Get(agentID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[agentID]
	if !exists {
		return Record{}, errors.NewError(errors.KindNotFound).
			WithMessagef("agent %q not found", agentID).Build().(*errors.FabricError)
	}
	return rec.copy(), nil
}

// SetHeldLocks replaces the set of scope paths an agent holds locks on, so
// the Safety Validator can cross-check lock consistency against live
// Agent Records.
func (m *Manager) SetHeldLocks(agentID string, scopePaths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.records[agentID]
	if !exists {
		return errors.NewError(errors.KindNotFound).
			WithMessagef("agent %q not found", agentID).Build().(*errors.FabricError)
	}
	locks := make([]string, len(scopePaths))
	copy(locks, scopePaths)
	rec.HeldLocks = locks
	return nil
}

// List returns a copy of every known Agent Record.
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.copy())
	}
	return out
}

// CheckProgress scans every Blocked agent and reports those that have been
// blocked longer than their MaxBlockTime (spec.md §4.2's check_progress
// stall detector), mirroring HealthMonitor.checkAllAgents's polling shape
// without its own goroutine: callers drive the cadence.
func (m *Manager) CheckProgress() []StallReport {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.clock.Now()
	var stalled []StallReport
	for _, rec := range m.records {
		if rec.State != StateBlocked {
			continue
		}
		threshold := rec.MaxBlockTime
		if threshold <= 0 {
			threshold = m.defaultMaxBlockTime
		}
		if threshold <= 0 {
			continue
		}
		blockedFor := now.Sub(rec.LastActivity)
		if blockedFor > threshold {
			stalled = append(stalled, StallReport{AgentID: rec.ID, Blocked: blockedFor})
		}
	}
	return stalled
}

// activeCountLocked counts agents that are not Stopped or Failed. Caller
// must hold m.mu.
func (m *Manager) activeCountLocked() int {
	count := 0
	for _, rec := range m.records {
		if rec.State != StateStopped && rec.State != StateFailed {
			count++
		}
	}
	return count
}

// ActiveCount returns the number of agents that are not Stopped or Failed.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCountLocked()
}

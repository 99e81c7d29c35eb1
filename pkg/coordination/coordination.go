// Package coordination implements the coordination runtime's Coordination
// Service (spec.md §4.5): a single facade over the Agent Manager (C2),
// Lock Manager (C3), Sync Coordinator (C4), and Safety Validator (C1).
// AgentJoin, SetAgentState, ModifyContext and Sync run a safety check
// after the mutation and roll it back on violation; AgentLeave,
// ReleaseLock, AddSyncScope, CompleteSync and FailSync run no safety
// check. The shape -- one type composing several subsystem
// managers behind a narrow API -- is grounded on pkg/workflow/engine.go's
// Engine struct.
package coordination

import (
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/agentmgr"
	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
	"github.com/agentfabric/coordinator/pkg/lockmgr"
	"github.com/agentfabric/coordinator/pkg/safety"
	"github.com/agentfabric/coordinator/pkg/syncfabric"
)

// Status is a read-only snapshot of the whole fabric, returned by
// GetStatus.
type Status struct {
	Agents     []agentmgr.Record
	Locks      []lockmgr.Lock
	Syncs      map[string]syncfabric.Status
	Violations []safety.Violation
}

// Service composes C1-C4 behind AgentJoin/AgentLeave/ModifyContext/Sync/
// CompleteSync/FailSync/ReleaseLock/GetStatus.
type Service struct {
	mu sync.Mutex

	agents    *agentmgr.Manager
	locks     *lockmgr.Manager
	sync      *syncfabric.Coordinator
	validator *safety.Validator

	maxConcurrentAgents int
	scopeContent        map[string][]byte
}

// Config bundles the tunables every subsystem needs at construction.
type Config struct {
	MaxConcurrentAgents int
	DefaultMaxBlockTime time.Duration
	DefaultLockTTL      time.Duration
	MaxSyncRetries      int
	MaxSyncQueueSize    int
	MaxSyncHistory      int
}

// New returns a Coordination Service wiring fresh C1-C4 instances.
func New(clk clock.Clock, cfg Config) *Service {
	return &Service{
		agents:              agentmgr.New(clk, cfg.MaxConcurrentAgents, cfg.DefaultMaxBlockTime),
		locks:               lockmgr.New(clk, cfg.DefaultLockTTL),
		sync:                syncfabric.New(clk, cfg.MaxSyncRetries, cfg.MaxSyncQueueSize, cfg.MaxSyncHistory),
		validator:           safety.NewValidator(),
		maxConcurrentAgents: cfg.MaxConcurrentAgents,
		scopeContent:        make(map[string][]byte),
	}
}

// AgentJoin registers a new agent, then runs a safety check. A safety
// violation rolls the join back.
func (s *Service) AgentJoin(agentID string, capabilities []string, config map[string]interface{}) (agentmgr.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.agents.Join(agentID, capabilities, config)
	if err != nil {
		return agentmgr.Record{}, err
	}

	if violations := s.checkSafetyLocked(); len(violations) > 0 {
		_ = s.agents.Leave(agentID)
		return agentmgr.Record{}, safetyErr(violations)
	}
	return rec, nil
}

// AgentLeave removes an agent and releases every lock it held.
func (s *Service) AgentLeave(agentID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := s.locks.ReleaseAgentLocks(agentID)
	if err := s.agents.Leave(agentID); err != nil {
		return nil, err
	}
	return released, nil
}

// SetAgentState drives the Agent Record state machine, then runs a
// safety check, rolling the transition back on violation.
func (s *Service) SetAgentState(agentID string, next agentmgr.State) (agentmgr.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.agents.Get(agentID)
	if err != nil {
		return agentmgr.Record{}, err
	}

	rec, err := s.agents.SetState(agentID, next)
	if err != nil {
		return agentmgr.Record{}, err
	}

	if violations := s.checkSafetyLocked(); len(violations) > 0 {
		_, _ = s.agents.SetState(agentID, before.State)
		return agentmgr.Record{}, safetyErr(violations)
	}
	return rec, nil
}

// ModifyContext acquires scopePath for agentID and records its content for
// the content-sanity safety check, rolling back on violation or on a
// failed lock acquisition.
func (s *Service) ModifyContext(agentID, scopePath string, content []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acquired, err := s.locks.Acquire(scopePath, agentID, ttl)
	if err != nil {
		return err
	}
	if !acquired {
		return errors.NewError(errors.KindLockUnavailable).
			WithMessagef("scope %q is locked by another agent", scopePath).Build()
	}

	prevContent, hadContent := s.scopeContent[scopePath]
	s.scopeContent[scopePath] = content
	s.syncHeldLocksLocked(agentID)

	if violations := s.checkSafetyLocked(); len(violations) > 0 {
		_ = s.locks.Release(scopePath, agentID)
		if hadContent {
			s.scopeContent[scopePath] = prevContent
		} else {
			delete(s.scopeContent, scopePath)
		}
		return safetyErr(violations)
	}
	return nil
}

// ReleaseLock releases a scope lock held by agentID.
func (s *Service) ReleaseLock(agentID, scopePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.locks.Release(scopePath, agentID); err != nil {
		return err
	}
	s.syncHeldLocksLocked(agentID)
	return nil
}

// AddSyncScope registers scopePath with the sync coordinator.
func (s *Service) AddSyncScope(scopePath string, dependencies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.AddScope(scopePath, dependencies)
}

// Sync starts a sync for scopePath, then runs a safety check.
func (s *Service) Sync(scopePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync.StartSync(scopePath); err != nil {
		return err
	}
	if violations := s.checkSafetyLocked(); len(violations) > 0 {
		_ = s.sync.FailSync(scopePath, "rolled back after safety violation")
		return safetyErr(violations)
	}
	return nil
}

// CompleteSync marks scopePath Completed, cascading dependent auto-starts.
func (s *Service) CompleteSync(scopePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.CompleteSync(scopePath)
}

// FailSync marks scopePath Failed, possibly re-enqueueing it for retry.
func (s *Service) FailSync(scopePath, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync.FailSync(scopePath, reason)
}

// GetStatus returns a snapshot of the whole fabric and the safety
// violations (if any) that snapshot currently has.
func (s *Service) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Agents:     s.agents.List(),
		Locks:      s.locks.List(),
		Syncs:      s.sync.Scopes(),
		Violations: s.checkSafetyLocked(),
	}
}

// CheckProgress surfaces stalled agents via the Agent Manager.
func (s *Service) CheckProgress() []agentmgr.StallReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agents.CheckProgress()
}

func (s *Service) syncHeldLocksLocked(agentID string) {
	var held []string
	for _, l := range s.locks.List() {
		if l.HolderID == agentID {
			held = append(held, l.ScopePath)
		}
	}
	_ = s.agents.SetHeldLocks(agentID, held)
}

func (s *Service) checkSafetyLocked() []safety.Violation {
	agentsList := s.agents.List()
	agentSnaps := make([]safety.AgentSnapshot, 0, len(agentsList))
	for _, a := range agentsList {
		agentSnaps = append(agentSnaps, safety.AgentSnapshot{
			ID:        a.ID,
			Active:    a.State != agentmgr.StateStopped && a.State != agentmgr.StateFailed,
			HeldLocks: a.HeldLocks,
		})
	}

	locksList := s.locks.List()
	lockSnaps := make([]safety.LockSnapshot, 0, len(locksList))
	for _, l := range locksList {
		lockSnaps = append(lockSnaps, safety.LockSnapshot{ScopePath: l.ScopePath, HolderID: l.HolderID})
	}

	var syncSnaps []safety.SyncSnapshot
	for scopePath := range s.scopeContent {
		if st, ok := s.sync.GetStatus(scopePath); ok {
			deps, _ := s.sync.GetDependencies(scopePath)
			syncSnaps = append(syncSnaps, safety.SyncSnapshot{
				ScopePath:    scopePath,
				Status:       string(st),
				Dependencies: deps,
			})
		}
	}

	return s.validator.Check(safety.Snapshot{
		Agents:              agentSnaps,
		Locks:               lockSnaps,
		Syncs:               syncSnaps,
		MaxConcurrentAgents: s.maxConcurrentAgents,
		ScopeContent:        s.scopeContent,
	})
}

func safetyErr(violations []safety.Violation) error {
	detail := violations[0].String()
	return errors.NewError(errors.KindSafetyViolation).
		WithMessagef("safety check failed: %s", detail).
		WithContext("violation_count", len(violations)).
		Build()
}

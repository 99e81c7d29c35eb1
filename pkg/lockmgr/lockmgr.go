// Package lockmgr implements the coordination runtime's Lock Manager
// (spec.md §4.3): non-blocking scope locks with a TTL, lazily reaped on
// acquire and via cleanup_expired. There is no teacher analog for a
// standalone lock manager; the shape (explicit acquisition order, TTL via
// pkg/clock) is grounded on the fixed lock-ordering discipline visible in
// pkg/workflow/engine.go and state.go.
package lockmgr

import (
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Lock is a Scope Lock (spec.md §3): one scope path is held by at most one
// agent at a time, until it expires or is released.
type Lock struct {
	ScopePath  string
	HolderID   string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// Manager owns every live Scope Lock.
type Manager struct {
	mu       sync.Mutex
	clock    clock.Clock
	locks    map[string]*Lock
	defaultTTL time.Duration
}

// New returns a Lock Manager using defaultTTL for acquisitions that don't
// specify their own.
func New(clk clock.Clock, defaultTTL time.Duration) *Manager {
	return &Manager{
		clock:      clk,
		locks:      make(map[string]*Lock),
		defaultTTL: defaultTTL,
	}
}

// Acquire attempts to take scopePath for agentID. It is non-blocking: if
// the scope is already held by a different agent and not expired, it
// returns (false, nil) rather than waiting. Re-acquiring a lock you
// already hold refreshes its TTL and returns true. ttl of 0 uses the
// Manager's default.
func (m *Manager) Acquire(scopePath, agentID string, ttl time.Duration) (bool, error) {
	scopePath = normalizeScope(scopePath)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapExpiredLocked()

	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := m.clock.Now()

	if existing, held := m.locks[scopePath]; held {
		if existing.HolderID != agentID {
			return false, nil
		}
	}

	m.locks[scopePath] = &Lock{
		ScopePath:  scopePath,
		HolderID:   agentID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	return true, nil
}

// Release drops scopePath's lock if agentID currently holds it. Releasing
// a lock you don't hold (or that doesn't exist) is a KindNotFound error.
func (m *Manager) Release(scopePath, agentID string) error {
	scopePath = normalizeScope(scopePath)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapExpiredLocked()

	lock, held := m.locks[scopePath]
	if !held || lock.HolderID != agentID {
		return errors.NewError(errors.KindNotFound).
			WithMessagef("agent %q does not hold lock on %q", agentID, scopePath).
			Build().(*errors.FabricError)
	}
	delete(m.locks, scopePath)
	return nil
}

// ReleaseAgentLocks drops every lock held by agentID, returning the scope
// paths that were released. Used when an agent leaves the fabric.
func (m *Manager) ReleaseAgentLocks(agentID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapExpiredLocked()

	var released []string
	for path, lock := range m.locks {
		if lock.HolderID == agentID {
			released = append(released, path)
			delete(m.locks, path)
		}
	}
	return released
}

// CleanupExpired removes every lock past its ExpiresAt and returns the
// scope paths that were reaped.
func (m *Manager) CleanupExpired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reapExpiredLocked()
}

func (m *Manager) reapExpiredLocked() []string {
	now := m.clock.Now()
	var expired []string
	for path, lock := range m.locks {
		if !lock.ExpiresAt.IsZero() && !now.Before(lock.ExpiresAt) {
			expired = append(expired, path)
			delete(m.locks, path)
		}
	}
	return expired
}

// Get returns the current lock on scopePath, if any.
func (m *Manager) Get(scopePath string) (Lock, bool) {
	scopePath = normalizeScope(scopePath)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapExpiredLocked()

	lock, held := m.locks[scopePath]
	if !held {
		return Lock{}, false
	}
	return *lock, true
}

// List returns every currently live lock.
func (m *Manager) List() []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reapExpiredLocked()

	out := make([]Lock, 0, len(m.locks))
	for _, lock := range m.locks {
		out = append(out, *lock)
	}
	return out
}

// normalizeScope puts a scope path into NFC form so that two collaborators
// who typed or generated the "same" path with different Unicode
// decompositions still hash to the same lock key.
func normalizeScope(scopePath string) string {
	return norm.NFC.String(scopePath)
}

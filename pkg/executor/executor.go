// Package executor implements the coordination runtime's Agent Executor
// (spec.md's C8): it resolves a task against pkg/agents' AgentRegistry,
// bounds per-agent concurrency, retries failed attempts with the shared
// retry policy in pkg/errors/retry.go, trips a circuit breaker after
// consecutive agent failures, and keeps a bounded execution history.
// Retry/timeout shape is grounded on pkg/errors/retry.go; dispatch and
// agent resolution are grounded on pkg/agents/registry.go.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/agents"
	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/sourcegraph/conc"
)

// Policy tunes how the executor dispatches and retries work.
type Policy struct {
	DefaultTimeout        time.Duration
	MaxRetries            int
	RetryDelay            time.Duration
	AllowConcurrent       bool
	MaxConcurrentPerAgent int
	CircuitBreakerTrips   uint32
}

// DefaultPolicy returns reasonable defaults: three retries, a 30s timeout, and
// up to 4 concurrent executions per agent.
func DefaultPolicy() Policy {
	return Policy{
		DefaultTimeout:        30 * time.Second,
		MaxRetries:            3,
		RetryDelay:            time.Second,
		AllowConcurrent:       true,
		MaxConcurrentPerAgent: 4,
		CircuitBreakerTrips:   5,
	}
}

// Request describes one unit of work dispatched to an agent.
type Request struct {
	ID       string
	AgentID  agents.AgentID
	Task     *agents.AgentMessage
	Timeout  time.Duration
}

// Record is a completed or in-flight execution's bookkeeping entry.
type Record struct {
	ID         string
	AgentID    agents.AgentID
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	Success    bool
	Err        error
	Cancelled  bool
}

// Executor dispatches Requests to agents resolved from an
// agents.AgentRegistry, applying Policy's concurrency, retry, and timeout
// rules.
type Executor struct {
	mu       sync.Mutex
	registry *agents.AgentRegistry
	policy   Policy
	clock    clock.Clock

	breakers map[agents.AgentID]*gobreaker.CircuitBreaker
	sema     map[agents.AgentID]chan struct{}
	cancels  map[string]context.CancelFunc

	history    []Record
	maxHistory int

	wg conc.WaitGroup
}

// New returns an Executor dispatching against registry under policy.
func New(clk clock.Clock, registry *agents.AgentRegistry, policy Policy, maxHistory int) *Executor {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Executor{
		registry:   registry,
		policy:     policy,
		clock:      clk,
		breakers:   make(map[agents.AgentID]*gobreaker.CircuitBreaker),
		sema:       make(map[agents.AgentID]chan struct{}),
		cancels:    make(map[string]context.CancelFunc),
		maxHistory: maxHistory,
	}
}

func (e *Executor) breakerFor(agentID agents.AgentID) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if b, ok := e.breakers[agentID]; ok {
		return b
	}

	trips := e.policy.CircuitBreakerTrips
	if trips == 0 {
		trips = 5
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(agentID),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trips
		},
	})
	e.breakers[agentID] = b
	return b
}

func (e *Executor) semaphoreFor(agentID agents.AgentID) chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s, ok := e.sema[agentID]; ok {
		return s
	}

	limit := e.policy.MaxConcurrentPerAgent
	if !e.policy.AllowConcurrent {
		limit = 1
	}
	if limit <= 0 {
		limit = 1
	}
	s := make(chan struct{}, limit)
	e.sema[agentID] = s
	return s
}

// Execute dispatches req to its agent, retrying retryable failures, and
// returns the final Record. It blocks until the work (or its timeout)
// completes.
func (e *Executor) Execute(ctx context.Context, req Request) (*Record, error) {
	if req.ID == "" {
		return nil, errors.NewError(errors.KindInvalidContent).WithMessage("execution request requires an id").Build()
	}

	if _, err := e.registry.GetAgent(req.AgentID); err != nil {
		notFound := errors.NewError(errors.KindNotFound).
			WithMessagef("no agent registered for %q", req.AgentID).
			WithCause(err).Build()
		now := e.clock.Now()
		record := &Record{ID: req.ID, AgentID: req.AgentID, StartedAt: now, FinishedAt: now, Err: notFound}
		e.recordHistory(*record)
		return record, notFound
	}

	sema := e.semaphoreFor(req.AgentID)
	select {
	case sema <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-sema }()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.policy.DefaultTimeout
	}
	execCtx, cancel := clock.WithTimeout(ctx, e.clock, timeout)

	e.mu.Lock()
	e.cancels[req.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, req.ID)
		e.mu.Unlock()
		cancel()
	}()

	record := &Record{ID: req.ID, AgentID: req.AgentID, StartedAt: e.clock.Now()}
	breaker := e.breakerFor(req.AgentID)

	retryCfg := errors.RetryConfig{
		MaxAttempts:         maxInt(1, e.policy.MaxRetries+1),
		InitialInterval:     e.policy.RetryDelay,
		MaxInterval:         e.policy.RetryDelay * 10,
		Multiplier:          2.0,
		RandomizationFactor: 0.1,
	}

	attemptErr := errors.RetryWithClock(execCtx, e.clock, retryCfg, func() error {
		record.Attempts++
		_, err := breaker.Execute(func() (interface{}, error) {
			return nil, e.dispatch(execCtx, req)
		})
		return err
	}, errors.ExecutionShouldRetry)

	record.FinishedAt = e.clock.Now()
	record.Success = attemptErr == nil
	record.Err = attemptErr
	record.Cancelled = execCtx.Err() == context.Canceled

	e.recordHistory(*record)

	if attemptErr != nil {
		return record, attemptErr
	}
	return record, nil
}

// ExecuteAsync runs Execute in a tracked goroutine and returns immediately.
// Wait blocks until every ExecuteAsync call launched so far has finished.
func (e *Executor) ExecuteAsync(ctx context.Context, req Request, done func(*Record, error)) {
	e.wg.Go(func() {
		record, err := e.Execute(ctx, req)
		if done != nil {
			done(record, err)
		}
	})
}

// Wait blocks until every in-flight ExecuteAsync call has returned.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// Cancel cancels the in-flight execution identified by executionID, if any.
func (e *Executor) Cancel(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cancel, ok := e.cancels[executionID]
	if !ok {
		return false
	}
	cancel()
	return true
}

func (e *Executor) dispatch(ctx context.Context, req Request) error {
	agent, err := e.registry.GetAgent(req.AgentID)
	if err != nil {
		return errors.NewError(errors.KindNotFound).
			WithMessagef("no agent registered for %q", req.AgentID).
			WithCause(err).Build()
	}

	if req.Task == nil {
		return errors.NewError(errors.KindInvalidContent).WithMessage("execution request has no task payload").Build()
	}

	if err := agent.ProcessMessage(ctx, req.Task); err != nil {
		return errors.NewError(errors.KindExecutionFailed).
			WithMessagef("agent %q failed to process task %q", req.AgentID, req.Task.ID).
			WithCause(err).
			WithRecoverable(true).Build()
	}
	return nil
}

func (e *Executor) recordHistory(r Record) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, r)
	if len(e.history) > e.maxHistory {
		e.history = e.history[len(e.history)-e.maxHistory:]
	}
}

// History returns a copy of the retained execution history, oldest first.
func (e *Executor) History() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Record, len(e.history))
	copy(out, e.history)
	return out
}

// BreakerState reports the current circuit breaker state for an agent, if
// one has been created.
func (e *Executor) BreakerState(agentID agents.AgentID) (string, bool) {
	e.mu.Lock()
	b, ok := e.breakers[agentID]
	e.mu.Unlock()
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v", b.State()), true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

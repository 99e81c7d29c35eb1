package main

import (
	"context"
	"time"

	"github.com/agentfabric/coordinator/internal/contextstore"
	"github.com/agentfabric/coordinator/internal/versionregistry"
	"github.com/agentfabric/coordinator/pkg/agents"
	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/conflict"
	"github.com/agentfabric/coordinator/pkg/config"
	"github.com/agentfabric/coordinator/pkg/coordination"
	"github.com/agentfabric/coordinator/pkg/executor"
	"github.com/agentfabric/coordinator/pkg/messaging"
	"github.com/agentfabric/coordinator/pkg/workflow"
)

// runtime bundles every subsystem cmd/fabricd drives: the Coordination
// Service facade (C1-C4 behind C5), the Agent Executor (C8) dispatching
// against a shared agent registry, the message broker (C7), the
// Workflow Engine (C9) wired to all three, the Conflict Resolver (C6)
// backed by a seeded version registry, and the scope-content watcher.
type runtime struct {
	cfg *config.Config

	coordinator *coordination.Service
	resolver    *conflict.Resolver
	registry    *versionregistry.Registry
	broker      *messaging.Broker
	agentExec   *executor.Executor
	agentReg    *agents.AgentRegistry
	engine      *workflow.Engine
	store       *contextstore.Store
}

// newRuntime wires every subsystem from cfg. contentDir may be empty, in
// which case the scope-content watcher is left unconfigured.
func newRuntime(cfg *config.Config, contentDir string) (*runtime, error) {
	clk := clock.NewRealClock()

	coordinator := coordination.New(clk, coordination.Config{
		MaxConcurrentAgents: cfg.Fabric.MaxConcurrentAgents,
		DefaultMaxBlockTime: cfg.Fabric.MaxBlockTime,
		DefaultLockTTL:      cfg.Fabric.DefaultLockTTL,
		MaxSyncRetries:      cfg.Fabric.MaxRetryAttempts,
		MaxSyncQueueSize:    cfg.Fabric.MaxSyncQueueSize,
		MaxSyncHistory:      cfg.Fabric.MaxSyncHistorySize,
	})

	versions := versionregistry.New()

	fallbacks := make([]conflict.Strategy, 0, len(cfg.Conflict.FallbackStrategies))
	for _, s := range cfg.Conflict.FallbackStrategies {
		fallbacks = append(fallbacks, conflict.Strategy(s))
	}
	resolver := conflict.NewWithConfig(clk, versions, conflict.Config{
		PrimaryStrategy:        conflict.Strategy(cfg.Conflict.PrimaryStrategy),
		FallbackStrategies:     fallbacks,
		EnableAutoDetection:    true,
		TrackHistory:           cfg.Conflict.TrackHistory,
		MaxAttempts:            cfg.Conflict.MaxAttempts,
		PreferStable:           cfg.Conflict.PreferStable,
		StrictPinning:          cfg.Conflict.StrictPinning,
		CompatibilityThreshold: cfg.Conflict.CompatibilityThreshold,
		Timeout:                30 * time.Second,
	})

	broker := messaging.NewBrokerWithClock(cfg.Workflow.EventBufferSize, clk)

	bus := agents.NewMessageBusWithClock(cfg.Workflow.EventBufferSize, clk)
	agentReg := agents.NewAgentRegistry(bus)

	agentExec := executor.New(clk, agentReg, executor.Policy{
		DefaultTimeout:        cfg.Executor.DefaultTimeout,
		MaxRetries:            cfg.Executor.MaxRetryAttempts,
		RetryDelay:            time.Second,
		AllowConcurrent:       true,
		MaxConcurrentPerAgent: cfg.Executor.MaxConcurrentPerJob,
		CircuitBreakerTrips:   cfg.Executor.CircuitBreakerTrips,
	}, 1000)

	engine, err := workflow.NewEngine(workflow.EngineConfig{
		MaxConcurrentWorkflows: cfg.Workflow.MaxConcurrentWorkflows,
		MaxConcurrentSteps:     cfg.Executor.MaxConcurrentPerJob,
		DefaultTimeout:         cfg.Executor.DefaultTimeout,
		RetryAttempts:          cfg.Executor.MaxRetryAttempts,
		RetryDelay:             time.Second,
		PersistenceEnabled:     false,
		MetricsEnabled:         true,
		EventBufferSize:        cfg.Workflow.EventBufferSize,
	})
	if err != nil {
		return nil, err
	}
	engine.SetAgentExecutor(agentExec)
	engine.SetBroker(broker)
	engine.SetCoordinationService(coordinator)

	rt := &runtime{
		cfg:         cfg,
		coordinator: coordinator,
		resolver:    resolver,
		registry:    versions,
		broker:      broker,
		agentExec:   agentExec,
		agentReg:    agentReg,
		engine:      engine,
	}

	if contentDir != "" {
		store, err := contextstore.New(contentDir, broker)
		if err != nil {
			return nil, err
		}
		if err := store.Start(); err != nil {
			return nil, err
		}
		rt.store = store
	}

	return rt, nil
}

func (rt *runtime) Close() {
	if rt.store != nil {
		rt.store.Stop()
	}
	rt.broker.Close()
	_ = rt.engine.Shutdown(context.Background())
}

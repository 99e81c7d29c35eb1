// Package workflow provides workflow orchestration and step-based execution for the coordination runtime
package workflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentfabric/coordinator/pkg/clock"
	"github.com/agentfabric/coordinator/pkg/coordination"
	"github.com/agentfabric/coordinator/pkg/executor"
	"github.com/agentfabric/coordinator/pkg/messaging"
)

// Status constants
const (
	statusUnknown   = "unknown"
	statusCompleted = "completed"
)

// Engine manages workflow execution and orchestration
type Engine struct {
	// Core components
	stateManager    *StateManager
	stepExecutor   *StepExecutor
	dependencyGraph *DependencyGraph
	persistence     *PersistenceManager
	metrics         *MetricsCollector
	_ clock.Clock // TODO: implement time-based workflow features

	// Configuration
	config EngineConfig

	// Runtime state
	activeWorkflows map[string]*WorkflowInstance
	workflowsMutex  sync.RWMutex

	// Event handling
	eventBus      *EventBus
	eventHandlers map[EventType][]EventSubscriber
	_ sync.RWMutex // TODO: implement event handler synchronization

	// Worker pools
	stepWorkers *WorkerPool

	// Shutdown handling
	ctx        context.Context
	cancel     context.CancelFunc
	shutdownWG sync.WaitGroup
}

// EngineConfig configures the workflow engine
type EngineConfig struct {
	MaxConcurrentWorkflows int
	MaxConcurrentSteps    int
	DefaultTimeout         time.Duration
	RetryAttempts          int
	RetryDelay             time.Duration
	PersistenceEnabled     bool
	MetricsEnabled         bool
	EventBufferSize        int
}

// WorkflowInstance represents a running workflow
type WorkflowInstance struct {
	ID           string
	Definition   *WorkflowDefinition
	State        WorkflowState
	Context      context.Context
	Cancel       context.CancelFunc
	StartTime    time.Time
	EndTime      time.Time
	CurrentStep int
	Steps       []*StepInstance
	Variables    map[string]interface{}
	Metadata     map[string]interface{}

	// Event tracking
	Events      []WorkflowEvent
	eventsMutex sync.RWMutex

	// Error handling
	LastError  error
	ErrorCount int

	// Synchronization
	stepMutex sync.RWMutex
	stateMutex sync.RWMutex
}

// WorkflowDefinition defines a workflow template
type WorkflowDefinition struct {
	Name         string
	Version      string
	Description  string
	Steps       []StepDefinition
	Dependencies map[string][]string
	Variables    map[string]VariableDefinition
	Timeouts     TimeoutConfiguration
	RetryPolicy  RetryPolicy
	Triggers     []TriggerDefinition
}

// StepDefinition defines a workflow step template. Every step carries the
// fields relevant to its Type; the others are left zero-valued.
type StepDefinition struct {
	Name         string
	Type         StepType
	Description  string
	Dependencies []string
	Conditions   []ConditionDefinition
	Timeout      time.Duration
	RetryPolicy  *RetryPolicy
	Optional     bool
	Metadata     map[string]interface{}

	// Task dispatches to an agent through the executor (C8).
	Task *TaskStepSpec
	// Sequential runs Children in order, stopping at the first failure.
	Sequential *SequentialStepSpec
	// Parallel runs Children concurrently via an errgroup.
	Parallel *ParallelStepSpec
	// Conditional picks a branch based on Condition.
	Conditional *ConditionalStepSpec
	// Loop repeats Body while Condition holds, bounded by MaxIterations.
	Loop *LoopStepSpec
	// Wait pauses the step for Duration, or until Condition holds.
	Wait *WaitStepSpec
	// Message publishes an envelope onto the message broker (C7).
	Message *MessageStepSpec
	// Coordinate invokes an operation against the coordination service (C5).
	Coordinate *CoordinateStepSpec
	// Custom invokes a named handler registered with RegisterCustomStepHandler.
	Custom *CustomStepSpec
}

// TaskStepSpec dispatches a unit of work to an agent via the executor.
type TaskStepSpec struct {
	AgentID     string
	MessageType string
	Payload     interface{}
}

// SequentialStepSpec runs a fixed ordered list of child steps.
type SequentialStepSpec struct {
	Children []StepDefinition
}

// ParallelStepSpec runs a fixed list of child steps concurrently.
type ParallelStepSpec struct {
	Children []StepDefinition
	// FailFast cancels sibling children as soon as one fails.
	FailFast bool
}

// ConditionalStepSpec picks Then or Else based on Condition.
type ConditionalStepSpec struct {
	Condition ConditionDefinition
	Then      *StepDefinition
	Else      *StepDefinition
}

// LoopStepSpec repeats Body while Condition holds (or forever if Condition
// is the zero value), up to MaxIterations.
type LoopStepSpec struct {
	Body          *StepDefinition
	Condition     ConditionDefinition
	MaxIterations int
}

// WaitStepSpec pauses step execution.
type WaitStepSpec struct {
	Duration  time.Duration
	Condition ConditionDefinition
	PollEvery time.Duration
}

// MessageStepSpec publishes an envelope through the workflow's broker.
type MessageStepSpec struct {
	Topic   string
	Type    string
	Payload interface{}
}

// CoordinateStepSpec invokes one coordination-service operation by name
// (join, leave, modify_context, sync, complete_sync, fail_sync,
// release_lock) with string arguments, keeping the workflow engine
// decoupled from pkg/coordination's concrete types.
type CoordinateStepSpec struct {
	Operation string
	Args      map[string]string
}

// CustomStepSpec invokes a handler registered by name.
type CustomStepSpec struct {
	HandlerName string
	Parameters  map[string]interface{}
}

// StepInstance represents a running step
type StepInstance struct {
	ID           string
	Definition   *StepDefinition
	Status       StepStatus
	StartTime    time.Time
	EndTime      time.Time
	Output       interface{}
	Error        error
	RetryCount   int
	Context      context.Context
	Cancel       context.CancelFunc
	Dependencies []*StepInstance

	// Progress tracking
	Progress float64
	Message  string

	// Metadata
	Metadata map[string]interface{}

	// Synchronization
	mutex sync.RWMutex
}

// WorkflowState represents the state of a workflow
type WorkflowState int

const (
	WorkflowStateInitializing WorkflowState = iota
	WorkflowStateRunning
	WorkflowStatePaused
	WorkflowStateWaitingForInput
	WorkflowStateCompleted
	WorkflowStateFailed
	WorkflowStateCancelled
	WorkflowStateAborted
)

// StepStatus represents the status of a step
type StepStatus int

const (
	StepStatusPending StepStatus = iota
	StepStatusRunning
	StepStatusCompleted
	StepStatusFailed
	StepStatusSkipped
	StepStatusCancelled
	StepStatusWaitingForDependencies
	StepStatusWaitingForInput
)

// StepType defines the workflow step taxonomy: the unit of work a
// StepDefinition performs.
type StepType int

const (
	StepTypeTask StepType = iota
	StepTypeSequential
	StepTypeParallel
	StepTypeConditional
	StepTypeLoop
	StepTypeWait
	StepTypeMessage
	StepTypeCoordinate
	StepTypeCustom
)

func (t StepType) String() string {
	switch t {
	case StepTypeTask:
		return "task"
	case StepTypeSequential:
		return "sequential"
	case StepTypeParallel:
		return "parallel"
	case StepTypeConditional:
		return "conditional"
	case StepTypeLoop:
		return "loop"
	case StepTypeWait:
		return "wait"
	case StepTypeMessage:
		return "message"
	case StepTypeCoordinate:
		return "coordinate"
	case StepTypeCustom:
		return "custom"
	default:
		return statusUnknown
	}
}

// ConditionDefinition defines a conditional check evaluated against a
// workflow's variables and its prior steps' outcomes.
type ConditionDefinition struct {
	Type     ConditionType
	Variable string
	Value    interface{}
	StepName string
	Handler  string
}

// ConditionType is the condition taxonomy evaluated by StepExecutor.evaluateCondition.
type ConditionType int

const (
	ConditionAlways ConditionType = iota
	ConditionNever
	ConditionVariableEquals
	ConditionVariableExists
	ConditionStepSucceeded
	ConditionStepFailed
	ConditionAllStepsSucceeded
	ConditionAnyStepSucceeded
	ConditionAllStepsFailed
	ConditionAnyStepFailed
	ConditionCustom
)

// VariableDefinition defines a workflow variable
type VariableDefinition struct {
	Name         string
	Type         VariableType
	DefaultValue interface{}
	Required     bool
	Description  string
}

// VariableType defines variable types
type VariableType int

// VariableType constants removed - currently unused

// TimeoutConfiguration defines timeout settings
type TimeoutConfiguration struct {
	Workflow time.Duration
	Step    time.Duration
	Action   time.Duration
}

// RetryPolicy defines retry behavior
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Conditions   []RetryCondition
}

// RetryCondition defines when to retry
type RetryCondition struct {
	Type    RetryConditionType
	Pattern string
}

// RetryConditionType defines retry condition types
type RetryConditionType int

// RetryConditionType constants removed - currently unused

// TriggerDefinition defines workflow triggers
type TriggerDefinition struct {
	Type       TriggerType
	Event      string
	Condition  string
	Parameters map[string]interface{}
}

// TriggerType defines trigger types
type TriggerType int

// TriggerType constants removed - currently unused

// Default configuration values
const (
	DefaultMaxConcurrentWorkflows = 10
	DefaultMaxConcurrentSteps    = 20
	DefaultWorkflowTimeout        = 60 * time.Minute
	DefaultRetryAttempts          = 3
	DefaultRetryDelay             = 5 * time.Second
	DefaultEventBufferSize        = 1000
)

// NewEngine creates a new workflow engine
func NewEngine(config EngineConfig) (*Engine, error) {
	// Set defaults
	if config.MaxConcurrentWorkflows == 0 {
		config.MaxConcurrentWorkflows = DefaultMaxConcurrentWorkflows
	}
	if config.MaxConcurrentSteps == 0 {
		config.MaxConcurrentSteps = DefaultMaxConcurrentSteps
	}
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultWorkflowTimeout
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = DefaultRetryAttempts
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	if config.EventBufferSize == 0 {
		config.EventBufferSize = DefaultEventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	engine := &Engine{
		config:          config,
		activeWorkflows: make(map[string]*WorkflowInstance),
		eventHandlers:   make(map[EventType][]EventSubscriber),
		ctx:             ctx,
		cancel:          cancel,
	}

	// Initialize components
	if err := engine.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize engine components: %w", err)
	}

	// Start background workers
	engine.startBackgroundWorkers()

	return engine, nil
}

// initializeComponents initializes all engine components
func (e *Engine) initializeComponents() error {
	var err error

	// Initialize state manager
	e.stateManager, err = NewStateManager(e.config)
	if err != nil {
		return fmt.Errorf("failed to create state manager: %w", err)
	}

	// Initialize step executor
	e.stepExecutor, err = NewStepExecutor(e.config)
	if err != nil {
		return fmt.Errorf("failed to create step executor: %w", err)
	}

	// Initialize dependency graph
	e.dependencyGraph = NewDependencyGraph()

	// Initialize event bus
	e.eventBus, err = NewEventBus(e.config.EventBufferSize)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}

	// Initialize worker pool
	e.stepWorkers, err = NewWorkerPool(e.config.MaxConcurrentSteps)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	// Initialize persistence if enabled
	if e.config.PersistenceEnabled {
		e.persistence, err = NewPersistenceManager(PersistenceConfig{})
		if err != nil {
			return fmt.Errorf("failed to create persistence manager: %w", err)
		}
	}

	// Initialize metrics if enabled
	if e.config.MetricsEnabled {
		e.metrics = NewMetricsCollector()
	}

	return nil
}

// startBackgroundWorkers starts background processing workers
func (e *Engine) startBackgroundWorkers() {
	// Start event processor
	e.shutdownWG.Add(1)
	go e.processEvents()

	// Start workflow monitor
	e.shutdownWG.Add(1)
	go e.monitorWorkflows()

	// Start metrics collector if enabled
	if e.config.MetricsEnabled {
		e.shutdownWG.Add(1)
		go e.collectMetrics()
	}
}

// StartWorkflow starts a new workflow instance
func (e *Engine) StartWorkflow(ctx context.Context, definition *WorkflowDefinition, variables map[string]interface{}) (*WorkflowInstance, error) {
	// Check concurrency limits
	e.workflowsMutex.RLock()
	if len(e.activeWorkflows) >= e.config.MaxConcurrentWorkflows {
		e.workflowsMutex.RUnlock()
		return nil, fmt.Errorf("maximum concurrent workflows (%d) reached", e.config.MaxConcurrentWorkflows)
	}
	e.workflowsMutex.RUnlock()

	// Create workflow instance
	instance, err := e.createWorkflowInstance(ctx, definition, variables)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow instance: %w", err)
	}

	// Register workflow
	e.workflowsMutex.Lock()
	e.activeWorkflows[instance.ID] = instance
	e.workflowsMutex.Unlock()

	// Persist workflow if enabled
	if e.persistence != nil {
		if err := e.persistence.SaveWorkflow(instance); err != nil {
			// Log error but don't fail workflow start
			e.logError(fmt.Errorf("failed to persist workflow %s: %w", instance.ID, err))
		}
	}

	// Emit workflow started event
	e.emitEvent(WorkflowEvent{
		Type:       EventTypeWorkflowStarted,
		WorkflowID: instance.ID,
		Timestamp:  time.Now(),
		Data:       map[string]interface{}{"definition": definition.Name},
	})

	// Start workflow execution with proper tracking
	e.shutdownWG.Add(1)
	go func() {
		defer e.shutdownWG.Done()
		e.executeWorkflow(instance)
	}()

	return instance, nil
}

// StopWorkflow stops a running workflow
func (e *Engine) StopWorkflow(workflowID string, reason string) error {
	e.workflowsMutex.Lock()
	defer e.workflowsMutex.Unlock()

	instance, exists := e.activeWorkflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not found", workflowID)
	}

	// Cancel workflow context
	instance.Cancel()

	// Update state
	_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateCancelled) //nolint:errcheck // State transition errors are logged internally

	// Emit workflow stopped event
	e.emitEvent(WorkflowEvent{
		Type:       EventTypeWorkflowStopped,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
		Data:       map[string]interface{}{"reason": reason},
	})

	return nil
}

// PauseWorkflow pauses a running workflow
func (e *Engine) PauseWorkflow(workflowID string) error {
	e.workflowsMutex.Lock()
	defer e.workflowsMutex.Unlock()

	instance, exists := e.activeWorkflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not found", workflowID)
	}

	instance.stateMutex.RLock()
	currentState := instance.State
	instance.stateMutex.RUnlock()

	if currentState != WorkflowStateRunning {
		return fmt.Errorf("workflow %s is not running (state: %v)", workflowID, currentState)
	}

	// Transition to paused state
	_ = e.stateManager.TransitionWorkflow(instance, WorkflowStatePaused) //nolint:errcheck // State transition errors are logged internally

	// Emit workflow paused event
	e.emitEvent(WorkflowEvent{
		Type:       EventTypeWorkflowPaused,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
	})

	return nil
}

// ResumeWorkflow resumes a paused workflow
func (e *Engine) ResumeWorkflow(workflowID string) error {
	e.workflowsMutex.Lock()
	defer e.workflowsMutex.Unlock()

	instance, exists := e.activeWorkflows[workflowID]
	if !exists {
		return fmt.Errorf("workflow %s not found", workflowID)
	}

	instance.stateMutex.RLock()
	currentState := instance.State
	instance.stateMutex.RUnlock()

	if currentState != WorkflowStatePaused {
		return fmt.Errorf("workflow %s is not paused (state: %v)", workflowID, currentState)
	}

	// Transition to running state
	_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateRunning) //nolint:errcheck // State transition errors are logged internally

	// Emit workflow resumed event
	e.emitEvent(WorkflowEvent{
		Type:       EventTypeWorkflowResumed,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
	})

	return nil
}

// GetWorkflowStatus returns the current status of a workflow
func (e *Engine) GetWorkflowStatus(workflowID string) (*WorkflowStatus, error) {
	e.workflowsMutex.RLock()
	instance, exists := e.activeWorkflows[workflowID]
	e.workflowsMutex.RUnlock()

	if !exists {
		// Check persistence for completed workflows
		if e.persistence != nil {
			return e.persistence.GetWorkflowStatus(workflowID)
		}
		return nil, fmt.Errorf("workflow %s not found", workflowID)
	}

	return e.buildWorkflowStatus(instance), nil
}

// ListActiveWorkflows returns all currently active workflows
func (e *Engine) ListActiveWorkflows() []*WorkflowStatus {
	e.workflowsMutex.RLock()
	defer e.workflowsMutex.RUnlock()

	statuses := make([]*WorkflowStatus, 0, len(e.activeWorkflows))
	for _, instance := range e.activeWorkflows {
		statuses = append(statuses, e.buildWorkflowStatus(instance))
	}

	return statuses
}

// SetAgentExecutor wires the agent executor (C8) that Task steps dispatch
// through.
func (e *Engine) SetAgentExecutor(ex *executor.Executor) {
	e.stepExecutor.SetAgentExecutor(ex)
}

// SetBroker wires the message broker (C7) that Message steps publish
// through.
func (e *Engine) SetBroker(b *messaging.Broker) {
	e.stepExecutor.SetBroker(b)
}

// SetCoordinationService wires the coordination service (C5) that
// Coordinate steps invoke.
func (e *Engine) SetCoordinationService(s *coordination.Service) {
	e.stepExecutor.SetCoordinationService(s)
}

// RegisterCustomStepHandler registers a named handler for StepTypeCustom
// steps.
func (e *Engine) RegisterCustomStepHandler(name string, handler CustomStepHandler) {
	e.stepExecutor.RegisterCustomStepHandler(name, handler)
}

// Shutdown gracefully shuts down the engine
func (e *Engine) Shutdown(ctx context.Context) error {
	// Cancel all workflows
	e.workflowsMutex.RLock()
	for _, instance := range e.activeWorkflows {
		instance.Cancel()
	}
	e.workflowsMutex.RUnlock()

	// Cancel engine context
	e.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.shutdownWG.Wait()
	}()

	// Use a timeout context if the provided one doesn't have a deadline
	timeoutCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		timeoutCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	select {
	case <-done:
		return nil
	case <-timeoutCtx.Done():
		return fmt.Errorf("shutdown timeout: %w", timeoutCtx.Err())
	}
}

// Helper methods

func (e *Engine) createWorkflowInstance(ctx context.Context, definition *WorkflowDefinition, variables map[string]interface{}) (*WorkflowInstance, error) {
	workflowCtx, cancel := context.WithTimeout(ctx, e.config.DefaultTimeout)

	instance := &WorkflowInstance{
		ID:         generateWorkflowID(),
		Definition: definition,
		State:      WorkflowStateInitializing,
		Context:    workflowCtx,
		Cancel:     cancel,
		StartTime:  time.Now(),
		Variables:  variables,
		Metadata:   make(map[string]interface{}),
		Events:     []WorkflowEvent{},
	}

	// Initialize steps
	steps, err := e.createStepInstances(instance, definition.Steps)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create step instances: %w", err)
	}
	instance.Steps = steps

	return instance, nil
}

func (e *Engine) createStepInstances(workflow *WorkflowInstance, definitions []StepDefinition) ([]*StepInstance, error) {
	steps := make([]*StepInstance, len(definitions))

	for i, def := range definitions {
		stepCtx, cancel := context.WithCancel(workflow.Context)

		step := &StepInstance{
			ID:         fmt.Sprintf("%s-step-%d", workflow.ID, i),
			Definition: &def,
			Status:     StepStatusPending,
			Context:    stepCtx,
			Cancel:     cancel,
			Metadata:   make(map[string]interface{}),
		}

		steps[i] = step
	}

	// Resolve dependencies
	if err := e.resolveStepDependencies(steps, workflow.Definition.Dependencies); err != nil {
		return nil, fmt.Errorf("failed to resolve step dependencies: %w", err)
	}

	return steps, nil
}

func (e *Engine) resolveStepDependencies(steps []*StepInstance, dependencies map[string][]string) error {
	stepMap := make(map[string]*StepInstance)
	for _, step := range steps {
		stepMap[step.Definition.Name] = step
	}

	for stepName, deps := range dependencies {
		step, exists := stepMap[stepName]
		if !exists {
			return fmt.Errorf("step %s not found", stepName)
		}

		for _, depName := range deps {
			depStep, exists := stepMap[depName]
			if !exists {
				return fmt.Errorf("dependency step %s not found", depName)
			}
			step.Dependencies = append(step.Dependencies, depStep)
		}
	}

	return nil
}

func (e *Engine) buildWorkflowStatus(instance *WorkflowInstance) *WorkflowStatus {
	instance.stateMutex.RLock()
	instance.stepMutex.RLock()
	defer instance.stateMutex.RUnlock()
	defer instance.stepMutex.RUnlock()

	stepStatuses := make([]StepStatus, len(instance.Steps))
	for i, step := range instance.Steps {
		stepStatuses[i] = step.Status
	}

	return &WorkflowStatus{
		ID:            instance.ID,
		Name:          instance.Definition.Name,
		State:         instance.State,
		StartTime:     instance.StartTime,
		EndTime:       instance.EndTime,
		CurrentStep:  instance.CurrentStep,
		StepCount:    len(instance.Steps),
		StepStatuses: stepStatuses,
		Progress:      e.calculateWorkflowProgress(instance),
		LastError:     instance.LastError,
		ErrorCount:    instance.ErrorCount,
	}
}

func (e *Engine) calculateWorkflowProgress(instance *WorkflowInstance) float64 {
	if len(instance.Steps) == 0 {
		return 0
	}

	completed := 0
	for _, step := range instance.Steps {
		if step.Status == StepStatusCompleted {
			completed++
		}
	}

	return float64(completed) / float64(len(instance.Steps))
}

var workflowIDCounter int64

func generateWorkflowID() string {
	counter := atomic.AddInt64(&workflowIDCounter, 1)
	return fmt.Sprintf("workflow_%d_%d", time.Now().UnixNano(), counter)
}

func (e *Engine) logError(err error) {
	// TODO: Implement proper logging
	fmt.Printf("Engine error: %v\n", err)
}

// executeWorkflow executes a workflow instance
func (e *Engine) executeWorkflow(instance *WorkflowInstance) {
	defer func() {
		// Remove from active workflows when complete
		e.workflowsMutex.Lock()
		delete(e.activeWorkflows, instance.ID)
		e.workflowsMutex.Unlock()

		// Persist final state
		if e.persistence != nil {
			_ = e.persistence.SaveWorkflow(instance) //nolint:errcheck // Persistence errors are not critical for workflow execution
		}
	}()

	// Transition to running state
	_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateRunning) //nolint:errcheck // State transition errors are logged internally

	// Get execution order from dependency graph
	executionOrder, err := e.planExecution(instance)
	if err != nil {
		_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateFailed) //nolint:errcheck // State transition errors are logged internally
		instance.LastError = err
		e.emitEvent(WorkflowEvent{
			Type:       EventTypeWorkflowFailed,
			WorkflowID: instance.ID,
			Timestamp:  time.Now(),
			Data:       map[string]interface{}{"error": err.Error()},
		})
		return
	}

	// Execute steps in order
	for levelIndex, stepLevel := range executionOrder {
		// Check if workflow should continue
		instance.stateMutex.RLock()
		currentState := instance.State
		instance.stateMutex.RUnlock()

		if currentState != WorkflowStateRunning {
			break
		}

		instance.stateMutex.Lock()
		instance.CurrentStep = levelIndex
		instance.stateMutex.Unlock()

		// Execute steps in current level (potentially in parallel)
		if err := e.executeStepLevel(instance.Context, stepLevel, instance); err != nil {
			_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateFailed) //nolint:errcheck // State transition errors are logged internally
			instance.LastError = err
			instance.ErrorCount++
			e.emitEvent(WorkflowEvent{
				Type:       EventTypeWorkflowFailed,
				WorkflowID: instance.ID,
				Timestamp:  time.Now(),
				Data:       map[string]interface{}{"error": err.Error()},
			})
			return
		}
	}

	// Workflow completed successfully
	instance.stateMutex.RLock()
	currentState := instance.State
	instance.stateMutex.RUnlock()

	if currentState == WorkflowStateRunning {
		_ = e.stateManager.TransitionWorkflow(instance, WorkflowStateCompleted) //nolint:errcheck // State transition errors are logged internally
		e.emitEvent(WorkflowEvent{
			Type:       EventTypeWorkflowCompleted,
			WorkflowID: instance.ID,
			Timestamp:  time.Now(),
		})
	}
}

// planExecution creates an execution plan for the workflow
func (e *Engine) planExecution(instance *WorkflowInstance) ([][]string, error) {
	// Build dependency graph
	e.dependencyGraph = NewDependencyGraph()

	for _, step := range instance.Steps {
		var depIDs []string
		for _, dep := range step.Dependencies {
			depIDs = append(depIDs, dep.ID)
		}
		e.dependencyGraph.AddStep(step.ID, depIDs)
	}

	return e.dependencyGraph.GetExecutionOrder()
}

// executeStepLevel executes all steps in a level
func (e *Engine) executeStepLevel(ctx context.Context, stepIDs []string, workflow *WorkflowInstance) error {
	// Find step instances
	var steps []*StepInstance
	stepMap := make(map[string]*StepInstance)
	for _, step := range workflow.Steps {
		stepMap[step.ID] = step
	}

	for _, stepID := range stepIDs {
		if step, exists := stepMap[stepID]; exists {
			steps = append(steps, step)
		}
	}

	// Check if any steps should run in parallel
	hasParallel := false
	for _, step := range steps {
		if step.Definition.Type == StepTypeParallel {
			hasParallel = true
			break
		}
	}

	if hasParallel && len(steps) > 1 {
		// Execute in parallel
		return e.stepExecutor.ExecuteParallelSteps(ctx, steps, workflow)
	} else {
		// Execute sequentially
		for _, step := range steps {
			if err := e.stepExecutor.ExecuteStep(ctx, step, workflow); err != nil {
				return err
			}
		}
		return nil
	}
}

// processEvents processes workflow events
func (e *Engine) processEvents() {
	defer e.shutdownWG.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			// Event processing would be more sophisticated in practice
			// In a real implementation, this would process actual events
		}
	}
}

// monitorWorkflows monitors active workflows
func (e *Engine) monitorWorkflows() {
	defer e.shutdownWG.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.performHealthCheck()
		}
	}
}

// collectMetrics collects workflow metrics
func (e *Engine) collectMetrics() {
	defer e.shutdownWG.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.updateMetrics()
		}
	}
}

// performHealthCheck performs health checks on active workflows
func (e *Engine) performHealthCheck() {
	e.workflowsMutex.RLock()
	defer e.workflowsMutex.RUnlock()

	for _, workflow := range e.activeWorkflows {
		// Check for timeouts
		if time.Since(workflow.StartTime) > e.config.DefaultTimeout {
			_ = e.stateManager.TransitionWorkflow(workflow, WorkflowStateAborted) //nolint:errcheck // State transition errors are logged internally
			workflow.Cancel()
		}

		// Check for stuck steps
		for _, step := range workflow.Steps {
			if step.Status == StepStatusRunning {
				timeout := step.Definition.Timeout
				if timeout == 0 {
					timeout = e.config.DefaultTimeout
				}
				if time.Since(step.StartTime) > timeout {
					_ = e.stateManager.TransitionStep(step, StepStatusFailed) //nolint:errcheck // State transition errors are logged internally
					step.Error = fmt.Errorf("step timeout after %v", timeout)
				}
			}
		}
	}
}

// updateMetrics updates workflow metrics
func (e *Engine) updateMetrics() {
	if e.metrics == nil {
		return
	}

	e.workflowsMutex.RLock()
	activeCount := len(e.activeWorkflows)
	e.workflowsMutex.RUnlock()

	e.metrics.RecordMetric("active_workflows", activeCount)
	e.metrics.RecordMetric("last_update", time.Now())
}

// emitEvent emits a workflow event
func (e *Engine) emitEvent(event WorkflowEvent) {
	if e.eventBus != nil {
		e.eventBus.Publish(event)
	}
}

// WorkflowStatus represents the current status of a workflow
type WorkflowStatus struct {
	ID            string
	Name          string
	State         WorkflowState
	StartTime     time.Time
	EndTime       time.Time
	CurrentStep  int
	StepCount    int
	StepStatuses []StepStatus
	Progress      float64
	LastError     error
	ErrorCount    int
}

func (ws WorkflowState) String() string {
	switch ws {
	case WorkflowStateInitializing:
		return "initializing"
	case WorkflowStateRunning:
		return "running"
	case WorkflowStatePaused:
		return "paused"
	case WorkflowStateWaitingForInput:
		return "waiting_for_input"
	case WorkflowStateCompleted:
		return statusCompleted
	case WorkflowStateFailed:
		return "failed"
	case WorkflowStateCancelled:
		return "canceled"
	case WorkflowStateAborted:
		return "aborted"
	default:
		return statusUnknown
	}
}

func (ss StepStatus) String() string {
	switch ss {
	case StepStatusPending:
		return "pending"
	case StepStatusRunning:
		return "running"
	case StepStatusCompleted:
		return statusCompleted
	case StepStatusFailed:
		return "failed"
	case StepStatusSkipped:
		return "skipped"
	case StepStatusCancelled:
		return "canceled"
	case StepStatusWaitingForDependencies:
		return "waiting_for_dependencies"
	case StepStatusWaitingForInput:
		return "waiting_for_input"
	default:
		return statusUnknown
	}
}

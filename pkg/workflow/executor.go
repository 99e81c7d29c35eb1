package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentfabric/coordinator/pkg/agents"
	"github.com/agentfabric/coordinator/pkg/coordination"
	"github.com/agentfabric/coordinator/pkg/executor"
	"github.com/agentfabric/coordinator/pkg/messaging"
	"golang.org/x/sync/errgroup"
)

// CustomStepHandler implements a named extension point for StepTypeCustom
// steps, registered with StepExecutor.RegisterCustomStepHandler.
type CustomStepHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// StepExecutor dispatches a StepInstance's work according to its
// StepDefinition.Type, recursing into nested step definitions for the
// composite types (Sequential, Parallel, Conditional, Loop) and delegating
// to the fabric's other subsystems for the leaf types: Task steps run
// through the agent executor (C8), Message steps publish through the
// message broker (C7), and Coordinate steps call the coordination service
// (C5).
type StepExecutor struct {
	config       EngineConfig
	workerPool   *WorkerPool
	retryManager *RetryManager

	agentExecutor *executor.Executor
	broker        *messaging.Broker
	coordinator   *coordination.Service

	handlersMu     sync.RWMutex
	customHandlers map[string]CustomStepHandler
}

// RetryManager handles retry logic for failed steps
type RetryManager struct {
	config EngineConfig
}

// NewStepExecutor creates a new step executor
func NewStepExecutor(config EngineConfig) (*StepExecutor, error) {
	maxWorkers := config.MaxConcurrentSteps
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	workerPool, err := NewWorkerPool(maxWorkers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &StepExecutor{
		config:         config,
		workerPool:     workerPool,
		retryManager:   NewRetryManager(config),
		customHandlers: make(map[string]CustomStepHandler),
	}, nil
}

// SetAgentExecutor wires the agent executor (C8) that Task steps dispatch
// through. Task steps fail until this is set.
func (se *StepExecutor) SetAgentExecutor(ex *executor.Executor) {
	se.agentExecutor = ex
}

// SetBroker wires the message broker (C7) that Message steps publish
// through. Message steps fail until this is set.
func (se *StepExecutor) SetBroker(b *messaging.Broker) {
	se.broker = b
}

// SetCoordinationService wires the coordination service (C5) that
// Coordinate steps invoke. Coordinate steps fail until this is set.
func (se *StepExecutor) SetCoordinationService(s *coordination.Service) {
	se.coordinator = s
}

// RegisterCustomStepHandler registers a named handler for StepTypeCustom
// steps and for ConditionCustom conditions.
func (se *StepExecutor) RegisterCustomStepHandler(name string, handler CustomStepHandler) {
	se.handlersMu.Lock()
	defer se.handlersMu.Unlock()
	se.customHandlers[name] = handler
}

// ExecuteStep executes a single step: it checks preconditions, dispatches
// the step's work by type, and records the outcome.
func (se *StepExecutor) ExecuteStep(ctx context.Context, step *StepInstance, workflow *WorkflowInstance) error {
	if err := se.canExecuteStep(step); err != nil {
		return fmt.Errorf("step %s cannot be executed: %w", step.ID, err)
	}

	if !se.areDependenciesSatisfied(step) {
		step.mutex.Lock()
		step.Status = StepStatusWaitingForDependencies
		step.mutex.Unlock()
		return fmt.Errorf("step %s dependencies not satisfied", step.ID)
	}

	if !se.evaluateConditions(step, workflow) {
		step.mutex.Lock()
		step.Status = StepStatusSkipped
		step.mutex.Unlock()
		return nil
	}

	step.mutex.Lock()
	step.Status = StepStatusRunning
	step.StartTime = time.Now()
	step.mutex.Unlock()

	output, err := se.executeWithTimeout(ctx, step, workflow)

	if err != nil {
		step.mutex.Lock()
		step.Error = err
		step.Status = StepStatusFailed
		step.EndTime = time.Now()
		step.mutex.Unlock()

		if se.shouldRetry(step) {
			return se.retryStep(ctx, step, workflow)
		}

		if step.Definition.Optional {
			step.mutex.Lock()
			step.Status = StepStatusSkipped
			step.mutex.Unlock()
			return nil
		}

		return fmt.Errorf("step %s execution failed: %w", step.ID, err)
	}

	step.mutex.Lock()
	step.Output = output
	step.Status = StepStatusCompleted
	step.EndTime = time.Now()
	step.mutex.Unlock()

	return nil
}

func (se *StepExecutor) executeWithTimeout(ctx context.Context, step *StepInstance, workflow *WorkflowInstance) (interface{}, error) {
	actionCtx := ctx
	if step.Definition.Timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, step.Definition.Timeout)
		defer cancel()
	}
	return se.dispatchStep(actionCtx, step.Definition, workflow, step.ID)
}

// dispatchStep runs def's work, recursing into nested step definitions for
// the composite step types.
func (se *StepExecutor) dispatchStep(ctx context.Context, def *StepDefinition, workflow *WorkflowInstance, idPrefix string) (interface{}, error) {
	switch def.Type {
	case StepTypeTask:
		return se.execTask(ctx, def.Task)
	case StepTypeSequential:
		return se.execSequential(ctx, def.Sequential, workflow, idPrefix)
	case StepTypeParallel:
		return se.execParallel(ctx, def.Parallel, workflow, idPrefix)
	case StepTypeConditional:
		return se.execConditional(ctx, def.Conditional, workflow, idPrefix)
	case StepTypeLoop:
		return se.execLoop(ctx, def.Loop, workflow, idPrefix)
	case StepTypeWait:
		return se.execWait(ctx, def.Wait, workflow)
	case StepTypeMessage:
		return se.execMessage(ctx, def.Message)
	case StepTypeCoordinate:
		return se.execCoordinate(ctx, def.Coordinate)
	case StepTypeCustom:
		return se.execCustom(ctx, def.Custom)
	default:
		return nil, fmt.Errorf("unknown step type: %v", def.Type)
	}
}

func (se *StepExecutor) execTask(ctx context.Context, spec *TaskStepSpec) (interface{}, error) {
	if spec == nil {
		return nil, fmt.Errorf("task step has no spec")
	}
	if se.agentExecutor == nil {
		return nil, fmt.Errorf("task step requires an agent executor, none is wired")
	}

	req := executor.Request{
		ID:      fmt.Sprintf("task-%d", time.Now().UnixNano()),
		AgentID: agents.AgentID(spec.AgentID),
		Task: &agents.AgentMessage{
			ID:        fmt.Sprintf("msg-%d", time.Now().UnixNano()),
			Type:      agents.MessageType(spec.MessageType),
			Payload:   spec.Payload,
			Timestamp: time.Now(),
		},
	}

	record, err := se.agentExecutor.Execute(ctx, req)
	if err != nil {
		return record, err
	}
	return record, nil
}

func (se *StepExecutor) execSequential(ctx context.Context, spec *SequentialStepSpec, workflow *WorkflowInstance, idPrefix string) (interface{}, error) {
	if spec == nil {
		return nil, nil
	}
	for i := range spec.Children {
		child := se.childInstance(ctx, &spec.Children[i], idPrefix, i)
		if err := se.ExecuteStep(ctx, child, workflow); err != nil {
			return nil, fmt.Errorf("sequential child %d failed: %w", i, err)
		}
	}
	return statusCompleted, nil
}

func (se *StepExecutor) execParallel(ctx context.Context, spec *ParallelStepSpec, workflow *WorkflowInstance, idPrefix string) (interface{}, error) {
	if spec == nil || len(spec.Children) == 0 {
		return nil, nil
	}

	if spec.FailFast {
		eg, egCtx := errgroup.WithContext(ctx)
		for i := range spec.Children {
			i := i
			eg.Go(func() error {
				child := se.childInstance(egCtx, &spec.Children[i], idPrefix, i)
				return se.ExecuteStep(egCtx, child, workflow)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, fmt.Errorf("parallel execution failed: %w", err)
		}
		return statusCompleted, nil
	}

	var eg errgroup.Group
	for i := range spec.Children {
		i := i
		eg.Go(func() error {
			child := se.childInstance(ctx, &spec.Children[i], idPrefix, i)
			return se.ExecuteStep(ctx, child, workflow)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("parallel execution failed: %w", err)
	}
	return statusCompleted, nil
}

func (se *StepExecutor) execConditional(ctx context.Context, spec *ConditionalStepSpec, workflow *WorkflowInstance, idPrefix string) (interface{}, error) {
	if spec == nil {
		return nil, nil
	}

	branch := spec.Else
	if se.evaluateCondition(spec.Condition, workflow) {
		branch = spec.Then
	}
	if branch == nil {
		return nil, nil
	}

	child := se.childInstance(ctx, branch, idPrefix, 0)
	if err := se.ExecuteStep(ctx, child, workflow); err != nil {
		return nil, err
	}
	return statusCompleted, nil
}

func (se *StepExecutor) execLoop(ctx context.Context, spec *LoopStepSpec, workflow *WorkflowInstance, idPrefix string) (interface{}, error) {
	if spec == nil || spec.Body == nil {
		return nil, nil
	}

	iterations := 0
	for {
		if spec.MaxIterations > 0 && iterations >= spec.MaxIterations {
			break
		}
		if iterations > 0 || spec.Condition.Type != ConditionAlways {
			if !se.evaluateCondition(spec.Condition, workflow) {
				break
			}
		}

		child := se.childInstance(ctx, spec.Body, idPrefix, iterations)
		if err := se.ExecuteStep(ctx, child, workflow); err != nil {
			return nil, fmt.Errorf("loop iteration %d failed: %w", iterations, err)
		}

		iterations++

		select {
		case <-ctx.Done():
			return iterations, ctx.Err()
		default:
		}
	}

	return iterations, nil
}

func (se *StepExecutor) execWait(ctx context.Context, spec *WaitStepSpec, workflow *WorkflowInstance) (interface{}, error) {
	if spec == nil {
		return nil, nil
	}

	if spec.Condition.Type == ConditionAlways && spec.Duration > 0 {
		select {
		case <-time.After(spec.Duration):
			return statusCompleted, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	poll := spec.PollEvery
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if se.evaluateCondition(spec.Condition, workflow) {
				return statusCompleted, nil
			}
		}
	}
}

func (se *StepExecutor) execMessage(ctx context.Context, spec *MessageStepSpec) (interface{}, error) {
	if spec == nil {
		return nil, fmt.Errorf("message step has no spec")
	}
	if se.broker == nil {
		return nil, fmt.Errorf("message step requires a message broker, none is wired")
	}

	env := &messaging.Envelope{
		Type:       messaging.CustomMessage,
		CustomType: spec.Type,
		Sender:     "workflow-engine",
		Payload:    spec.Payload,
	}

	if spec.Topic == "" {
		if err := se.broker.Broadcast(env); err != nil {
			return nil, fmt.Errorf("broadcast failed: %w", err)
		}
		return statusCompleted, nil
	}

	env.Recipients = []messaging.AgentID{messaging.AgentID(spec.Topic)}
	if err := se.broker.Send(env); err != nil {
		return nil, fmt.Errorf("send failed: %w", err)
	}
	return statusCompleted, nil
}

func (se *StepExecutor) execCoordinate(ctx context.Context, spec *CoordinateStepSpec) (interface{}, error) {
	if spec == nil {
		return nil, fmt.Errorf("coordinate step has no spec")
	}
	if se.coordinator == nil {
		return nil, fmt.Errorf("coordinate step requires a coordination service, none is wired")
	}

	args := spec.Args
	switch spec.Operation {
	case "join":
		return se.coordinator.AgentJoin(args["agent_id"], splitCSV(args["capabilities"]), nil)
	case "leave":
		return se.coordinator.AgentLeave(args["agent_id"])
	case "modify_context":
		ttl, _ := time.ParseDuration(args["ttl"])
		return nil, se.coordinator.ModifyContext(args["agent_id"], args["scope_path"], []byte(args["content"]), ttl)
	case "sync":
		return nil, se.coordinator.Sync(args["scope_path"])
	case "complete_sync":
		return nil, se.coordinator.CompleteSync(args["scope_path"])
	case "fail_sync":
		return nil, se.coordinator.FailSync(args["scope_path"], args["reason"])
	case "release_lock":
		return nil, se.coordinator.ReleaseLock(args["agent_id"], args["scope_path"])
	default:
		return nil, fmt.Errorf("unknown coordinate operation: %s", spec.Operation)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (se *StepExecutor) execCustom(ctx context.Context, spec *CustomStepSpec) (interface{}, error) {
	if spec == nil {
		return nil, fmt.Errorf("custom step has no spec")
	}

	se.handlersMu.RLock()
	handler, ok := se.customHandlers[spec.HandlerName]
	se.handlersMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no custom handler registered for %q", spec.HandlerName)
	}

	return handler(ctx, spec.Parameters)
}

// childInstance builds an ephemeral StepInstance wrapping a nested step
// definition so it can be run through the ordinary ExecuteStep path.
func (se *StepExecutor) childInstance(ctx context.Context, def *StepDefinition, idPrefix string, index int) *StepInstance {
	return &StepInstance{
		ID:         fmt.Sprintf("%s.%d", idPrefix, index),
		Definition: def,
		Status:     StepStatusPending,
		Context:    ctx,
		Metadata:   make(map[string]interface{}),
	}
}

// ExecuteParallelSteps executes a batch of top-level (DAG-level) steps
// concurrently, bounded by the worker pool's concurrency limit.
func (se *StepExecutor) ExecuteParallelSteps(ctx context.Context, steps []*StepInstance, workflow *WorkflowInstance) error {
	if len(steps) == 0 {
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		eg.Go(func() error {
			sema := se.workerPool.semaphore
			select {
			case sema <- struct{}{}:
				defer func() { <-sema }()
			case <-egCtx.Done():
				return egCtx.Err()
			}
			if err := se.ExecuteStep(egCtx, step, workflow); err != nil {
				return fmt.Errorf("parallel step %s failed: %w", step.ID, err)
			}
			return nil
		})
	}

	return eg.Wait()
}

// Close shuts down the step executor and its worker pool
func (se *StepExecutor) Close() error {
	if se.workerPool != nil {
		se.workerPool.Shutdown()
	}
	return nil
}

// Helper methods

func (se *StepExecutor) canExecuteStep(step *StepInstance) error {
	step.mutex.RLock()
	status := step.Status
	step.mutex.RUnlock()

	if status != StepStatusPending && status != StepStatusWaitingForDependencies {
		return fmt.Errorf("step is in invalid state for execution: %v", status)
	}

	if step.Definition == nil {
		return fmt.Errorf("step has no definition")
	}

	return nil
}

func (se *StepExecutor) areDependenciesSatisfied(step *StepInstance) bool {
	for _, dep := range step.Dependencies {
		if dep.Status != StepStatusCompleted && dep.Status != StepStatusSkipped {
			return false
		}
	}
	return true
}

func (se *StepExecutor) evaluateConditions(step *StepInstance, workflow *WorkflowInstance) bool {
	for _, condition := range step.Definition.Conditions {
		if !se.evaluateCondition(condition, workflow) {
			return false
		}
	}
	return true
}

func (se *StepExecutor) evaluateCondition(condition ConditionDefinition, workflow *WorkflowInstance) bool {
	switch condition.Type {
	case ConditionAlways:
		return true
	case ConditionNever:
		return false
	case ConditionVariableEquals:
		if workflow == nil {
			return false
		}
		value, exists := workflow.Variables[condition.Variable]
		if !exists {
			return false
		}
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", condition.Value)
	case ConditionVariableExists:
		if workflow == nil {
			return false
		}
		_, exists := workflow.Variables[condition.Variable]
		return exists
	case ConditionStepSucceeded:
		return se.stepStatusByName(workflow, condition.StepName) == StepStatusCompleted
	case ConditionStepFailed:
		return se.stepStatusByName(workflow, condition.StepName) == StepStatusFailed
	case ConditionAllStepsSucceeded:
		return se.allStepsMatch(workflow, StepStatusCompleted)
	case ConditionAnyStepSucceeded:
		return se.anyStepMatches(workflow, StepStatusCompleted)
	case ConditionAllStepsFailed:
		return se.allStepsMatch(workflow, StepStatusFailed)
	case ConditionAnyStepFailed:
		return se.anyStepMatches(workflow, StepStatusFailed)
	case ConditionCustom:
		se.handlersMu.RLock()
		handler, ok := se.customHandlers[condition.Handler]
		se.handlersMu.RUnlock()
		if !ok {
			return false
		}
		result, err := handler(context.Background(), map[string]interface{}{
			"variable": condition.Variable,
			"value":    condition.Value,
		})
		if err != nil {
			return false
		}
		ok, _ = result.(bool)
		return ok
	default:
		return false
	}
}

func (se *StepExecutor) stepStatusByName(workflow *WorkflowInstance, name string) StepStatus {
	if workflow == nil {
		return StepStatusPending
	}
	for _, step := range workflow.Steps {
		if step.Definition != nil && step.Definition.Name == name {
			return step.Status
		}
	}
	return StepStatusPending
}

func (se *StepExecutor) allStepsMatch(workflow *WorkflowInstance, status StepStatus) bool {
	if workflow == nil || len(workflow.Steps) == 0 {
		return false
	}
	for _, step := range workflow.Steps {
		if step.Status != status {
			return false
		}
	}
	return true
}

func (se *StepExecutor) anyStepMatches(workflow *WorkflowInstance, status StepStatus) bool {
	if workflow == nil {
		return false
	}
	for _, step := range workflow.Steps {
		if step.Status == status {
			return true
		}
	}
	return false
}

func (se *StepExecutor) shouldRetry(step *StepInstance) bool {
	if step.Definition.RetryPolicy == nil {
		return false
	}

	step.mutex.RLock()
	retryCount := step.RetryCount
	step.mutex.RUnlock()

	return retryCount < step.Definition.RetryPolicy.MaxAttempts
}

func (se *StepExecutor) retryStep(ctx context.Context, step *StepInstance, workflow *WorkflowInstance) error {
	return se.retryManager.RetryStep(ctx, step, workflow, se)
}

// RetryManager implementation

func NewRetryManager(config EngineConfig) *RetryManager {
	return &RetryManager{
		config: config,
	}
}

func (rm *RetryManager) RetryStep(ctx context.Context, step *StepInstance, workflow *WorkflowInstance, se *StepExecutor) error {
	if step.Definition.RetryPolicy == nil {
		return fmt.Errorf("no retry policy defined for step %s", step.ID)
	}

	policy := step.Definition.RetryPolicy

	step.mutex.Lock()
	step.RetryCount++
	retryCount := step.RetryCount
	step.mutex.Unlock()

	delay := rm.calculateRetryDelay(policy, retryCount)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	step.mutex.Lock()
	step.Status = StepStatusPending
	step.Error = nil
	step.StartTime = time.Time{}
	step.EndTime = time.Time{}
	step.mutex.Unlock()

	return se.ExecuteStep(ctx, step, workflow)
}

func (rm *RetryManager) calculateRetryDelay(policy *RetryPolicy, attempt int) time.Duration {
	delay := policy.InitialDelay

	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
			break
		}
	}

	return delay
}

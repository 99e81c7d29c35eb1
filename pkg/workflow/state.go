package workflow

import (
	"fmt"
	"sync"
	"time"
)

// StateManager manages workflow and step state transitions
type StateManager struct {
	config           EngineConfig
	transitions      map[WorkflowState][]WorkflowState
	stepTransitions map[StepStatus][]StepStatus
	listeners        map[string][]StateListener
	listenersMutex   sync.RWMutex
}

// StateListener receives state change notifications
type StateListener interface {
	OnStateChange(transition StateTransition)
}

// StateTransition represents a state change
type StateTransition struct {
	EntityType EntityType
	EntityID   string
	FromState  interface{}
	ToState    interface{}
	Timestamp  time.Time
	Reason     string
	Metadata   map[string]interface{}
}

// EntityType defines what entity had a state change
type EntityType int

const (
	EntityTypeWorkflow EntityType = iota
	EntityTypeStep
)

// NewStateManager creates a new state manager
func NewStateManager(config EngineConfig) (*StateManager, error) {
	sm := &StateManager{
		config:    config,
		listeners: make(map[string][]StateListener),
	}

	// Initialize valid transitions
	sm.initializeTransitions()

	return sm, nil
}

// initializeTransitions sets up valid state transitions
func (sm *StateManager) initializeTransitions() {
	// Workflow state transitions
	sm.transitions = map[WorkflowState][]WorkflowState{
		WorkflowStateInitializing: {
			WorkflowStateRunning,
			WorkflowStateFailed,
			WorkflowStateCancelled,
		},
		WorkflowStateRunning: {
			WorkflowStatePaused,
			WorkflowStateWaitingForInput,
			WorkflowStateCompleted,
			WorkflowStateFailed,
			WorkflowStateCancelled,
			WorkflowStateAborted,
		},
		WorkflowStatePaused: {
			WorkflowStateRunning,
			WorkflowStateCancelled,
			WorkflowStateAborted,
		},
		WorkflowStateWaitingForInput: {
			WorkflowStateRunning,
			WorkflowStateFailed,
			WorkflowStateCancelled,
			WorkflowStateAborted,
		},
		WorkflowStateCompleted: {
			// Terminal state - no transitions
		},
		WorkflowStateFailed: {
			WorkflowStateRunning, // For retry
		},
		WorkflowStateCancelled: {
			// Terminal state - no transitions
		},
		WorkflowStateAborted: {
			// Terminal state - no transitions
		},
	}

	// Step state transitions
	sm.stepTransitions = map[StepStatus][]StepStatus{
		StepStatusPending: {
			StepStatusRunning,
			StepStatusWaitingForDependencies,
			StepStatusSkipped,
			StepStatusCancelled,
		},
		StepStatusWaitingForDependencies: {
			StepStatusRunning,
			StepStatusSkipped,
			StepStatusCancelled,
		},
		StepStatusRunning: {
			StepStatusCompleted,
			StepStatusFailed,
			StepStatusWaitingForInput,
			StepStatusCancelled,
		},
		StepStatusWaitingForInput: {
			StepStatusRunning,
			StepStatusFailed,
			StepStatusCancelled,
		},
		StepStatusCompleted: {
			// Terminal state - no transitions
		},
		StepStatusFailed: {
			StepStatusRunning, // For retry
			StepStatusSkipped,
		},
		StepStatusSkipped: {
			// Terminal state - no transitions
		},
		StepStatusCancelled: {
			// Terminal state - no transitions
		},
	}
}

// TransitionWorkflow transitions a workflow to a new state
func (sm *StateManager) TransitionWorkflow(workflow *WorkflowInstance, newState WorkflowState) error {
	return sm.TransitionWorkflowWithReason(workflow, newState, "")
}

// TransitionWorkflowWithReason transitions a workflow with a reason
func (sm *StateManager) TransitionWorkflowWithReason(workflow *WorkflowInstance, newState WorkflowState, reason string) error {
	workflow.stateMutex.Lock()
	defer workflow.stateMutex.Unlock()

	oldState := workflow.State

	// Check if transition is valid
	if !sm.isValidWorkflowTransition(oldState, newState) {
		return fmt.Errorf("invalid workflow state transition from %v to %v", oldState, newState)
	}

	// Update state
	workflow.State = newState

	// Set end time for terminal states
	if sm.isTerminalWorkflowState(newState) {
		workflow.EndTime = time.Now()
	}

	// Create transition event
	transition := StateTransition{
		EntityType: EntityTypeWorkflow,
		EntityID:   workflow.ID,
		FromState:  oldState,
		ToState:    newState,
		Timestamp:  time.Now(),
		Reason:     reason,
		Metadata:   make(map[string]interface{}),
	}

	// Add to workflow events
	workflow.eventsMutex.Lock()
	workflow.Events = append(workflow.Events, WorkflowEvent{
		Type:       EventTypeStateChanged,
		WorkflowID: workflow.ID,
		Timestamp:  time.Now(),
		Data: map[string]interface{}{
			"from_state": oldState.String(),
			"to_state":   newState.String(),
			"reason":     reason,
		},
	})
	workflow.eventsMutex.Unlock()

	// Notify listeners
	sm.notifyListeners(transition)

	return nil
}

// TransitionStep transitions a step to a new status
func (sm *StateManager) TransitionStep(step *StepInstance, newStatus StepStatus) error {
	return sm.TransitionStepWithReason(step, newStatus, "")
}

// TransitionStepWithReason transitions a step with a reason
func (sm *StateManager) TransitionStepWithReason(step *StepInstance, newStatus StepStatus, reason string) error {
	oldStatus := step.Status

	// Check if transition is valid
	if !sm.isValidStepTransition(oldStatus, newStatus) {
		return fmt.Errorf("invalid step state transition from %v to %v", oldStatus, newStatus)
	}

	// Update status
	step.Status = newStatus

	// Set timestamps
	if newStatus == StepStatusRunning && step.StartTime.IsZero() {
		step.StartTime = time.Now()
	}
	if sm.isTerminalStepStatus(newStatus) {
		step.EndTime = time.Now()
	}

	// Create transition event
	transition := StateTransition{
		EntityType: EntityTypeStep,
		EntityID:   step.ID,
		FromState:  oldStatus,
		ToState:    newStatus,
		Timestamp:  time.Now(),
		Reason:     reason,
		Metadata:   make(map[string]interface{}),
	}

	// Notify listeners
	sm.notifyListeners(transition)

	return nil
}

// CanTransitionWorkflow checks if a workflow can transition to a new state
func (sm *StateManager) CanTransitionWorkflow(currentState, newState WorkflowState) bool {
	return sm.isValidWorkflowTransition(currentState, newState)
}

// CanTransitionStep checks if a step can transition to a new status
func (sm *StateManager) CanTransitionStep(currentStatus, newStatus StepStatus) bool {
	return sm.isValidStepTransition(currentStatus, newStatus)
}

// AddStateListener adds a state change listener
func (sm *StateManager) AddStateListener(entityID string, listener StateListener) {
	sm.listenersMutex.Lock()
	defer sm.listenersMutex.Unlock()

	sm.listeners[entityID] = append(sm.listeners[entityID], listener)
}

// RemoveStateListener removes a state change listener
func (sm *StateManager) RemoveStateListener(entityID string, listener StateListener) {
	sm.listenersMutex.Lock()
	defer sm.listenersMutex.Unlock()

	listeners, exists := sm.listeners[entityID]
	if !exists {
		return
	}

	// Remove listener from slice
	for i, l := range listeners {
		if l == listener {
			sm.listeners[entityID] = append(listeners[:i], listeners[i+1:]...)
			break
		}
	}

	// Clean up empty slice
	if len(sm.listeners[entityID]) == 0 {
		delete(sm.listeners, entityID)
	}
}

// GetWorkflowStateHistory returns state change history for a workflow
func (sm *StateManager) GetWorkflowStateHistory(workflow *WorkflowInstance) []WorkflowEvent {
	workflow.eventsMutex.RLock()
	defer workflow.eventsMutex.RUnlock()

	// Filter for state change events
	var stateEvents []WorkflowEvent
	for _, event := range workflow.Events {
		if event.Type == EventTypeStateChanged {
			stateEvents = append(stateEvents, event)
		}
	}

	return stateEvents
}

// IsTerminalState checks if a workflow state is terminal
func (sm *StateManager) IsTerminalState(state WorkflowState) bool {
	return sm.isTerminalWorkflowState(state)
}

// IsTerminalStepStatus checks if a step status is terminal
func (sm *StateManager) IsTerminalStepStatus(status StepStatus) bool {
	return sm.isTerminalStepStatus(status)
}

// Helper methods

func (sm *StateManager) isValidWorkflowTransition(from, to WorkflowState) bool {
	validTransitions, exists := sm.transitions[from]
	if !exists {
		return false
	}

	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}

	return false
}

func (sm *StateManager) isValidStepTransition(from, to StepStatus) bool {
	validTransitions, exists := sm.stepTransitions[from]
	if !exists {
		return false
	}

	for _, validTo := range validTransitions {
		if validTo == to {
			return true
		}
	}

	return false
}

func (sm *StateManager) isTerminalWorkflowState(state WorkflowState) bool {
	switch state {
	case WorkflowStateCompleted, WorkflowStateFailed, WorkflowStateCancelled, WorkflowStateAborted:
		return true
	default:
		return false
	}
}

func (sm *StateManager) isTerminalStepStatus(status StepStatus) bool {
	switch status {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusCancelled:
		return true
	default:
		return false
	}
}

func (sm *StateManager) notifyListeners(transition StateTransition) {
	sm.listenersMutex.RLock()
	defer sm.listenersMutex.RUnlock()

	// Notify specific entity listeners
	if listeners, exists := sm.listeners[transition.EntityID]; exists {
		for _, listener := range listeners {
			go listener.OnStateChange(transition)
		}
	}

	// Notify global listeners (empty entity ID)
	if listeners, exists := sm.listeners[""]; exists {
		for _, listener := range listeners {
			go listener.OnStateChange(transition)
		}
	}
}

// StateValidator provides state validation utilities
type StateValidator struct {
	stateManager *StateManager
}

// NewStateValidator creates a new state validator
func NewStateValidator(stateManager *StateManager) *StateValidator {
	return &StateValidator{
		stateManager: stateManager,
	}
}

// ValidateWorkflowState validates a workflow's current state
func (sv *StateValidator) ValidateWorkflowState(workflow *WorkflowInstance) error {
	workflow.stateMutex.RLock()
	defer workflow.stateMutex.RUnlock()

	state := workflow.State

	// Check for invalid states based on context
	switch state {
	case WorkflowStateRunning:
		// Should have at least one active step
		hasActiveStep := false
		for _, step := range workflow.Steps {
			if step.Status == StepStatusRunning {
				hasActiveStep = true
				break
			}
		}
		if !hasActiveStep {
			return fmt.Errorf("workflow %s is in running state but has no active steps", workflow.ID)
		}

	case WorkflowStateCompleted:
		// All steps should be completed or skipped
		for _, step := range workflow.Steps {
			if step.Status != StepStatusCompleted && step.Status != StepStatusSkipped {
				return fmt.Errorf("workflow %s is marked complete but step %s is not finished", workflow.ID, step.ID)
			}
		}

	case WorkflowStateFailed:
		// Should have at least one failed step
		hasFailedStep := false
		for _, step := range workflow.Steps {
			if step.Status == StepStatusFailed {
				hasFailedStep = true
				break
			}
		}
		if !hasFailedStep {
			return fmt.Errorf("workflow %s is marked failed but has no failed steps", workflow.ID)
		}
	}

	return nil
}

// ValidateStepStatus validates a step's current status
func (sv *StateValidator) ValidateStepStatus(step *StepInstance) error {
	status := step.Status

	// Check for invalid statuses based on context
	switch status {
	case StepStatusRunning:
		if step.StartTime.IsZero() {
			return fmt.Errorf("step %s is running but has no start time", step.ID)
		}

	case StepStatusCompleted:
		if step.StartTime.IsZero() || step.EndTime.IsZero() {
			return fmt.Errorf("step %s is completed but missing start/end time", step.ID)
		}

	case StepStatusFailed:
		if step.Error == nil {
			return fmt.Errorf("step %s is marked failed but has no error", step.ID)
		}

	case StepStatusWaitingForDependencies:
		// Check if dependencies are actually incomplete
		hasIncompleteDeps := false
		for _, dep := range step.Dependencies {
			if dep.Status != StepStatusCompleted && dep.Status != StepStatusSkipped {
				hasIncompleteDeps = true
				break
			}
		}
		if !hasIncompleteDeps {
			return fmt.Errorf("step %s is waiting for dependencies but all dependencies are complete", step.ID)
		}
	}

	return nil
}

// GetNextValidStates returns valid next states for a workflow
func (sv *StateValidator) GetNextValidStates(currentState WorkflowState) []WorkflowState {
	return sv.stateManager.transitions[currentState]
}

// GetNextValidStatuses returns valid next statuses for a step
func (sv *StateValidator) GetNextValidStatuses(currentStatus StepStatus) []StepStatus {
	return sv.stateManager.stepTransitions[currentStatus]
}

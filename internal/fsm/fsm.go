// Package fsm defines the deterministic lifecycle state machines for
// orchestrator runs, deployments, and orders, plus the provider-status maps
// that normalize external engine states into internal ones.
//
// Terminal states are absorbing: the only accepted transition out of a
// terminal state is to itself.
package fsm

import (
	"fmt"

	"github.com/lonalabs/lona/internal/model"
)

// TransitionError is raised when a transition is not allowed by a machine.
type TransitionError struct {
	Machine string
	From    string
	To      string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("fsm: %s: transition %s -> %s not allowed", e.Machine, e.From, e.To)
}

// machine is a generic transition table over string-typed states.
type machine[S ~string] struct {
	name        string
	transitions map[S][]S
	terminal    map[S]bool
}

func (m *machine[S]) isTerminal(s S) bool { return m.terminal[s] }

func (m *machine[S]) canTransition(from, to S) bool {
	if from == to {
		return true
	}
	if m.terminal[from] {
		return false
	}
	for _, t := range m.transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (m *machine[S]) transition(from, to S) (S, error) {
	if !m.canTransition(from, to) {
		return from, &TransitionError{Machine: m.name, From: string(from), To: string(to)}
	}
	return to, nil
}

var orchestratorMachine = &machine[model.RunState]{
	name: "orchestrator",
	transitions: map[model.RunState][]model.RunState{
		model.RunReceived: {model.RunQueued, model.RunCancelled, model.RunFailed},
		model.RunQueued:   {model.RunExecuting, model.RunCancelled, model.RunFailed},
		model.RunExecuting: {
			model.RunAwaitingTool, model.RunAwaitingConfirm,
			model.RunQueued, // retry re-enqueue
			model.RunCompleted, model.RunFailed, model.RunCancelled,
		},
		model.RunAwaitingTool:    {model.RunExecuting, model.RunCancelled, model.RunFailed},
		model.RunAwaitingConfirm: {model.RunExecuting, model.RunCancelled, model.RunFailed},
	},
	terminal: map[model.RunState]bool{
		model.RunCompleted: true,
		model.RunFailed:    true,
		model.RunCancelled: true,
	},
}

// OrchestratorTransition validates a run state change.
func OrchestratorTransition(from, to model.RunState) (model.RunState, error) {
	return orchestratorMachine.transition(from, to)
}

// OrchestratorTerminal reports whether a run state is terminal.
func OrchestratorTerminal(s model.RunState) bool { return orchestratorMachine.isTerminal(s) }

var deploymentMachine = &machine[model.DeploymentStatus]{
	name: "deployment",
	transitions: map[model.DeploymentStatus][]model.DeploymentStatus{
		model.DeploymentQueued: {
			model.DeploymentRunning, model.DeploymentStopping,
			model.DeploymentStopped, model.DeploymentFailed,
		},
		model.DeploymentRunning: {
			model.DeploymentPaused, model.DeploymentStopping,
			model.DeploymentStopped, model.DeploymentFailed,
		},
		model.DeploymentPaused: {
			model.DeploymentRunning, model.DeploymentStopping,
			model.DeploymentStopped, model.DeploymentFailed,
		},
		model.DeploymentStopping: {model.DeploymentStopped, model.DeploymentFailed},
	},
	terminal: map[model.DeploymentStatus]bool{
		model.DeploymentStopped: true,
		model.DeploymentFailed:  true,
	},
}

// DeploymentTransition validates a deployment state change.
func DeploymentTransition(from, to model.DeploymentStatus) (model.DeploymentStatus, error) {
	return deploymentMachine.transition(from, to)
}

// DeploymentTerminal reports whether a deployment status is terminal.
func DeploymentTerminal(s model.DeploymentStatus) bool { return deploymentMachine.isTerminal(s) }

// MapDeploymentProviderStatus normalizes a provider-reported deployment
// status. Unknown strings map to failed.
func MapDeploymentProviderStatus(provider string) model.DeploymentStatus {
	switch provider {
	case "active", "running":
		return model.DeploymentRunning
	case "halting", "stopping":
		return model.DeploymentStopping
	case "terminated", "stopped":
		return model.DeploymentStopped
	case "error", "failed":
		return model.DeploymentFailed
	default:
		return model.DeploymentFailed
	}
}

// ApplyDeploymentProviderStatus folds a provider-reported status into the
// current state. If the mapped target is not reachable from the current
// state, the current state is preserved. The exception is failed, which
// always wins from a non-terminal state.
func ApplyDeploymentProviderStatus(current model.DeploymentStatus, provider string) (model.DeploymentStatus, bool) {
	target := MapDeploymentProviderStatus(provider)
	if target == current {
		return current, false
	}
	if deploymentMachine.isTerminal(current) {
		return current, false
	}
	if deploymentMachine.canTransition(current, target) {
		return target, true
	}
	if target == model.DeploymentFailed {
		return model.DeploymentFailed, true
	}
	return current, false
}

var orderMachine = &machine[model.OrderStatus]{
	name: "order",
	transitions: map[model.OrderStatus][]model.OrderStatus{
		model.OrderPending: {model.OrderFilled, model.OrderCancelled, model.OrderFailed},
	},
	terminal: map[model.OrderStatus]bool{
		model.OrderFilled:    true,
		model.OrderCancelled: true,
		model.OrderFailed:    true,
	},
}

// OrderTransition validates an order state change.
func OrderTransition(from, to model.OrderStatus) (model.OrderStatus, error) {
	return orderMachine.transition(from, to)
}

// OrderTerminal reports whether an order status is terminal.
func OrderTerminal(s model.OrderStatus) bool { return orderMachine.isTerminal(s) }

// MapOrderProviderStatus normalizes a provider-reported order status.
// Anything unrecognized maps to failed as the safe default.
func MapOrderProviderStatus(provider string) model.OrderStatus {
	switch provider {
	case "open", "new", "pending", "partially_filled":
		return model.OrderPending
	case "filled", "closed":
		return model.OrderFilled
	case "cancelled", "canceled":
		return model.OrderCancelled
	case "rejected", "error", "failed":
		return model.OrderFailed
	default:
		return model.OrderFailed
	}
}

// ApplyOrderProviderStatus folds a provider-reported status into the current
// order state using the same reachability rule as deployments.
func ApplyOrderProviderStatus(current model.OrderStatus, provider string) (model.OrderStatus, bool) {
	target := MapOrderProviderStatus(provider)
	if target == current {
		return current, false
	}
	if orderMachine.isTerminal(current) {
		return current, false
	}
	if orderMachine.canTransition(current, target) {
		return target, true
	}
	if target == model.OrderFailed {
		return model.OrderFailed, true
	}
	return current, false
}

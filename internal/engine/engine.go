// Package engine implements the sequential business-flow executor.
//
// A flow is a named, ordered list of steps. Steps run strictly in order, each
// awaited to completion before the next begins. If a step fails, every
// previously completed step is rolled back in reverse order before the failure
// is returned. The engine also carries a small synchronous publish/subscribe
// mechanism for cross-cutting side effects keyed by event name.
package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// ActionFunc is a step's effect. It receives a copy of the current flow
// context and returns the context for the next step. It may perform I/O.
type ActionFunc func(ctx context.Context, fc models.FlowContext) (models.FlowContext, error)

// ValidateFunc is a step's precondition over the incoming context. It must be
// side-effect-free. A non-nil error aborts the flow before the step's action
// runs; the error is surfaced wrapped in a StepValidationError.
type ValidateFunc func(fc models.FlowContext) error

// RollbackFunc compensates a completed step after a later step failed. It must
// be safe to call even if the forward action only partially applied. Errors
// are logged by the engine and never propagated.
type RollbackFunc func(ctx context.Context, fc models.FlowContext) error

// Step is a named unit of work within a flow.
type Step struct {
	Name     string
	Validate ValidateFunc // optional precondition
	Action   ActionFunc
	Rollback RollbackFunc // optional compensating action
}

// Flow is a named, ordered sequence of steps. Identity is the name.
type Flow struct {
	Name  string
	Steps []Step
}

// Listener observes an emitted event. A returned error (or a panic) is logged
// and never affects other listeners or the emitter.
type Listener func(event models.EventName, fc models.FlowContext) error

// Engine holds the registries of named flows and event listeners. Both are
// expected to be populated once at startup, before ExecuteFlow is first
// called; the mutex keeps late registration safe regardless.
type Engine struct {
	mu        sync.RWMutex
	flows     map[string]*Flow
	listeners map[models.EventName][]Listener
}

// New creates an empty engine. Flow modules register into it from a single
// bootstrap point; there is no package-level instance.
func New() *Engine {
	return &Engine{
		flows:     make(map[string]*Flow),
		listeners: make(map[models.EventName][]Listener),
	}
}

// RegisterFlow stores the flow under its name. Registering a duplicate name
// silently overwrites the earlier registration; last registration wins.
func (e *Engine) RegisterFlow(flow *Flow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.flows[flow.Name]; exists {
		slog.Warn("Engine.RegisterFlow: overwriting existing flow registration", "flow", flow.Name)
	}
	e.flows[flow.Name] = flow
	slog.Debug("Engine.RegisterFlow: flow registered", "flow", flow.Name, "steps", len(flow.Steps))
}

// On subscribes a listener to an event. Listeners are invoked synchronously
// in registration order.
func (e *Engine) On(event models.EventName, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], l)
}

// Emit delivers the event to every subscribed listener. A listener error or
// panic is logged and does not prevent later listeners from running, nor does
// it propagate to the emitter.
func (e *Engine) Emit(event models.EventName, fc models.FlowContext) {
	e.mu.RLock()
	ls := e.listeners[event]
	e.mu.RUnlock()
	for i, l := range ls {
		e.emitOne(event, fc, i, l)
	}
}

func (e *Engine) emitOne(event models.EventName, fc models.FlowContext, idx int, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.Emit: listener panicked", "event", event, "listener", idx, "panic", r)
		}
	}()
	if err := l(event, fc.Clone()); err != nil {
		slog.Error("Engine.Emit: listener failed", "event", event, "listener", idx, "error", err)
	}
}

// ExecuteFlow runs the named flow against the initial context and returns the
// context produced by the final step.
//
// If a step's precondition fails, the flow aborts with a StepValidationError
// and only the steps that already completed are rolled back. If a step's
// action fails, completed steps are rolled back in strict reverse order —
// rollback errors are logged, never escalated, so every rollback gets a
// chance to run — and the original failure is returned wrapped in a
// StepExecutionError. There is no retry; retries belong inside a step's
// action.
func (e *Engine) ExecuteFlow(ctx context.Context, name string, initial models.FlowContext) (models.FlowContext, error) {
	e.mu.RLock()
	flow, ok := e.flows[name]
	e.mu.RUnlock()
	if !ok {
		slog.Error("Engine.ExecuteFlow: flow not found", "flow", name)
		return initial, &models.FlowNotFoundError{Name: name}
	}

	slog.Debug("Engine.ExecuteFlow: starting flow", "flow", name, "steps", len(flow.Steps))
	fc := initial.Clone()
	var completed []Step

	for _, step := range flow.Steps {
		if step.Validate != nil {
			if err := step.Validate(fc); err != nil {
				slog.Warn("Engine.ExecuteFlow: step precondition failed", "flow", name, "step", step.Name, "error", err)
				e.rollbackCompleted(ctx, name, completed, fc)
				return fc, &models.StepValidationError{Flow: name, Step: step.Name, Err: err}
			}
		}
		next, err := step.Action(ctx, fc.Clone())
		if err != nil {
			slog.Error("Engine.ExecuteFlow: step failed", "flow", name, "step", step.Name, "error", err)
			e.rollbackCompleted(ctx, name, completed, fc)
			return fc, &models.StepExecutionError{Flow: name, Step: step.Name, Err: err}
		}
		fc = next
		completed = append(completed, step)
		slog.Debug("Engine.ExecuteFlow: step completed", "flow", name, "step", step.Name)
	}

	slog.Info("Engine.ExecuteFlow: flow completed", "flow", name)
	return fc, nil
}

// rollbackCompleted compensates the already-completed steps in reverse order.
// Best effort: a failing or panicking rollback is logged and the remaining
// rollbacks still run.
func (e *Engine) rollbackCompleted(ctx context.Context, flowName string, completed []Step, fc models.FlowContext) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Rollback == nil {
			continue
		}
		slog.Debug("Engine.rollbackCompleted: rolling back step", "flow", flowName, "step", step.Name)
		e.rollbackOne(ctx, flowName, step, fc)
	}
}

func (e *Engine) rollbackOne(ctx context.Context, flowName string, step Step, fc models.FlowContext) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Engine.rollbackCompleted: rollback panicked", "flow", flowName, "step", step.Name, "panic", r)
		}
	}()
	if err := step.Rollback(ctx, fc.Clone()); err != nil {
		slog.Error("Engine.rollbackCompleted: rollback failed", "flow", flowName, "step", step.Name, "error", err)
	}
}

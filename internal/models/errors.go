// This file defines the error taxonomy shared by the flow engine, the flow
// definitions, and the API layer. Callers match these with errors.As and
// translate them into user-facing messages; the core never formats for
// presentation.

package models

import "fmt"

// FlowNotFoundError indicates executeFlow was called with an unregistered
// flow name. This is a caller bug, not a recoverable condition.
type FlowNotFoundError struct {
	Name string
}

func (e *FlowNotFoundError) Error() string {
	return fmt.Sprintf("flow %q is not registered", e.Name)
}

// StepValidationError indicates a step's precondition failed before its
// action ran. The caller can recover by correcting the input.
type StepValidationError struct {
	Flow string
	Step string
	Err  error // the precondition failure, when the predicate reported one
}

func (e *StepValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flow %q step %q precondition failed: %v", e.Flow, e.Step, e.Err)
	}
	return fmt.Sprintf("flow %q step %q precondition failed", e.Flow, e.Step)
}

func (e *StepValidationError) Unwrap() error { return e.Err }

// StepExecutionError wraps a step action failure with the flow and step that
// produced it. Rollback has already run by the time this is returned.
type StepExecutionError struct {
	Flow string
	Step string
	Err  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("flow %q step %q failed: %v", e.Flow, e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// SlotUnavailableError indicates the requested appointment time is no longer
// among the provider's free slots. Callers should re-query availability.
type SlotUnavailableError struct {
	ProviderID string
	Date       string
	Time       string
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("slot %s %s is not available for provider %s", e.Date, e.Time, e.ProviderID)
}

// DependencyExistsError indicates a deletion was blocked because active
// records still reference the target. Deletion is blocked, never cascaded.
type DependencyExistsError struct {
	CategoryID string
	Count      int
}

func (e *DependencyExistsError) Error() string {
	return fmt.Sprintf("category %s still has %d active dependent service(s)", e.CategoryID, e.Count)
}

// DuplicateNameError indicates a case-insensitive name collision within the
// same tenant.
type DuplicateNameError struct {
	Name     string
	TenantID string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q already exists in tenant %s", e.Name, e.TenantID)
}

// PersistenceError indicates an HTTP call to the persistence collaborator
// failed or returned non-success. Message carries the collaborator's error
// text when it provided one.
type PersistenceError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *PersistenceError) Error() string {
	msg := e.Message
	if msg == "" {
		if e.Err != nil {
			msg = e.Err.Error()
		} else {
			msg = "persistence request failed"
		}
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Operation, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Operation, msg)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

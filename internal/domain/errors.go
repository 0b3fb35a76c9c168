package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrDefinitionNotFound = errors.New("workflow definition not found")
	ErrTemplateNotFound   = errors.New("workflow template not found")
)

// InvalidDefinitionError rejects a malformed workflow definition before any
// instance is created from it.
type InvalidDefinitionError struct {
	Reason string
}

func (e *InvalidDefinitionError) Error() string {
	return "invalid workflow definition: " + e.Reason
}

// InvalidTransitionError names the event and state so callers can tell
// exactly which handler was missing.
type InvalidTransitionError struct {
	EventType string
	State     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("no transition defined for event %s in state %s", e.EventType, e.State)
}

type MissingParameterError struct {
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return "missing required template parameter: " + e.Parameter
}

// ConcurrencyConflictError means another writer mutated the instance after
// this operation read it. No side effect occurred; the caller may reload and
// retry.
type ConcurrencyConflictError struct {
	WorkflowID      uuid.UUID
	ExpectedVersion int
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("workflow %s was modified concurrently (expected version %d)", e.WorkflowID, e.ExpectedVersion)
}

type InvalidCancellationError struct {
	WorkflowID uuid.UUID
	Status     WorkflowStatus
}

func (e *InvalidCancellationError) Error() string {
	return fmt.Sprintf("workflow %s cannot be cancelled from status %s", e.WorkflowID, e.Status)
}

type InvalidRetryError struct {
	WorkflowID uuid.UUID
	Status     WorkflowStatus
}

func (e *InvalidRetryError) Error() string {
	return fmt.Sprintf("workflow %s cannot be retried from status %s", e.WorkflowID, e.Status)
}

// StepFailedError wraps the original error from a failed saga step. The
// cause is what the caller's errors.Is/As sees through Unwrap.
type StepFailedError struct {
	Step  string
	Cause error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("saga step %s failed: %v", e.Step, e.Cause)
}

func (e *StepFailedError) Unwrap() error { return e.Cause }

// CompensationError records a failed compensation attempt. It never aborts
// the rollback loop; it is collected for diagnostics.
type CompensationError struct {
	Step  string
	Cause error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation for step %s failed: %v", e.Step, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }

package plugin

import (
	"errors"
)

// StepError is the base interface for typed plugin errors. It lets the
// executor categorize failures without string matching.
type StepError interface {
	error
	StepID() string
	Unwrap() error
}

// ValidationError represents configuration or input validation failures,
// such as a step missing its type-specific configuration block.
type ValidationError struct {
	ID  string
	Err error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(stepID string, err error) *ValidationError {
	return &ValidationError{ID: stepID, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return "validation error in step " + e.ID
	}
	return "validation error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identifier of the step where the error occurred.
func (e *ValidationError) StepID() string { return e.ID }

// Unwrap returns the underlying validation error.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is checks if this error matches another ValidationError.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// ExecutionError represents external operation failures during state
// assessment or application: process exits, network failures, I/O errors.
type ExecutionError struct {
	ID  string
	Err error
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(stepID string, err error) *ExecutionError {
	return &ExecutionError{ID: stepID, Err: err}
}

func (e *ExecutionError) Error() string {
	if e.Err == nil {
		return "execution error in step " + e.ID
	}
	return "execution error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identifier of the step where the error occurred.
func (e *ExecutionError) StepID() string { return e.ID }

// Unwrap returns the underlying execution error.
func (e *ExecutionError) Unwrap() error { return e.Err }

// Is checks if this error matches another ExecutionError.
func (e *ExecutionError) Is(target error) bool {
	_, ok := target.(*ExecutionError)
	return ok
}

// StateError represents inability to determine current system state, such
// as an unreadable destination directory or an unavailable package manager.
type StateError struct {
	ID  string
	Err error
}

// NewStateError creates a new StateError.
func NewStateError(stepID string, err error) *StateError {
	return &StateError{ID: stepID, Err: err}
}

func (e *StateError) Error() string {
	if e.Err == nil {
		return "state error in step " + e.ID
	}
	return "state error in step " + e.ID + ": " + e.Err.Error()
}

// StepID returns the identifier of the step where the error occurred.
func (e *StateError) StepID() string { return e.ID }

// Unwrap returns the underlying state detection error.
func (e *StateError) Unwrap() error { return e.Err }

// Is checks if this error matches another StateError.
func (e *StateError) Is(target error) bool {
	_, ok := target.(*StateError)
	return ok
}

// AsStepError attempts to convert any error to a StepError.
func AsStepError(err error) (StepError, bool) {
	var stepErr StepError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}

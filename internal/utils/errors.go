package utils

import (
	"errors"
	"fmt"
)

// Sentinel errors for validation and capacity failures. These are returned
// synchronously to callers and never retried automatically.
var (
	ErrMaxConcurrentFaults      = errors.New("max concurrent faults reached")
	ErrInjectionDisabled        = errors.New("fault injection disabled")
	ErrUnknownFaultType         = errors.New("unknown fault type")
	ErrInvalidTarget            = errors.New("invalid fault target")
	ErrFaultNotFound            = errors.New("fault not found")
	ErrCascadeNotFound          = errors.New("cascade not found")
	ErrExperimentNotFound       = errors.New("experiment not found")
	ErrMaxConcurrentExperiments = errors.New("max concurrent experiments reached")
	ErrExecutorContract         = errors.New("executor contract violation")
)

// SafetyCheckError aborts an experiment before any side effect occurs.
type SafetyCheckError struct {
	Check  string
	Reason string
}

func (e *SafetyCheckError) Error() string {
	return fmt.Sprintf("safety check %s failed: %s", e.Check, e.Reason)
}

// ValidationError reports a malformed experiment or campaign spec.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Op  string
	Msg string
	Err error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Op: op, Msg: msg, Err: err}
}

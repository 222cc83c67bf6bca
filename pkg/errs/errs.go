// Package errs defines the error taxonomy shared by the build pipeline.
// Every failure produced by the kernel, the model or the executor wraps one
// of the sentinel kinds below so callers can classify it with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction reports malformed input to a constructor: a wire that
	// does not close, a zero-length edge, a degenerate radius, an empty
	// operand set or a non-flat face where flatness is required.
	ErrConstruction = errors.New("construction error")

	// ErrKernelOperation reports a kernel operation (Boolean, transform,
	// healing) that failed to complete.
	ErrKernelOperation = errors.New("kernel operation error")

	// ErrSerialization reports a failed write or reload of a shape file.
	ErrSerialization = errors.New("serialization error")

	// ErrNumberingInconsistency reports an unmapped index after a
	// numbering reconcile. It is always fatal for the build in flight.
	ErrNumberingInconsistency = errors.New("numbering inconsistency")

	// ErrWorkerFailure reports a worker that died or was cancelled.
	ErrWorkerFailure = errors.New("worker failure")
)

// Construction returns an error wrapping ErrConstruction.
func Construction(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConstruction, fmt.Sprintf(format, args...))
}

// KernelOperation returns an error wrapping ErrKernelOperation.
func KernelOperation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrKernelOperation, fmt.Sprintf(format, args...))
}

// Serialization returns an error wrapping ErrSerialization and cause.
func Serialization(cause error, format string, args ...any) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %w", ErrSerialization, fmt.Sprintf(format, args...), cause)
}

// NumberingInconsistency returns an error wrapping ErrNumberingInconsistency.
func NumberingInconsistency(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNumberingInconsistency, fmt.Sprintf(format, args...))
}

// StepError carries the context of a failing script step.
type StepError struct {
	Index int
	Name  string
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %q): %v", e.Index, e.Op, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// WorkerError describes a worker that failed or was abandoned.
type WorkerError struct {
	TaskID    string
	Trace     string
	Cancelled bool
	Err       error
}

func (e *WorkerError) Error() string {
	switch {
	case e.Cancelled:
		return fmt.Sprintf("worker task %s cancelled", e.TaskID)
	case e.Err != nil:
		return fmt.Sprintf("worker task %s failed: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("worker task %s failed", e.TaskID)
}

// Unwrap exposes both the worker sentinel and the underlying cause.
func (e *WorkerError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrWorkerFailure, e.Err}
	}
	return []error{ErrWorkerFailure}
}

// IsFatal reports whether err must discard the in-flight build instead of
// allowing a resume from the failing step.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNumberingInconsistency) || errors.Is(err, ErrWorkerFailure)
}

package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound indicates no launch record exists for the given id.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID indicates an id that cannot be used as a storage key.
	ErrInvalidRunID = errors.New("invalid run id")
)

// RunError wraps run store errors with the operation and run id.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

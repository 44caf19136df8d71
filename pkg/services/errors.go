// Package services implements the workflow launch pipeline: connection
// validation, workflow introspection, input materialization, invocation and
// artifact harvest.
package services

import (
	"errors"
	"fmt"

	"github.com/mcfe/galaxyflow/pkg/config"
)

// Error kinds. Every failure returned by this package matches exactly one of
// them with errors.Is.
var (
	// ErrConfig is a missing or misnamed key in a caller-supplied configuration.
	ErrConfig = config.ErrInvalid
	// ErrConnectivity is a server address that cannot be used as an endpoint.
	ErrConnectivity = errors.New("server address is not valid")
	// ErrAuth is a credential rejected by the server.
	ErrAuth = errors.New("API key is not valid")
	// ErrResolution is a workflow name not visible to the credential.
	ErrResolution = errors.New("workflow not found")
	// ErrContractMismatch is a resolved binding count that differs from the expected inputs.
	ErrContractMismatch = errors.New("not all inputs were provided or were not named correctly")
	// ErrRemote is a server or transport failure after validation succeeded.
	ErrRemote = errors.New("galaxy request failed")
	// ErrExecution is an invocation or job that finished in a failure state.
	ErrExecution = errors.New("workflow execution failed")
	// ErrPollTimeout is a polling stage that exceeded its configured limit.
	ErrPollTimeout = errors.New("timed out waiting for workflow")
	// ErrCancelled is a launch stopped by its caller.
	ErrCancelled = errors.New("launch cancelled")
)

var kinds = []error{
	ErrConfig,
	ErrConnectivity,
	ErrAuth,
	ErrResolution,
	ErrContractMismatch,
	ErrRemote,
	ErrExecution,
	ErrPollTimeout,
	ErrCancelled,
}

// Error wraps a failure with its kind and the operation that produced it.
type Error struct {
	Kind    error
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind || errors.Is(e.Err, target)
}

func newError(kind error, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the kind of err, or nil when err did not come from this package.
func KindOf(err error) error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Kind
	}

	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}

	return nil
}

// IsClientError reports whether the caller can fix err by changing its request.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrConnectivity) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrResolution) ||
		errors.Is(err, ErrContractMismatch)
}

package command

import (
	"errors"
	"fmt"
)

// Domain errors for the command package.
var (
	// ErrDependencyFailure is matched by every failure of an external
	// collaborator: the cloud CLI or SDK, the build server, or git.
	ErrDependencyFailure = errors.New("dependency failure")

	// ErrParseFailure is matched when a response lacks an expected key.
	ErrParseFailure = errors.New("parse failure")

	// ErrDryRunNotSupported is matched when a mutating operation was asked
	// to dry-run but its service has no native dry-run support.
	ErrDryRunNotSupported = errors.New("dry run not supported")

	// ErrUnknownOperation is returned for operations outside the allow-list.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnknownOption is returned for option names outside the allow-list.
	ErrUnknownOption = errors.New("unknown option")
)

// DependencyError describes a failed call to an external collaborator.
type DependencyError struct {
	// Command is the command line or request line that was attempted.
	Command string
	// Status is the process exit code or HTTP status; zero when the call
	// never completed.
	Status  int
	Stderr  string
	Timeout bool
	Err     error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Command)
	switch {
	case e.Timeout:
		msg += ": timed out"
	case e.Status != 0:
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil && !e.Timeout {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDependencyFailure.
func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyFailure
}

// ParseError reports a response that was missing an expected key.
type ParseError struct {
	Call string
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s: missing or invalid %q", e.Call, e.Key)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrParseFailure.
func (e *ParseError) Is(target error) bool {
	return target == ErrParseFailure
}

// DryRunError is returned instead of executing a mutating operation that
// cannot be dry-run natively.
type DryRunError struct {
	Command string
}

// Error implements the error interface.
func (e *DryRunError) Error() string {
	return "dry run not supported, would execute: " + e.Command
}

// Is reports whether target is ErrDryRunNotSupported.
func (e *DryRunError) Is(target error) bool {
	return target == ErrDryRunNotSupported
}

// WouldExecute returns the command line carried by a DryRunError in err's
// chain.
func WouldExecute(err error) (string, bool) {
	var dr *DryRunError
	if errors.As(err, &dr) {
		return dr.Command, true
	}
	return "", false
}

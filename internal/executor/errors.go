package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the outcome of a step or of a whole build.
type Status int

const (
	StatusOK Status = iota
	StatusBuildError
	StatusLaunchError
	StatusCancelled
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBuildError:
		return "build-error"
	case StatusLaunchError:
		return "launch-error"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Worst returns the status that wins when aggregating two outcomes:
// cancelled, then launch error, then build error, then ok.
func Worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// ErrCancelled reports a build stopped on request.
var ErrCancelled = errors.New("build cancelled")

// LaunchError reports a process that could not be started. It is always
// fatal to the build.
type LaunchError struct {
	Step    string
	Command string
	Err     error
}

// Error implements the error interface for LaunchError.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("step %s: cannot launch %q: %v", e.Step, e.Command, e.Err)
}

// Unwrap returns the underlying start error.
func (e *LaunchError) Unwrap() error { return e.Err }

// BuildError reports a command that ran and failed.
type BuildError struct {
	Step     string
	Command  string
	ExitCode int
	Output   string
	Err      error
}

// Error implements the error interface for BuildError.
func (e *BuildError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %s: command %q failed", e.Step, e.Command)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	} else {
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	}
	return b.String()
}

// Unwrap returns the wait error, if the process did not exit normally.
func (e *BuildError) Unwrap() error { return e.Err }

// StatusOf classifies an error returned by a build.
func StatusOf(err error) Status {
	var le *LaunchError
	var be *BuildError
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrCancelled):
		return StatusCancelled
	case errors.As(err, &le):
		return StatusLaunchError
	case errors.As(err, &be):
		return StatusBuildError
	default:
		return StatusBuildError
	}
}

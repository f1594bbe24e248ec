package worker

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrMalformedOutput   = errors.New("malformed worker output")
	ErrMissingDependency = errors.New("worker dependency missing")
	ErrTimeout           = errors.New("worker timed out")
	ErrCanceled          = errors.New("worker canceled")
	ErrFailed            = errors.New("worker failed")
)

// MalformedOutputError keeps the complete captured text so it can be stored
// as the failure reason.
type MalformedOutputError struct {
	Output string
	Err    error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedOutput, e.Err)
}

func (e *MalformedOutputError) Unwrap() []error {
	return []error{ErrMalformedOutput, e.Err}
}

// ExitError is returned when the worker process exits with a non-zero code.
type ExitError struct {
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("worker exited with code %d", e.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return ErrFailed
}

// TimeoutError is returned after the worker was killed for exceeding its
// execution budget.
type TimeoutError struct {
	Timeout time.Duration
	Output  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("worker timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures.
type ErrorKind string

const (
	ResourceExhausted ErrorKind = "resource_exhausted"
	Crashed           ErrorKind = "crashed"
)

// Error is an engine-level failure. The pipeline treats it as fatal for the
// chunk being generated.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("engine %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("engine %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsEngineError reports whether err is an *Error.
func IsEngineError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsResourceExhausted reports whether the engine ran out of capacity.
func IsResourceExhausted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == ResourceExhausted
}

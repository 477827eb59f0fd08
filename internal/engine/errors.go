package engine

import (
	"errors"
	"fmt"
)

// SessionError reports that a worker could not build its oracle session.
// It is the only failure that stops a worker early.
type SessionError struct {
	Worker int
	Err    error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("worker %d: session: %v", e.Worker, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsSessionError returns true if the error is a SessionError.
// Uses errors.As to handle wrapped errors.
func IsSessionError(err error) bool {
	var se *SessionError
	return errors.As(err, &se)
}

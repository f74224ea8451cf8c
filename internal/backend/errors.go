// Package backend holds the process-wide networked backend connection, its
// error classification, and the start-up liveness probe.
package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable marks failures caused by a backend that cannot be reached:
	// refused connections, timeouts, closed pools, lost cluster leaders.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrKeyNotFound is returned by key-value clients when a key does not exist.
	ErrKeyNotFound = errors.New("key not found")
)

// Error describes a failed backend operation that was classified as unavailability.
type Error struct {
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap exposes both ErrUnavailable and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Unavailable wraps err as an unavailability failure of backend during op.
// A nil err yields nil.
func Unavailable(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Backend: backend, Op: op, Err: err}
}

// IsUnavailable reports whether err was classified as backend unavailability.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

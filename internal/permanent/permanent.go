// Package permanent tags failures that a retry cannot fix, such as stored
// documents that no longer decode.
package permanent

import (
	"errors"
	"fmt"
)

// Error carries a non-retryable cause.
type Error struct {
	Err error
}

func (e Error) Error() string {
	if e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e Error) Unwrap() error {
	return e.Err
}

// Permanent reports the marker.
func (Error) Permanent() bool {
	return true
}

// Mark wraps err with the marker; nil stays nil.
func Mark(err error) error {
	if err == nil || Is(err) {
		return err
	}
	return Error{Err: err}
}

// Errorf formats like fmt.Errorf and marks the result.
func Errorf(format string, args ...any) error {
	return Error{Err: fmt.Errorf(format, args...)}
}

// Is reports whether any error in the chain carries the marker.
func Is(err error) bool {
	if err == nil {
		return false
	}
	type marker interface {
		Permanent() bool
	}
	var tagged marker
	if !errors.As(err, &tagged) {
		return false
	}
	return tagged.Permanent()
}

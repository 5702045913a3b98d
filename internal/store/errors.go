// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition matches every *PreconditionError.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotTestDatabase guards destructive calls on databases not named test-*.
	ErrNotTestDatabase = errors.New("refusing to drop a database whose name does not start with test-")
)

// PreconditionError reports a cursor operation called in a state that does
// not allow it.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

func precondition(op, format string, args ...interface{}) error {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

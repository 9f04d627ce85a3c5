package store

import (
	"errors"
	"fmt"
)

// ErrNoIdentity is returned by Save when the insert did not yield an id.
var ErrNoIdentity = errors.New("insert returned no identity")

// Error wraps a connectivity or query failure of a store operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a missing organization, category or ticket.
	ErrNotFound = errors.New("queue: not found")
	// ErrEmpty is the normal outcome of CallNext on a queue with nobody waiting.
	ErrEmpty = errors.New("queue: no waiting tickets")
	// ErrInvalidName rejects a blank display name on issue.
	ErrInvalidName = errors.New("queue: display name is required")
)

// StorageError means the transaction did not commit; nothing was applied.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("queue: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr passes domain errors through and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrEmpty) || errors.Is(err, ErrInvalidName) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

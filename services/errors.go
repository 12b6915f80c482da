package services

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is returned when a login signature does not verify.
	ErrAuthFailure = errors.New("signature verification failed")
	// ErrLinkFailure is returned when a linking code is unknown, used or expired.
	ErrLinkFailure = errors.New("linking code is invalid or expired")
	// ErrUpstreamUnavailable is returned when the gateway link or persona service is down.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEmptyTask is returned when a task is appended with blank text.
	ErrEmptyTask = errors.New("task text is required")
)

// StorageError wraps any fault raised by the user store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrSyncInProgress    = errors.New("sync already in progress")
	ErrConstraint        = errors.New("constraint violation")
	ErrRemoteRejected    = errors.New("remote rejected the write")
	ErrRemoteUnavailable = errors.New("remote unreachable")
)

// StorageError is a local persistence failure. It is never retried and is
// returned to the caller of the store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SerializationError means an outbox payload could not be encoded or decoded.
type SerializationError struct {
	EntryID int64
	Err     error
}

func (e *SerializationError) Error() string {
	if e.EntryID != 0 {
		return fmt.Sprintf("serialization: entry %d: %v", e.EntryID, e.Err)
	}
	return fmt.Sprintf("serialization: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// RemoteError covers an unreachable remote, a rejected write and a timed out
// call alike.
type RemoteError struct {
	Op     string
	TaskID int64
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s task %d: %v", e.Op, e.TaskID, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func NewRemoteError(op string, taskID int64, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, TaskID: taskID, Err: err}
}

// IsConstraint reports whether err is a storage constraint violation.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

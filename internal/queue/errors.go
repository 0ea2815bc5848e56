package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreCorruption marks a queue file that is not a task list. The store
	// recovers by treating it as empty; the error only travels to observers.
	ErrStoreCorruption = errors.New("task store corrupted")
	// ErrDuplicateTaskID is returned when an enqueued task reuses an issued ID.
	ErrDuplicateTaskID = errors.New("duplicate task_id")
)

type CorruptionError struct {
	Path          string
	QuarantinedTo string
	Cause         error
}

func (e *CorruptionError) Error() string {
	if e.QuarantinedTo != "" {
		return fmt.Sprintf("task store %s corrupted (quarantined to %s): %v", e.Path, e.QuarantinedTo, e.Cause)
	}
	return fmt.Sprintf("task store %s corrupted: %v", e.Path, e.Cause)
}

func (e *CorruptionError) Unwrap() []error {
	return []error{ErrStoreCorruption, e.Cause}
}

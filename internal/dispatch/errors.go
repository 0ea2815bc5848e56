package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrUnregisteredDestination = errors.New("unregistered destination")
	ErrNoRunnableCapability    = errors.New("no runnable capability")
	ErrCapabilityExecution     = errors.New("capability execution failed")
)

// CapabilityExecutionError reports a capability that returned an error,
// panicked or ran past its deadline. It matches ErrCapabilityExecution and
// the original cause under errors.Is.
type CapabilityExecutionError struct {
	TaskID      string
	Destination string
	Cause       error
}

func (e *CapabilityExecutionError) Error() string {
	return fmt.Sprintf("capability %q failed on task %s: %v", e.Destination, e.TaskID, e.Cause)
}

func (e *CapabilityExecutionError) Unwrap() []error {
	return []error{ErrCapabilityExecution, e.Cause}
}

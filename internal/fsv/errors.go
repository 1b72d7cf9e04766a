package fsv

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotInitialized is returned by Reconcile when the store holds no root folder.
var ErrNotInitialized = errors.New("store has not been initialized")

// ErrAlreadyInitialized is returned by Initialize when the store already holds entities.
var ErrAlreadyInitialized = errors.New("store is already initialized")

// StructuralError reports a snapshot or store whose shape cannot be turned
// into a single rooted hierarchy. It is fatal to the run.
type StructuralError struct {
	Reason string
	Paths  []string
}

func (e *StructuralError) Error() string {
	if len(e.Paths) == 0 {
		return "structural error: " + e.Reason
	}
	paths := e.Paths
	suffix := ""
	if len(paths) > 5 {
		suffix = fmt.Sprintf(" (+%d more)", len(paths)-5)
		paths = paths[:5]
	}
	return fmt.Sprintf("structural error: %s: %s%s", e.Reason, strings.Join(paths, ", "), suffix)
}

// InvariantViolationError reports more than one active version for a path.
// It means the store was already corrupt and is never retried.
type InvariantViolationError struct {
	Path   string
	Active int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %d active versions for %s", e.Active, e.Path)
}

// PersistenceError wraps a failure that rolled back one partition.
type PersistenceError struct {
	Partition string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s partition rolled back: %v", e.Partition, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a run rather than fail one partition.
func IsFatal(err error) bool {
	var se *StructuralError
	var ie *InvariantViolationError
	return errors.As(err, &se) || errors.As(err, &ie)
}

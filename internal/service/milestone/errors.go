package milestone

import "fmt"

// NotFoundError means the milestone (or its timeline) does not exist
type NotFoundError struct {
	Entity string
	ID     int
	Scope  int
}

func (e *NotFoundError) Error() string {
	if e.Scope != 0 {
		return fmt.Sprintf("%s %d not found in timeline %d", e.Entity, e.ID, e.Scope)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ValidationError is a client-side violation; nothing has been written
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports an occupied order slot. The reindexer resolves it by
// shifting neighbours; a store may also return it when uniqueness is violated
// at commit, in which case it reaches the caller wrapped in PersistenceError.
type ConflictError struct {
	TimelineID int
	Order      int
	Occupants  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %d in timeline %d is taken by %d milestone(s)", e.Order, e.TimelineID, e.Occupants)
}

// PersistenceError wraps any storage failure inside the unit of work
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError is a publish failure after commit. It is logged, never returned.
type NotificationError struct {
	Event string
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failed to publish %s: %v", e.Event, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

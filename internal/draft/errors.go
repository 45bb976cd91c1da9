package draft

import "fmt"

// AlreadyActiveError reports a StartEdit for an instance that already has a
// draft. At most one draft may be active per instance; this is a contract
// violation in the calling UI, not an end-user condition.
type AlreadyActiveError struct {
	EntityType string
	InstanceID string
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("draft already active for %s/%s", e.EntityType, e.InstanceID)
}

// NoDraftError reports an operation against an instance with no active draft.
type NoDraftError struct {
	EntityType string
	InstanceID string
}

func (e *NoDraftError) Error() string {
	return fmt.Sprintf("no active draft for %s/%s", e.EntityType, e.InstanceID)
}

// PersistenceError reports a failed durable write of a draft record. The
// in-memory edit is kept; the engine continues in degraded (memory-only)
// mode and the UI must warn that edits may not survive a restart.
type PersistenceError struct {
	EntityType string
	InstanceID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist draft for %s/%s: %v", e.EntityType, e.InstanceID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

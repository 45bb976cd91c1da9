package mutation

import "fmt"

// CommitInProgressError reports a second commit issued for an instance while
// one is still pending. Per-instance commits are serialized; the caller must
// wait for the pending commit to resolve. This is a contract violation in the
// surrounding UI, not an end-user condition.
type CommitInProgressError struct {
	EntityType string
	InstanceID string
}

func (e *CommitInProgressError) Error() string {
	return fmt.Sprintf("commit already in progress for %s/%s", e.EntityType, e.InstanceID)
}

// PersistenceError reports a failed remote persist. The optimistic state has
// been reverted and the draft is intact; the commit may be retried.
type PersistenceError struct {
	EntityType string
	InstanceID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %s/%s: %v", e.EntityType, e.InstanceID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Package mutation coordinates optimistic commits: draft changes are applied
// to the shared read cache immediately, persisted asynchronously, and
// reconciled on success or failure. User edits are never lost on a failed
// commit; only the optimistic visual state is undone.
package mutation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/draft"
	"github.com/formwork-ui/formwork/internal/readcache"
)

// Transport persists field changes to the remote source of truth. It returns
// the server-confirmed values for the changed fields. The coordinator never
// retries silently; a failure is surfaced to the caller as retryable.
type Transport interface {
	Persist(ctx context.Context, entityType, instanceID string, changes map[string]interface{}) (map[string]interface{}, error)
}

// Status is the lifecycle state of a pending mutation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// PendingMutation describes one in-flight persistence request.
type PendingMutation struct {
	EntityType   string
	InstanceID   string
	Changes      map[string]interface{}
	OptimisticID string
}

// Handle is returned by Commit immediately; the caller observes resolution
// through Done without ever blocking on network I/O at the call site.
type Handle struct {
	mutation PendingMutation
	done     chan struct{}

	mu     sync.Mutex
	status Status
	err    error
}

func newHandle(m PendingMutation) *Handle {
	return &Handle{
		mutation: m,
		done:     make(chan struct{}),
		status:   StatusPending,
	}
}

// Done is closed when the commit has resolved to success or failure.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err returns the resolution error, nil on success. Only meaningful after
// Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// OptimisticID identifies the optimistic update applied by this commit.
func (h *Handle) OptimisticID() string {
	return h.mutation.OptimisticID
}

// Wait blocks until the commit resolves or ctx is cancelled. Cancelling the
// wait does not cancel the commit: once issued it always runs to resolution.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

func (h *Handle) resolve(status Status, err error) {
	h.mu.Lock()
	h.status = status
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Coordinator applies drafts to the shared read cache optimistically and
// reconciles them with the remote source of truth.
type Coordinator struct {
	transport Transport
	cache     *readcache.Cache
	drafts    *draft.Engine
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[string]*Handle
}

// NewCoordinator creates a mutation coordinator.
func NewCoordinator(transport Transport, cache *readcache.Cache, drafts *draft.Engine, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		transport: transport,
		cache:     cache,
		drafts:    drafts,
		logger:    logger,
		inflight:  make(map[string]*Handle),
	}
}

// Commit applies a draft's changes optimistically and schedules the remote
// persist. It returns a pending handle immediately.
//
// A clean draft (no changed fields) resolves successfully without issuing a
// persistence request. A commit for an instance that already has one pending
// is rejected with CommitInProgressError.
func (c *Coordinator) Commit(ctx context.Context, d *draft.Draft) (*Handle, error) {
	changes := d.ChangedFields()

	if len(changes) == 0 {
		h := newHandle(PendingMutation{
			EntityType: d.EntityType,
			InstanceID: d.InstanceID,
			Changes:    changes,
		})
		h.resolve(StatusCommitted, nil)
		return h, nil
	}

	key := fmt.Sprintf("%s:%s", d.EntityType, d.InstanceID)

	c.mu.Lock()
	if _, pending := c.inflight[key]; pending {
		c.mu.Unlock()
		return nil, &CommitInProgressError{EntityType: d.EntityType, InstanceID: d.InstanceID}
	}

	h := newHandle(PendingMutation{
		EntityType:   d.EntityType,
		InstanceID:   d.InstanceID,
		Changes:      changes,
		OptimisticID: uuid.NewString(),
	})
	c.inflight[key] = h
	c.mu.Unlock()

	// Optimistic apply: every surface reading this instance sees the new
	// values before the network round trip completes.
	previous := c.cache.Apply(d.EntityType, d.InstanceID, changes)

	c.logger.Debug("optimistic update applied",
		zap.String("entity_type", d.EntityType),
		zap.String("instance_id", d.InstanceID),
		zap.String("optimistic_id", h.mutation.OptimisticID),
		zap.Int("changed_fields", len(changes)))

	// A commit is never cancelled once issued: it runs to success or failure
	// and reconciles state even if the caller's context ends.
	go c.run(context.WithoutCancel(ctx), key, h, previous)

	return h, nil
}

// InFlight reports whether a commit is pending for an instance.
func (c *Coordinator) InFlight(entityType, instanceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[fmt.Sprintf("%s:%s", entityType, instanceID)]
	return ok
}

func (c *Coordinator) run(ctx context.Context, key string, h *Handle, previous readcache.Snapshot) {
	m := h.mutation

	confirmed, err := c.transport.Persist(ctx, m.EntityType, m.InstanceID, m.Changes)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	if err != nil {
		// Roll back only the optimistic visual state; the draft and its
		// overlay stay intact for the user to retry.
		c.cache.Revert(m.EntityType, m.InstanceID, previous)
		c.logger.Warn("commit failed, optimistic state reverted",
			zap.String("entity_type", m.EntityType),
			zap.String("instance_id", m.InstanceID),
			zap.String("optimistic_id", m.OptimisticID),
			zap.Error(err))
		h.resolve(StatusFailed, &PersistenceError{
			EntityType: m.EntityType,
			InstanceID: m.InstanceID,
			Err:        err,
		})
		return
	}

	if confirmed == nil {
		confirmed = m.Changes
	}
	c.cache.Confirm(m.EntityType, m.InstanceID, confirmed)

	if err := c.drafts.Discard(ctx, m.EntityType, m.InstanceID); err != nil {
		// The commit succeeded; a missing draft here means it was discarded
		// concurrently, which is harmless.
		c.logger.Debug("draft cleanup after commit",
			zap.String("entity_type", m.EntityType),
			zap.String("instance_id", m.InstanceID),
			zap.Error(err))
	}

	c.logger.Debug("commit confirmed",
		zap.String("entity_type", m.EntityType),
		zap.String("instance_id", m.InstanceID),
		zap.String("optimistic_id", m.OptimisticID))
	h.resolve(StatusCommitted, nil)
}

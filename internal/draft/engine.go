package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/store"
)

// persistedHistoryCap bounds the undo history written to durable storage so a
// long editing session cannot grow the record without limit. Undo beyond the
// cap is available only within the original process lifetime.
const persistedHistoryCap = 100

// Engine owns every active draft in the process. All mutating operations
// persist the draft record synchronously before returning, so a crash between
// operations loses at most the in-memory convenience, never committed state.
//
// e.mu guards only the drafts map and the degraded flag. Draft state is
// guarded by each draft's own mutex, held across a mutation and its durable
// write so a concurrent Discard can never be interleaved between them.
type Engine struct {
	store  store.Store
	logger *zap.Logger

	mu       sync.Mutex
	drafts   map[string]*Draft
	degraded bool
}

// NewEngine creates a draft engine over a durable store.
func NewEngine(s store.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  s,
		logger: logger,
		drafts: make(map[string]*Draft),
	}
}

func draftKey(entityType, instanceID string) string {
	return fmt.Sprintf("draft:%s:%s", entityType, instanceID)
}

// record is the durable form of a draft.
type record struct {
	EntityType string                   `json:"entity_type"`
	InstanceID string                   `json:"instance_id"`
	Baseline   map[string]interface{}   `json:"baseline"`
	Overlay    map[string]interface{}   `json:"overlay"`
	History    []map[string]interface{} `json:"history"`
	Future     []map[string]interface{} `json:"future"`
}

// StartEdit creates a draft for an entity instance from its last known
// server-confirmed values. Fails with AlreadyActiveError if a draft exists.
func (e *Engine) StartEdit(ctx context.Context, entityType, instanceID string, baseline map[string]interface{}) (*Draft, error) {
	key := draftKey(entityType, instanceID)

	e.mu.Lock()
	if _, exists := e.drafts[key]; exists {
		e.mu.Unlock()
		return nil, &AlreadyActiveError{EntityType: entityType, InstanceID: instanceID}
	}
	d := newDraft(entityType, instanceID, baseline)
	e.drafts[key] = d
	e.mu.Unlock()

	d.mu.Lock()
	err := e.persistLocked(ctx, d)
	d.mu.Unlock()
	if err != nil {
		return d, err
	}
	return d, nil
}

// Get returns the active draft for an instance.
func (e *Engine) Get(entityType, instanceID string) (*Draft, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.drafts[draftKey(entityType, instanceID)]
	return d, ok
}

// SetField records a new value for a field. A write equal to the field's
// current effective value is a no-op and does not touch the undo history.
func (e *Engine) SetField(ctx context.Context, entityType, instanceID, fieldKey string, value interface{}) error {
	return e.mutate(ctx, entityType, instanceID, func(d *Draft) bool {
		return d.setField(fieldKey, value)
	})
}

// Undo restores the previous overlay snapshot. An empty undo stack is a
// no-op, not an error.
func (e *Engine) Undo(ctx context.Context, entityType, instanceID string) error {
	return e.mutate(ctx, entityType, instanceID, func(d *Draft) bool {
		return d.undo()
	})
}

// Redo re-applies the most recently undone snapshot. An empty redo stack is
// a no-op, not an error.
func (e *Engine) Redo(ctx context.Context, entityType, instanceID string) error {
	return e.mutate(ctx, entityType, instanceID, func(d *Draft) bool {
		return d.redo()
	})
}

// mutate applies op and persists the result while holding the draft's lock.
// A draft discarded after lookup but before the lock was acquired is treated
// as gone, so a late mutation can never resurrect its durable record.
func (e *Engine) mutate(ctx context.Context, entityType, instanceID string, op func(*Draft) bool) error {
	d, err := e.active(entityType, instanceID)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.discarded {
		return &NoDraftError{EntityType: entityType, InstanceID: instanceID}
	}
	if !op(d) {
		return nil
	}
	return e.persistLocked(ctx, d)
}

// Discard destroys a draft and its durable record. Used both for explicit
// user discard and by the mutation coordinator after a successful commit.
func (e *Engine) Discard(ctx context.Context, entityType, instanceID string) error {
	key := draftKey(entityType, instanceID)

	e.mu.Lock()
	d, ok := e.drafts[key]
	delete(e.drafts, key)
	e.mu.Unlock()

	if !ok {
		return &NoDraftError{EntityType: entityType, InstanceID: instanceID}
	}

	// The discarded flag is set and the record deleted under the draft's
	// lock, so an in-flight mutation either persists before the delete or
	// observes the flag and writes nothing.
	d.mu.Lock()
	d.discarded = true
	err := e.store.Delete(ctx, key)
	d.mu.Unlock()

	if err != nil {
		// The in-memory draft is gone either way; a stale durable record is
		// cleaned up on the next Resume.
		e.logger.Warn("failed to delete durable draft record",
			zap.String("entity_type", entityType),
			zap.String("instance_id", instanceID),
			zap.Error(err))
	}
	return nil
}

// Resume restores a persisted draft after a process restart. Fails with
// NoDraftError if no durable record exists, or AlreadyActiveError if the
// instance already has a live draft.
func (e *Engine) Resume(ctx context.Context, entityType, instanceID string) (*Draft, error) {
	key := draftKey(entityType, instanceID)

	e.mu.Lock()
	if _, exists := e.drafts[key]; exists {
		e.mu.Unlock()
		return nil, &AlreadyActiveError{EntityType: entityType, InstanceID: instanceID}
	}
	e.mu.Unlock()

	data, err := e.store.Get(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, &NoDraftError{EntityType: entityType, InstanceID: instanceID}
		}
		return nil, fmt.Errorf("failed to read draft record: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt draft record for %s/%s: %w", entityType, instanceID, err)
	}

	d := &Draft{
		EntityType: rec.EntityType,
		InstanceID: rec.InstanceID,
		baseline:   rec.Baseline,
		overlay:    rec.Overlay,
		history:    rec.History,
		future:     rec.Future,
	}
	if d.baseline == nil {
		d.baseline = make(map[string]interface{})
	}
	if d.overlay == nil {
		d.overlay = make(map[string]interface{})
	}
	touched := len(d.overlay)

	// Re-check under the lock: a concurrent Resume or StartEdit may have won
	// while the record was being read.
	e.mu.Lock()
	if _, exists := e.drafts[key]; exists {
		e.mu.Unlock()
		return nil, &AlreadyActiveError{EntityType: entityType, InstanceID: instanceID}
	}
	e.drafts[key] = d
	e.mu.Unlock()

	e.logger.Info("resumed persisted draft",
		zap.String("entity_type", entityType),
		zap.String("instance_id", instanceID),
		zap.Int("touched_fields", touched))
	return d, nil
}

// Degraded reports whether a durable write has failed, meaning current edits
// may not survive a restart.
func (e *Engine) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.degraded
}

func (e *Engine) active(entityType, instanceID string) (*Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.drafts[draftKey(entityType, instanceID)]
	if !ok {
		return nil, &NoDraftError{EntityType: entityType, InstanceID: instanceID}
	}
	return d, nil
}

// persistLocked writes the draft record to durable storage. Caller holds
// d.mu. On failure the in-memory state is kept and the engine enters degraded
// mode: the edit session keeps working, it just may not survive a restart.
func (e *Engine) persistLocked(ctx context.Context, d *Draft) error {
	rec := record{
		EntityType: d.EntityType,
		InstanceID: d.InstanceID,
		Baseline:   d.baseline,
		Overlay:    d.overlay,
		History:    d.history,
		Future:     d.future,
	}
	if len(rec.History) > persistedHistoryCap {
		rec.History = rec.History[len(rec.History)-persistedHistoryCap:]
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return e.markDegraded(d, err)
	}

	if err := e.store.Put(ctx, draftKey(d.EntityType, d.InstanceID), data); err != nil {
		return e.markDegraded(d, err)
	}
	return nil
}

func (e *Engine) markDegraded(d *Draft, err error) error {
	e.mu.Lock()
	e.degraded = true
	e.mu.Unlock()

	e.logger.Warn("draft persistence failed, continuing in memory-only mode",
		zap.String("entity_type", d.EntityType),
		zap.String("instance_id", d.InstanceID),
		zap.Error(err))
	return &PersistenceError{EntityType: d.EntityType, InstanceID: d.InstanceID, Err: err}
}

// Package readcache holds the shared per-instance entity values every UI
// surface reads. It is mutated only by the mutation coordinator (optimistic
// apply, confirm, revert) and by loaders seeding server-confirmed baselines;
// no other component writes to it.
package readcache

import (
	"fmt"
	"sync"
)

// Entry is the cached value set for one entity instance.
type Entry struct {
	Values map[string]interface{}
	// Confirmed is false while the values include an optimistic update that
	// the server has not yet acknowledged.
	Confirmed bool
}

// Cache is the shared read cache for entity instance values.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// New creates an empty read cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
	}
}

func instanceKey(entityType, instanceID string) string {
	return fmt.Sprintf("%s:%s", entityType, instanceID)
}

// Seed stores server-confirmed values for an instance, replacing any previous
// entry. Used by loaders when an instance is first fetched.
func (c *Cache) Seed(entityType, instanceID string, values map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[instanceKey(entityType, instanceID)] = &Entry{
		Values:    copyValues(values),
		Confirmed: true,
	}
}

// Get returns a copy of the cached values for an instance and whether they
// are server-confirmed.
func (c *Cache) Get(entityType, instanceID string) (map[string]interface{}, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[instanceKey(entityType, instanceID)]
	if !ok {
		return nil, false, false
	}
	return copyValues(entry.Values), entry.Confirmed, true
}

// Snapshot records the pre-optimistic state of the fields an Apply replaced.
// Presence is tracked separately from value so a field holding an explicit
// nil is distinguishable from an absent one.
type Snapshot map[string]snapshotValue

type snapshotValue struct {
	value   interface{}
	existed bool
}

// Apply merges changes into an instance's values optimistically and returns
// a snapshot of the fields it replaced, for use by Revert. The entry is
// marked unconfirmed until Confirm or Revert resolves it. Missing instances
// get a fresh entry so every surface sees the new values immediately.
func (c *Cache) Apply(entityType, instanceID string, changes map[string]interface{}) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := instanceKey(entityType, instanceID)
	entry, ok := c.entries[key]
	if !ok {
		entry = &Entry{Values: make(map[string]interface{})}
		c.entries[key] = entry
	}

	previous := make(Snapshot, len(changes))
	for field, value := range changes {
		prev, existed := entry.Values[field]
		previous[field] = snapshotValue{value: prev, existed: existed}
		entry.Values[field] = value
	}
	entry.Confirmed = false
	return previous
}

// Confirm replaces an instance's optimistic values with the server-confirmed
// ones and marks the entry confirmed. confirmed may be a subset (the changed
// fields echoed back); unlisted fields keep their current values.
func (c *Cache) Confirm(entityType, instanceID string, confirmed map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[instanceKey(entityType, instanceID)]
	if !ok {
		return
	}
	for field, value := range confirmed {
		entry.Values[field] = value
	}
	entry.Confirmed = true
}

// Revert restores the pre-optimistic snapshot returned by Apply and marks the
// entry confirmed again, undoing the optimistic visual state after a failed
// commit. Fields absent before Apply are removed; fields that held an
// explicit nil get it back.
func (c *Cache) Revert(entityType, instanceID string, previous Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[instanceKey(entityType, instanceID)]
	if !ok {
		return
	}
	for field, prev := range previous {
		if !prev.existed {
			delete(entry.Values, field)
			continue
		}
		entry.Values[field] = prev.value
	}
	entry.Confirmed = true
}

// Evict removes an instance from the cache.
func (c *Cache) Evict(entityType, instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, instanceKey(entityType, instanceID))
}

func copyValues(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

// Package draft implements the per-instance editing session: a mutable
// overlay over a server-confirmed baseline with field-level dirty tracking,
// undo/redo, and durable persistence across process restarts.
package draft

import (
	"reflect"
	"sort"
	"sync"
)

// Draft is the mutable editing session for one entity instance. The baseline
// is the last server-confirmed snapshot and is never mutated; all edits live
// in the overlay. The overlay keeps every field touched in the session, even
// if edited back to its baseline value, so the UI can show touch affordances;
// touched-but-equal entries are logically clean.
//
// Drafts are read concurrently by HTTP handlers and the mutation coordinator
// while the engine mutates them, so all state is guarded by mu. Mutating
// methods are unexported; the engine calls them with mu held so a mutation
// and its durable persist are atomic with respect to Discard.
type Draft struct {
	EntityType string
	InstanceID string

	mu        sync.Mutex
	discarded bool
	baseline  map[string]interface{}
	overlay   map[string]interface{}
	history   []map[string]interface{}
	future    []map[string]interface{}
}

func newDraft(entityType, instanceID string, baseline map[string]interface{}) *Draft {
	return &Draft{
		EntityType: entityType,
		InstanceID: instanceID,
		baseline:   deepCopyMap(baseline),
		overlay:    make(map[string]interface{}),
	}
}

// setField records a new value for key. Returns false without touching the
// history when value equals the field's current effective value, deduping
// keystroke-level redundant writes. Caller holds d.mu.
func (d *Draft) setField(key string, value interface{}) bool {
	current, _ := d.lookupEffective(key)
	if deepEqual(current, value) {
		return false
	}

	d.history = append(d.history, deepCopyMap(d.overlay))
	d.future = nil
	d.overlay[key] = deepCopyValue(value)
	return true
}

// undo restores the previous overlay snapshot. Returns false (not an error)
// when there is nothing to undo. Caller holds d.mu.
func (d *Draft) undo() bool {
	if len(d.history) == 0 {
		return false
	}
	d.future = append(d.future, d.overlay)
	d.overlay = d.history[len(d.history)-1]
	d.history = d.history[:len(d.history)-1]
	return true
}

// redo re-applies the most recently undone overlay snapshot. Returns false
// when there is nothing to redo. Caller holds d.mu.
func (d *Draft) redo() bool {
	if len(d.future) == 0 {
		return false
	}
	d.history = append(d.history, d.overlay)
	d.overlay = d.future[len(d.future)-1]
	d.future = d.future[:len(d.future)-1]
	return true
}

func (d *Draft) lookupEffective(key string) (interface{}, bool) {
	if v, ok := d.overlay[key]; ok {
		return v, true
	}
	v, ok := d.baseline[key]
	return v, ok
}

// EffectiveValue returns the overlay value for key if the field was touched
// this session, else the baseline value.
func (d *Draft) EffectiveValue(key string) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, _ := d.lookupEffective(key)
	return deepCopyValue(v)
}

// BaselineValue returns the server-confirmed value for key.
func (d *Draft) BaselineValue(key string) interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return deepCopyValue(d.baseline[key])
}

// Touched reports whether key was edited at any point this session, even if
// its value was edited back to the baseline.
func (d *Draft) Touched(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.overlay[key]
	return ok
}

// Dirty reports whether key's effective value differs from its baseline.
// Dirtiness is determined by value equality, not touch history.
func (d *Draft) Dirty(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.overlay[key]
	if !ok {
		return false
	}
	return !deepEqual(v, d.baseline[key])
}

// ChangedFields returns the dirty fields mapped to their effective values.
func (d *Draft) ChangedFields() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	changes := make(map[string]interface{})
	for key, v := range d.overlay {
		if !deepEqual(v, d.baseline[key]) {
			changes[key] = deepCopyValue(v)
		}
	}
	return changes
}

// ChangedKeys returns the dirty field keys in sorted order.
func (d *Draft) ChangedKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var keys []string
	for key, v := range d.overlay {
		if !deepEqual(v, d.baseline[key]) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Overlay returns a copy of the full overlay including touched-but-clean
// entries.
func (d *Draft) Overlay() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return deepCopyMap(d.overlay)
}

// Baseline returns a copy of the server-confirmed snapshot.
func (d *Draft) Baseline() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return deepCopyMap(d.baseline)
}

// CanUndo reports whether an undo snapshot exists.
func (d *Draft) CanUndo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.history) > 0
}

// CanRedo reports whether a redo snapshot exists.
func (d *Draft) CanRedo() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.future) > 0
}

// deepEqual compares two values, handling nil on either side.
func deepEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// deepCopyMap creates a deep copy of a field-value map.
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = deepCopyValue(v)
	}
	return result
}

// deepCopyValue copies slices and maps; primitives and structs are copied by
// value.
func deepCopyValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Slice:
		slice := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			slice[i] = deepCopyValue(val.Index(i).Interface())
		}
		return slice
	case reflect.Map:
		// Field values come from JSON payloads, so string-keyed maps are the
		// only map shape copied structurally.
		if val.Type().Key().Kind() != reflect.String {
			return v
		}
		m := make(map[string]interface{})
		for _, key := range val.MapKeys() {
			m[key.String()] = deepCopyValue(val.MapIndex(key).Interface())
		}
		return m
	default:
		return v
	}
}

// Package store provides durable key-value persistence backends used by the
// draft engine (draft records) and the lookup cache (durable tier).
// All backends guarantee atomic put/get of a single key and survive process
// restart, except MemoryStore which exists for tests and degraded mode.
package store

import "context"

// Store is the interface implemented by all key-value backends.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value atomically.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes the value stored under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys beginning with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// ErrNotFound is returned when a key is not present in the store.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "store: key not found: " + e.Key
}

// IsNotFound checks if an error is a missing-key error.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}

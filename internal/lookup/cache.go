package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/formwork-ui/formwork/internal/schema"
	"github.com/formwork-ui/formwork/internal/store"
)

// Transport fetches option lists from the remote source. Used only by the
// cache's background population paths, never by renderers.
type Transport interface {
	FetchOptions(ctx context.Context, kind schema.SourceKind, key string) ([]Option, error)
}

// Config holds cache configuration.
type Config struct {
	// DefaultTTL applies to every fetched entry.
	DefaultTTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time

	Logger *zap.Logger
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
	}
}

// fetchState tracks one in-flight fetch so concurrent primes for the same key
// attach to it instead of issuing duplicates.
type fetchState struct {
	done       chan struct{}
	err        error
	cancel     context.CancelFunc
	background bool
}

// Cache is the multi-tier lookup cache: a memory tier read synchronously by
// renderers and a durable tier that lets a restarted process serve
// stale-but-present data before revalidation completes.
type Cache struct {
	transport  Transport
	durable    store.Store
	defaultTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger

	mu        sync.Mutex
	entries   map[string]*Entry
	inflight  map[string]*fetchState
	interests map[string]int
}

// New creates a lookup cache over a transport and a durable store.
func New(transport Transport, durable store.Store, config Config) *Cache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &Cache{
		transport:  transport,
		durable:    durable,
		defaultTTL: config.DefaultTTL,
		now:        config.Now,
		logger:     config.Logger,
		entries:    make(map[string]*Entry),
		inflight:   make(map[string]*fetchState),
		interests:  make(map[string]int),
	}
}

func cacheKey(kind schema.SourceKind, key string) string {
	return fmt.Sprintf("lookup:%s:%s", kind, key)
}

// Get returns the freshest cached entry, or nil if the key was never
// populated. It is synchronous and performs no I/O; renderers seeing nil must
// render a loading affordance rather than fetch themselves. A stale entry is
// still returned; observing staleness schedules a background revalidation
// when at least one acquired interest exists for the key.
func (c *Cache) Get(kind schema.SourceKind, key string) *Entry {
	k := cacheKey(kind, key)

	c.mu.Lock()
	entry := c.entries[k]
	stale := entry != nil && entry.IsStale(c.now())
	interested := c.interests[k] > 0
	c.mu.Unlock()

	if entry == nil {
		return nil
	}

	if stale && interested {
		go func() {
			if err := c.prime(context.Background(), kind, key, true); err != nil {
				c.logger.Warn("background revalidation failed",
					zap.String("source_kind", string(kind)),
					zap.String("source_key", key),
					zap.Error(err))
			}
		}()
	}
	return entry
}

// Prime fetches the option list for a key and writes it atomically into both
// tiers. A Prime for a key already being fetched attaches to the in-flight
// request instead of issuing a duplicate fetch. Callers needing fire-and-
// forget semantics run it in a goroutine; the synchronous read path never
// calls Prime.
func (c *Cache) Prime(ctx context.Context, kind schema.SourceKind, key string) error {
	return c.prime(ctx, kind, key, false)
}

func (c *Cache) prime(ctx context.Context, kind schema.SourceKind, key string, background bool) error {
	k := cacheKey(kind, key)

	c.mu.Lock()
	if f, ok := c.inflight[k]; ok {
		// Attach to the in-flight fetch.
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return f.err
		}
	}

	// The fetch context is detached from the caller so one caller's
	// cancellation cannot abort a fetch others attached to. Background
	// revalidations are cancelled by Release when no interest remains.
	fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f := &fetchState{
		done:       make(chan struct{}),
		cancel:     cancel,
		background: background,
	}
	c.inflight[k] = f
	c.mu.Unlock()

	options, err := c.transport.FetchOptions(fctx, kind, key)

	c.mu.Lock()
	delete(c.inflight, k)
	if err != nil {
		f.err = err
		c.mu.Unlock()
		cancel()
		close(f.done)
		return err
	}

	entry := &Entry{
		SourceKind: kind,
		SourceKey:  key,
		Options:    options,
		FetchedAt:  c.now(),
		TTL:        c.defaultTTL,
	}
	c.entries[k] = entry
	c.mu.Unlock()

	c.writeDurable(fctx, k, entry)
	cancel()
	close(f.done)
	return nil
}

// writeDurable persists an entry to the durable tier. A durable write failure
// degrades restart behavior but never fails the prime: the memory tier is
// already serving the fresh entry.
func (c *Cache) writeDurable(ctx context.Context, k string, entry *Entry) {
	data, err := json.Marshal(entry)
	if err == nil {
		err = c.durable.Put(ctx, k, data)
	}
	if err != nil {
		c.logger.Warn("failed to persist lookup entry",
			zap.String("key", k),
			zap.Error(err))
	}
}

// Acquire registers a reader's interest in a key. It hydrates the key from
// the durable tier and revalidates if the entry is missing or stale, all off
// the caller's path. Every Acquire must be paired with a Release.
func (c *Cache) Acquire(kind schema.SourceKind, key string) {
	k := cacheKey(kind, key)

	c.mu.Lock()
	c.interests[k]++
	entry := c.entries[k]
	stale := entry != nil && entry.IsStale(c.now())
	c.mu.Unlock()

	go func() {
		ctx := context.Background()
		if entry == nil {
			if hydrated := c.hydrateKey(ctx, k); hydrated != nil {
				entry = hydrated
				stale = entry.IsStale(c.now())
			}
		}
		if entry == nil || stale {
			if err := c.prime(ctx, kind, key, true); err != nil {
				c.logger.Warn("acquire population failed",
					zap.String("source_kind", string(kind)),
					zap.String("source_key", key),
					zap.Error(err))
			}
		}
	}()
}

// Release drops a reader's interest in a key. When the last interest is
// released, an in-flight background revalidation for the key is abandoned.
// Explicit Prime calls are never cancelled.
func (c *Cache) Release(kind schema.SourceKind, key string) {
	k := cacheKey(kind, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interests[k] <= 1 {
		delete(c.interests, k)
		if f, ok := c.inflight[k]; ok && f.background {
			f.cancel()
		}
		return
	}
	c.interests[k]--
}

// Hydrate loads every persisted lookup entry into the memory tier. Called at
// startup so the synchronous read path can serve stale-but-present data
// before any revalidation completes.
func (c *Cache) Hydrate(ctx context.Context) error {
	keys, err := c.durable.Keys(ctx, "lookup:")
	if err != nil {
		return fmt.Errorf("failed to list durable lookup entries: %w", err)
	}

	loaded := 0
	for _, k := range keys {
		if c.hydrateKey(ctx, k) != nil {
			loaded++
		}
	}

	c.logger.Info("lookup cache hydrated",
		zap.Int("persisted", len(keys)),
		zap.Int("loaded", loaded))
	return nil
}

// hydrateKey loads one durable entry into memory unless a fresher in-memory
// entry already exists.
func (c *Cache) hydrateKey(ctx context.Context, k string) *Entry {
	data, err := c.durable.Get(ctx, k)
	if err != nil {
		if !store.IsNotFound(err) {
			c.logger.Warn("failed to read durable lookup entry",
				zap.String("key", k),
				zap.Error(err))
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("corrupt durable lookup entry",
			zap.String("key", k),
			zap.Error(err))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok && !existing.FetchedAt.Before(entry.FetchedAt) {
		return existing
	}
	c.entries[k] = &entry
	return &entry
}

// Interested reports the current interest count for a key, for tests and
// diagnostics.
func (c *Cache) Interested(kind schema.SourceKind, key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interests[cacheKey(kind, key)]
}

package segments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JustinTDCT/SkipVault/internal/logger"
)

// SharedStore is an optional second-level cache shared between processes.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type cacheEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// Cache is a TTL cache with per-key request coalescing. At most one fetch
// per key is in flight; concurrent callers share its result.
type Cache[T any] struct {
	name    string
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry[T]
	group   singleflight.Group
	// flights maps keys with a fetch in progress to that fetch's token.
	// Invalidation removes the token so the stale result is not stored.
	flights map[string]uint64
	seq     uint64

	shared SharedStore
	log    *slog.Logger
}

// CacheOption tweaks a Cache at construction.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	timeout time.Duration
	now     func() time.Time
	shared  SharedStore
	log     *slog.Logger
}

func WithFetchTimeout(d time.Duration) CacheOption {
	return func(o *cacheOptions) { o.timeout = d }
}

func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

func WithSharedStore(s SharedStore) CacheOption {
	return func(o *cacheOptions) { o.shared = s }
}

func WithCacheLogger(l *slog.Logger) CacheOption {
	return func(o *cacheOptions) { o.log = l }
}

// NewCache creates a cache whose entries live for ttl.
func NewCache[T any](name string, ttl time.Duration, opts ...CacheOption) *Cache[T] {
	o := cacheOptions{timeout: 8 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		name:    name,
		ttl:     ttl,
		timeout: o.timeout,
		now:     o.now,
		entries: make(map[string]cacheEntry[T]),
		flights: make(map[string]uint64),
		shared:  o.shared,
		log:     logger.Component(o.log, "cache").With("cache", name),
	}
}

func (c *Cache[T]) TTL() time.Duration {
	return c.ttl
}

// Get returns a live entry. Expired entries are dropped and reported absent.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero T
		return zero, false
	}
	if c.now().Sub(e.fetchedAt) >= c.ttl {
		delete(c.entries, key)
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *Cache[T]) Set(key string, v T) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[T]{value: v, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InvalidatePrefix removes every entry whose key starts with prefix, locally
// and in the shared store. Fetches already in flight for those keys are
// detached: their results are not stored and later callers start anew.
func (c *Cache[T]) InvalidatePrefix(ctx context.Context, prefix string) int {
	c.mu.Lock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	for k := range c.flights {
		if strings.HasPrefix(k, prefix) {
			delete(c.flights, k)
			c.group.Forget(k)
		}
	}
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.DeletePrefix(ctx, c.sharedKey(prefix)); err != nil {
			c.log.Warn("shared invalidate failed", "prefix", prefix, "error", err)
		}
	}
	return n
}

// Sweep drops expired entries and returns how many were removed.
func (c *Cache[T]) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.log.Debug("swept expired entries", "removed", n, "remaining", len(c.entries))
	}
	return n
}

// Load returns the cached value for key or runs fetch, sharing one call
// between concurrent callers. The shared call runs detached from any one
// caller's cancellation and is bounded by the fetch timeout; each caller
// stops waiting when its own ctx ends. Failed fetches are not cached.
func (c *Cache[T]) Load(ctx context.Context, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		c.mu.Lock()
		c.seq++
		token := c.seq
		c.flights[key] = token
		c.mu.Unlock()

		if v, ok := c.getShared(fctx, key); ok {
			c.commit(key, token, v)
			return v, nil
		}

		v, err := fetch(fctx)
		if err != nil {
			c.mu.Lock()
			if c.flights[key] == token {
				delete(c.flights, key)
			}
			c.mu.Unlock()
			return v, err
		}
		if c.commit(key, token, v) {
			c.putShared(fctx, key, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// commit stores v unless the fetch identified by token was invalidated
// while it ran.
func (c *Cache[T]) commit(key string, token uint64, v T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights[key] != token {
		c.log.Debug("discarding result invalidated in flight", "key", key)
		return false
	}
	delete(c.flights, key)
	c.entries[key] = cacheEntry[T]{value: v, fetchedAt: c.now()}
	return true
}

func (c *Cache[T]) sharedKey(key string) string {
	return "skipvault:" + c.name + ":" + key
}

func (c *Cache[T]) getShared(ctx context.Context, key string) (T, bool) {
	var zero T
	if c.shared == nil {
		return zero, false
	}
	raw, ok, err := c.shared.Get(ctx, c.sharedKey(key))
	if err != nil {
		c.log.Warn("shared get failed", "key", key, "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("shared entry unreadable", "key", key, "error", err)
		return zero, false
	}
	return v, true
}

func (c *Cache[T]) putShared(ctx context.Context, key string, v T) {
	if c.shared == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.shared.Set(ctx, c.sharedKey(key), raw, c.ttl); err != nil {
		c.log.Warn("shared set failed", "key", key, "error", err)
	}
}

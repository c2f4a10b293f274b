// Package cache provides instance scoped TTL caches keyed by content hashes.
//
// A Cache decodes typed values out of a Backend that only stores raw records, so one backend
// can serve several caches as long as their namespaces differ. Expiry is evaluated against the
// cache clock on every read and expired records are removed by a full sweep after each write.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/flow-api/internal/infrastructure/metrics"
)

// keyHashLength is the number of hex characters of the digest kept in a key.
const keyHashLength = 16

// Record is what backends persist: an encoded payload and its creation time.
type Record struct {
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend stores records by key. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, key string, record Record, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Locker is implemented by backends shared between processes so sweeps do not overlap.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func() error) error
}

// Validator gets a last say on a time-valid entry. Returning false removes the entry.
type Validator[T any] func(ctx context.Context, value T) bool

// DeriveKey hashes the ordered parts into namespace:hash. The parts are serialized as a JSON
// array so that boundaries between them are preserved.
func DeriveKey(namespace string, parts ...string) string {
	if parts == nil {
		parts = []string{}
	}
	canonical, err := json.Marshal(parts)
	if err != nil {
		// []string always marshals; keep the fallback deterministic anyway.
		canonical = []byte(strings.Join(parts, "\x00"))
	}
	sum := sha256.Sum256(canonical)
	return namespace + ":" + hex.EncodeToString(sum[:])[:keyHashLength]
}

// Cache is a typed TTL cache over a Backend.
type Cache[T any] struct {
	namespace string
	ttl       time.Duration
	backend   Backend
	validator Validator[T]
	now       func() time.Time
	log       zerolog.Logger
}

// Option customizes a Cache.
type Option[T any] func(*Cache[T])

// WithClock replaces time.Now, mostly for tests.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) { c.now = now }
}

// WithValidator installs a read time validator.
func WithValidator[T any](v Validator[T]) Option[T] {
	return func(c *Cache[T]) { c.validator = v }
}

// WithLogger sets the logger used for backend failures.
func WithLogger[T any](log zerolog.Logger) Option[T] {
	return func(c *Cache[T]) { c.log = log }
}

// New creates a cache. Backend failures are logged and treated as misses.
func New[T any](namespace string, ttl time.Duration, backend Backend, opts ...Option[T]) *Cache[T] {
	if backend == nil {
		backend = NewNoopBackend()
	}
	c := &Cache[T]{
		namespace: namespace,
		ttl:       ttl,
		backend:   backend,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("cache", namespace).Logger()
	return c
}

// Namespace returns the key namespace of the cache.
func (c *Cache[T]) Namespace() string { return c.namespace }

// TTL returns the entry lifetime.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// Key derives a key in this cache's namespace.
func (c *Cache[T]) Key(parts ...string) string {
	return DeriveKey(c.namespace, parts...)
}

func (c *Cache[T]) expired(record Record) bool {
	return c.now().Sub(record.CreatedAt) >= c.ttl
}

// Get returns the cached value when present, decodable, younger than the TTL and accepted by
// the validator. Expired and rejected entries are removed.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	var zero T

	record, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		metrics.RecordCacheLookup(c.namespace, "error")
		return zero, false
	}
	if !ok {
		metrics.RecordCacheLookup(c.namespace, "miss")
		return zero, false
	}

	if c.expired(record) {
		c.remove(ctx, key, "expired")
		metrics.RecordCacheLookup(c.namespace, "expired")
		return zero, false
	}

	var value T
	if err := json.Unmarshal(record.Payload, &value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		c.remove(ctx, key, "corrupt")
		metrics.RecordCacheLookup(c.namespace, "miss")
		return zero, false
	}

	if c.validator != nil && !c.validator(ctx, value) {
		c.remove(ctx, key, "invalidated")
		metrics.RecordCacheLookup(c.namespace, "rejected")
		return zero, false
	}

	metrics.RecordCacheLookup(c.namespace, "hit")
	return value, true
}

// Set stores value with the current time and then sweeps expired entries.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	record := Record{Payload: payload, CreatedAt: c.now().UTC()}
	if err := c.backend.Set(ctx, key, record, c.ttl); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	if _, err := c.Sweep(ctx); err != nil {
		c.log.Warn().Err(err).Msg("cache sweep failed")
	}
	return nil
}

// Invalidate removes one entry.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate cache entry: %w", err)
	}
	metrics.RecordCacheEviction(c.namespace, "invalidated", 1)
	return nil
}

// Sweep removes every expired entry of the namespace and returns how many were removed.
func (c *Cache[T]) Sweep(ctx context.Context) (int, error) {
	removed := 0
	sweep := func() error {
		keys, err := c.backend.Keys(ctx, c.namespace+":")
		if err != nil {
			return fmt.Errorf("list cache keys: %w", err)
		}
		for _, key := range keys {
			record, ok, err := c.backend.Get(ctx, key)
			if err != nil || !ok || !c.expired(record) {
				continue
			}
			if err := c.backend.Delete(ctx, key); err != nil {
				return fmt.Errorf("delete expired entry: %w", err)
			}
			removed++
		}
		return nil
	}

	var err error
	if locker, ok := c.backend.(Locker); ok {
		err = locker.WithLock(ctx, "sweep:"+c.namespace, sweep)
	} else {
		err = sweep()
	}
	metrics.RecordCacheEviction(c.namespace, "expired", removed)
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("swept expired cache entries")
	}
	return removed, err
}

// Clear removes every entry of the namespace.
func (c *Cache[T]) Clear(ctx context.Context) error {
	keys, err := c.backend.Keys(ctx, c.namespace+":")
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	for _, key := range keys {
		if err := c.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear cache entry: %w", err)
		}
	}
	return nil
}

// Len counts stored entries of the namespace, expired ones included.
func (c *Cache[T]) Len(ctx context.Context) int {
	keys, err := c.backend.Keys(ctx, c.namespace+":")
	if err != nil {
		return 0
	}
	return len(keys)
}

func (c *Cache[T]) remove(ctx context.Context, key, reason string) {
	if err := c.backend.Delete(ctx, key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache delete failed")
		return
	}
	metrics.RecordCacheEviction(c.namespace, reason, 1)
}

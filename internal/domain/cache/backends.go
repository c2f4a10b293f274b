package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultMaxEntries bounds the in-memory backend.
const DefaultMaxEntries = 512

// MemoryBackend keeps records in a bounded LRU. Expiry is left to the caches on top.
type MemoryBackend struct {
	cache *lru.Cache
	mu    sync.RWMutex
}

// NewMemoryBackend creates an LRU backend holding at most maxEntries records.
func NewMemoryBackend(maxEntries int) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	cache, err := lru.New(maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{cache: cache}, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	val, found := b.cache.Get(key)
	if !found {
		return Record{}, false, nil
	}
	record, ok := val.(Record)
	if !ok {
		return Record{}, false, nil
	}
	return record, true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, record Record, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Add(key, record)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cache.Remove(key)
	return nil
}

func (b *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []string
	for _, k := range b.cache.Keys() {
		key, ok := k.(string)
		if ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// NoopBackend stores nothing. Every read misses.
type NoopBackend struct{}

func NewNoopBackend() *NoopBackend {
	return &NoopBackend{}
}

func (NoopBackend) Get(context.Context, string) (Record, bool, error) { return Record{}, false, nil }

func (NoopBackend) Set(context.Context, string, Record, time.Duration) error { return nil }

func (NoopBackend) Delete(context.Context, string) error { return nil }

func (NoopBackend) Keys(context.Context, string) ([]string, error) { return nil, nil }

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Type       string // "memory", "redis", "noop"
	RedisURL   string
	KeyPrefix  string
	MaxEntries int
}

// NewBackend is the backend factory.
func NewBackend(cfg BackendConfig) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryBackend(cfg.MaxEntries)
	case "redis":
		return NewRedisBackend(cfg.RedisURL, cfg.KeyPrefix)
	case "noop":
		return NewNoopBackend(), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

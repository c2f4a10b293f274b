package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sweepLockExpiry = 10 * time.Second

// RedisBackend stores JSON encoded records in redis. Redis also expires keys after the TTL,
// which only ever removes entries the caches would already treat as expired.
type RedisBackend struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	prefix string
}

// NewRedisBackend connects to a single node or a comma separated cluster address list.
func NewRedisBackend(redisURL, prefix string) (*RedisBackend, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("Redis URL must be provided")
	}

	opts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if len(opts.Addrs) > 1 && opts.DB != 0 {
		log.Warn().Msg("Ignoring non-zero DB when using Redis Cluster configuration")
		opts.DB = 0
	}

	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info().Msg("Successfully connected to Redis cache")
	return &RedisBackend{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		prefix: prefix,
	}, nil
}

func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no Redis addresses provided")
	}
	return opts, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	val, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	var record Record
	if err := json.Unmarshal(val, &record); err != nil {
		return Record{}, false, fmt.Errorf("failed to unmarshal JSON from cache: %w", err)
	}
	return record, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, record Record, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, b.prefix+key, data, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Unlink(ctx, b.prefix+key).Err()
}

// Keys scans for keys starting with prefix and returns them without the backend prefix.
func (b *RedisBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	pattern := b.prefix + prefix + "*"
	for {
		batch, next, err := b.client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		for _, k := range batch {
			keys = append(keys, strings.TrimPrefix(k, b.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return keys, nil
}

// WithLock runs fn while holding a redsync mutex. A lock held elsewhere means another
// process is already doing the work, so fn is skipped.
func (b *RedisBackend) WithLock(ctx context.Context, name string, fn func() error) error {
	mutex := b.rs.NewMutex(b.prefix+"lock:"+name, redsync.WithExpiry(sweepLockExpiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		log.Debug().Err(err).Str("lock", name).Msg("skipping locked cache work")
		return nil
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to unlock mutex")
		}
	}()
	return fn()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) HealthCheck(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

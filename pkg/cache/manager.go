package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key layout in Redis.
const (
	recordKeyPrefix = "catalog:anidb:record:"
	lastWriteKey    = "catalog:anidb:last_write"
)

var (
	// ErrCacheMiss indicates the requested identifier was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles record persistence with a Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves the entry for an identifier.
// Returns ErrCacheMiss if the identifier has never been stored.
func (m *Manager) Get(ctx context.Context, id string) (*Entry, error) {
	data, err := m.redis.Get(ctx, recordKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores the entry for an identifier without a TTL and stamps the
// informational last-write key. Entries are never evicted; a later Set for
// the same identifier replaces the previous entry wholesale.
func (m *Manager) Set(ctx context.Context, id string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	pipe := m.redis.Pipeline()
	pipe.Set(ctx, recordKeyPrefix+id, data, 0)
	pipe.Set(ctx, lastWriteKey, time.Now().UTC().Format(time.RFC3339Nano), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes the entry for an identifier. Provided for operational
// cleanup; the client never evicts on its own.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.redis.Del(ctx, recordKeyPrefix+id).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// LastWrite returns when the store was last written to. Returns the zero
// time with a nil error when nothing has ever been stored.
func (m *Manager) LastWrite(ctx context.Context) (time.Time, error) {
	val, err := m.redis.Get(ctx, lastWriteKey).Result()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		CacheErrors.WithLabelValues("get").Inc()
		return time.Time{}, fmt.Errorf("redis get: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last write stamp: %w", err)
	}
	return ts, nil
}

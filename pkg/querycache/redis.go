package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for the Redis store.
type RedisConfig struct {
	// Namespace is prepended to every Redis key.
	Namespace string

	// TTL is the Redis expiry of every entry.
	TTL time.Duration

	// ScanCount is the COUNT hint used when listing keys.
	ScanCount int64
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Namespace: "usable:",
		TTL:       5 * time.Minute,
		ScanCount: 100,
	}
}

// RedisStore keeps JSON-encoded entries in Redis, shared across processes.
type RedisStore struct {
	redis *redis.Client
	cfg   RedisConfig
}

// redisEntry is the serialized form of Entry.
type redisEntry struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewRedisStore creates a store with Redis backend.
func NewRedisStore(redisClient *redis.Client, cfg RedisConfig) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultRedisConfig().TTL
	}
	if cfg.ScanCount <= 0 {
		cfg.ScanCount = DefaultRedisConfig().ScanCount
	}
	return &RedisStore{redis: redisClient, cfg: cfg}
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, s.cfg.Namespace+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	return &Entry{Value: stored.Value, UpdatedAt: stored.UpdatedAt}, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	value, err := json.Marshal(entry.Value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	data, err := json.Marshal(redisEntry{Value: value, UpdatedAt: entry.UpdatedAt})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, s.cfg.Namespace+key, data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.cfg.Namespace + key
	}

	if err := s.redis.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Keys implements Store.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.cfg.Namespace+prefix) + "*"

	var keys []string
	iter := s.redis.Scan(ctx, 0, pattern, s.cfg.ScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.cfg.Namespace))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Layer implements Store.
func (s *RedisStore) Layer() string { return "redis" }

// escapeGlob escapes Redis MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

package querycache

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// MemoryConfig holds the configuration for the in-memory store.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries. Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards. Must be greater than 0.
	NumShards int

	// TTL bounds how long an entry is kept regardless of stale time.
	TTL time.Duration

	// EvictionPercentage is the share of entries evicted when the store is
	// full. Must be between 1 and 100.
	EvictionPercentage int

	// EvictionInterval sets how often expired entries are swept. Zero uses
	// the library default.
	EvictionInterval time.Duration
}

// DefaultMemoryConfig returns defaults suitable for a single process.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:           10000,
		NumShards:          64,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}
}

// Validate checks the configuration values.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	if c.EvictionInterval < 0 {
		return &ConfigError{Field: "EvictionInterval", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// MemoryStore keeps entries in a sharded in-process cache.
type MemoryStore struct {
	client *sturdyc.Client[*Entry]
}

// NewMemoryStore creates an in-memory store backed by sturdyc.
func NewMemoryStore(cfg MemoryConfig) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []sturdyc.Option
	if cfg.EvictionInterval > 0 {
		opts = append(opts, sturdyc.WithEvictionInterval(cfg.EvictionInterval))
	}

	client := sturdyc.New[*Entry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		opts...,
	)
	return &MemoryStore{client: client}, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	entry, ok := s.client.Get(key)
	if !ok || entry == nil {
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, entry *Entry) error {
	s.client.Set(key, entry)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Layer implements Store.
func (s *MemoryStore) Layer() string { return "memory" }

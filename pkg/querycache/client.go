package querycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/usable-query/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value of a query from its source.
type FetchFunc func(ctx context.Context) (any, error)

// Cache is the capability compiled endpoints need from a query cache.
type Cache interface {
	FetchQuery(ctx context.Context, key Key, fetch FetchFunc, opts ...FetchOption) (any, error)
	GetQueryData(ctx context.Context, key Key) (any, error)
	SetQueryData(ctx context.Context, key Key, value any) error
	InvalidateQueries(ctx context.Context, filter Key) (int, error)
}

// Config holds the cache client configuration.
type Config struct {
	// StaleTime is how long a fetched value is served without refetching.
	StaleTime time.Duration

	Logger *zerolog.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		StaleTime: 30 * time.Second,
	}
}

// FetchOption customizes a single FetchQuery call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	staleTime *time.Duration
	force     bool
}

// WithStaleTime overrides the client's stale time for one call.
func WithStaleTime(d time.Duration) FetchOption {
	return func(o *fetchOptions) { o.staleTime = &d }
}

// WithForce skips the cache read and always fetches.
func WithForce() FetchOption {
	return func(o *fetchOptions) { o.force = true }
}

// Client is the default Cache implementation.
type Client struct {
	store  Store
	group  singleflight.Group
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight tracks one running fetch. An invalidation that matches its key
// marks it stale so its result is not written back.
type flight struct {
	mu    sync.Mutex
	stale bool
}

// NewClient creates a cache client on top of store.
func NewClient(store Store, cfg Config) *Client {
	if store == nil {
		panic("cache store cannot be nil")
	}

	logger := logging.Scoped(cfg.Logger, logging.ComponentQueryCache)

	return &Client{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		flights: make(map[string]*flight),
	}
}

// FetchQuery returns the cached value for key when it is fresh, otherwise
// calls fetch and stores its result. Concurrent calls for the same key share
// one fetch. The fetch runs without the caller's cancellation; a cancelled
// caller returns ctx.Err() while the others still receive the result.
// A result whose key was invalidated while it was fetched is returned but
// not cached.
func (c *Client) FetchQuery(ctx context.Context, key Key, fetch FetchFunc, opts ...FetchOption) (any, error) {
	o := fetchOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	staleTime := c.cfg.StaleTime
	if o.staleTime != nil {
		staleTime = *o.staleTime
	}

	cacheKey := key.String()

	if !o.force {
		entry, err := c.store.Get(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsStale(staleTime):
			CacheHits.WithLabelValues(c.store.Layer()).Inc()
			c.logger.Debug().Str("key", cacheKey).Msg("Cache hit")
			return entry.Value, nil
		case err == nil:
			c.logger.Debug().Str("key", cacheKey).Msg("Cache entry stale")
		case !errors.Is(err, ErrCacheMiss):
			CacheErrors.WithLabelValues("get").Inc()
			c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Cache get error")
		}
		CacheMisses.Inc()
	}

	// The fetch outlives any single caller: a caller giving up must not
	// fail the others sharing the flight.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(cacheKey, func() (any, error) {
		f := c.startFlight(cacheKey)
		defer c.endFlight(cacheKey, f)

		value, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.stale {
			c.logger.Debug().Str("key", cacheKey).Msg("Key invalidated during fetch, result not cached")
			return value, nil
		}
		if err := c.store.Set(fetchCtx, cacheKey, &Entry{Value: value, UpdatedAt: time.Now()}); err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			c.logger.Warn().Err(err).Str("key", cacheKey).Msg("Failed to cache query result")
		}
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug().Str("key", cacheKey).Msg("Shared in-flight fetch")
		}
		return res.Val, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) startFlight(key string) *flight {
	f := &flight{}
	c.mu.Lock()
	c.flights[key] = f
	c.mu.Unlock()
	return f
}

func (c *Client) endFlight(key string, f *flight) {
	c.mu.Lock()
	if c.flights[key] == f {
		delete(c.flights, key)
	}
	c.mu.Unlock()
}

// markStale flags running fetches under filter and forgets them, so later
// callers start a new fetch.
func (c *Client) markStale(filter Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, f := range c.flights {
		if Matches(key, filter) {
			f.mu.Lock()
			f.stale = true
			f.mu.Unlock()
			c.group.Forget(key)
		}
	}
}

// GetQueryData returns the cached value for key regardless of staleness.
func (c *Client) GetQueryData(ctx context.Context, key Key) (any, error) {
	entry, err := c.store.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			CacheErrors.WithLabelValues("get").Inc()
		}
		return nil, err
	}
	return entry.Value, nil
}

// SetQueryData writes value for key as freshly fetched data.
func (c *Client) SetQueryData(ctx context.Context, key Key, value any) error {
	if err := c.store.Set(ctx, key.String(), &Entry{Value: value, UpdatedAt: time.Now()}); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return err
	}
	return nil
}

// InvalidateQueries removes every entry whose key has filter as prefix and
// returns how many were removed. The next fetch of those keys goes to the
// source.
func (c *Client) InvalidateQueries(ctx context.Context, filter Key) (int, error) {
	prefix := filter.String()

	// Running fetches are marked before deleting so none of them can write
	// back after the delete.
	c.markStale(filter)

	candidates, err := c.store.Keys(ctx, prefix)
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return 0, fmt.Errorf("list keys: %w", err)
	}

	matched := make([]string, 0, len(candidates))
	for _, key := range candidates {
		if Matches(key, filter) {
			matched = append(matched, key)
		}
	}

	if err := c.store.Delete(ctx, matched...); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return 0, fmt.Errorf("delete keys: %w", err)
	}

	CacheInvalidations.Add(float64(len(matched)))
	c.logger.Debug().
		Str("filter", prefix).
		Int("removed", len(matched)).
		Msg("Invalidated queries")

	return len(matched), nil
}

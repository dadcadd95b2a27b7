package usable

import (
	"context"
	"sync"
	"testing"

	"github.com/Sternrassler/usable-query/internal/testutil"
	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/querycache"
	"github.com/rs/zerolog"
)

type User struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) *querycache.Client {
	t.Helper()

	store, err := querycache.NewMemoryStore(querycache.DefaultMemoryConfig())
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	logger := zerolog.Nop()
	return querycache.NewClient(store, querycache.Config{StaleTime: querycache.DefaultConfig().StaleTime, Logger: &logger})
}

func newTestAPI(t *testing.T, mock *testutil.MockAPI, cache querycache.Cache, endpoints Endpoints) *API {
	t.Helper()

	logger := zerolog.Nop()
	cfg := DefaultConfig(cache, mock.URL())
	cfg.Logger = &logger

	api, err := BuildAPI(cfg, endpoints)
	if err != nil {
		t.Fatalf("BuildAPI() error = %v", err)
	}
	return api
}

// recorder collects events and ordered markers from concurrent callers.
type recorder struct {
	mu     sync.Mutex
	events []listener.Event
	order  []string
}

func (r *recorder) mark(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func (r *recorder) subscription(match func(listener.Event) bool) *listener.Subscription {
	return &listener.Subscription{
		Matches: match,
		PerformAction: func(ctx context.Context, e listener.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			r.order = append(r.order, "listener:"+string(e.State))
			return nil
		},
	}
}

func (r *recorder) states() []listener.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]listener.State, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.State)
	}
	return out
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// spyCache records invalidations before delegating.
type spyCache struct {
	querycache.Cache
	rec *recorder
}

func (c *spyCache) InvalidateQueries(ctx context.Context, filter querycache.Key) (int, error) {
	c.rec.mark("invalidate:" + filter.String())
	return c.Cache.InvalidateQueries(ctx, filter)
}

package usable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/pagination"
	"github.com/Sternrassler/usable-query/pkg/querycache"
	"github.com/Sternrassler/usable-query/pkg/transport"
	"github.com/Sternrassler/usable-query/pkg/urlutil"
)

// Status is the lifecycle state of a handle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// QueryEndpoint is a compiled query.
type QueryEndpoint[A, R any] struct {
	name string
	def  QueryDefinition[A, R]
	rt   *runtime
}

// Name returns the endpoint name.
func (e *QueryEndpoint[A, R]) Name() string { return e.name }

// HookName returns the handle name, e.g. useGetUserQuery.
func (e *QueryEndpoint[A, R]) HookName() string { return HookName(e.name, KindQuery) }

// IsInfinite reports whether the query is paginated.
func (e *QueryEndpoint[A, R]) IsInfinite() bool { return e.def.IsInfinite }

// CacheKey returns the cache key for args: [definition key, name, args]
// without falsy parts.
func (e *QueryEndpoint[A, R]) CacheKey(args A) querycache.Key {
	return querycache.NewKey(e.def.Key, e.name, args)
}

func (e *QueryEndpoint[A, R]) notifier() notifier {
	return notifier{registry: e.rt.registry, typ: listener.TypeQuery, key: e.def.Key}
}

// Fetch invokes the query directly through the shared cache, outside of
// any handle. It is meant for prefetching and server-side fetching; use
// WithExtra to forward the incoming request's token and headers.
//
// Infinite queries fetch their first page only.
func (e *QueryEndpoint[A, R]) Fetch(ctx context.Context, args A, opts ...FetchOption) (R, error) {
	var cfg fetchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	cb := mergeQueryOptions(QueryOptions[R]{}, e.notifier())
	return run(ctx, cb, func(ctx context.Context) (R, error) {
		if e.def.IsInfinite {
			data, err := e.fetchFirstPage(ctx, args, cfg.extra, cfg.cacheOptions())
			if err != nil {
				var zero R
				return zero, err
			}
			return pagination.MergeAs[R](data.Pages)
		}
		return e.fetchCached(ctx, args, cfg.extra, cfg.cacheOptions())
	})
}

// Use creates a handle bound to args. Nothing is fetched until Fetch.
func (e *QueryEndpoint[A, R]) Use(args A, opts QueryOptions[R]) *QueryHandle[A, R] {
	return &QueryHandle[A, R]{
		endpoint: e,
		args:     args,
		opts:     opts,
		status:   StatusIdle,
	}
}

// request builds the request for args with the token and headers of extra.
func (e *QueryEndpoint[A, R]) request(args A, extra *Extra) transport.Request {
	req := e.def.QueryFn(args)
	if token := extra.token(); token != "" {
		req.Token = token
	}
	if headers := extra.headers(); headers != nil {
		req.Headers = headers
	}
	return req
}

func (e *QueryEndpoint[A, R]) fetchCached(ctx context.Context, args A, extra *Extra, opts []querycache.FetchOption) (R, error) {
	value, err := e.rt.cache.FetchQuery(ctx, e.CacheKey(args), func(ctx context.Context) (any, error) {
		resp, err := e.rt.baseQuery(ctx, e.request(args, extra))
		if err != nil {
			return nil, err
		}
		return decodeResponse(resp, e.def.TransformResponse)
	}, opts...)
	if err != nil {
		var zero R
		return zero, err
	}
	return querycache.As[R](value)
}

func (e *QueryEndpoint[A, R]) fetchFirstPage(ctx context.Context, args A, extra *Extra, opts []querycache.FetchOption) (pagination.InfiniteData, error) {
	value, err := e.rt.cache.FetchQuery(ctx, e.CacheKey(args), func(ctx context.Context) (any, error) {
		page, err := e.fetchPage(ctx, e.request(args, extra))
		if err != nil {
			return nil, err
		}
		var data pagination.InfiniteData
		data.Append(page, nil)
		return data, nil
	}, opts...)
	if err != nil {
		return pagination.InfiniteData{}, err
	}
	return querycache.As[pagination.InfiniteData](value)
}

// nextPageRequest builds the request of the page after cursor from the
// handle args: the QueryFn request with cursor=next.<cursor> appended.
// When args is a parameter map, entries the request does not already carry
// are appended too.
func (e *QueryEndpoint[A, R]) nextPageRequest(args A, extra *Extra, cursor any) (transport.Request, error) {
	req := e.request(args, extra)

	present := make(map[string]bool, len(req.Params))
	for k := range req.Params {
		present[k] = true
	}
	if u, err := url.Parse(req.URL); err == nil {
		for k := range u.Query() {
			present[k] = true
		}
	}

	params := map[string]any{}
	if m, ok := any(args).(map[string]any); ok {
		for k, v := range m {
			if !present[k] {
				params[k] = v
			}
		}
	}
	params[pagination.CursorQueryKey] = pagination.CursorParam(cursor)

	target, err := urlutil.AppendParams(req.URL, params)
	if err != nil {
		return req, err
	}
	req.URL = target
	return req, nil
}

// fetchPage executes one page request and returns the page as JSON.
func (e *QueryEndpoint[A, R]) fetchPage(ctx context.Context, req transport.Request) (json.RawMessage, error) {
	resp, err := e.rt.baseQuery(ctx, req)
	if err != nil {
		return nil, err
	}

	if e.def.TransformResponse != nil {
		page, err := e.def.TransformResponse(resp)
		if err != nil {
			return nil, err
		}
		return json.Marshal(page)
	}

	if len(bytes.TrimSpace(resp.Data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(resp.Data), nil
}

// QueryHandle observes one query for fixed args. It is safe for concurrent
// use; fetches on the same handle are serialized.
type QueryHandle[A, R any] struct {
	endpoint *QueryEndpoint[A, R]
	args     A
	opts     QueryOptions[R]

	fetchMu sync.Mutex

	mu     sync.RWMutex
	status Status
	data   R
	err    error
	pages  pagination.InfiniteData
}

// Key returns the handle's cache key.
func (h *QueryHandle[A, R]) Key() querycache.Key {
	return h.endpoint.CacheKey(h.args)
}

// Status returns the current lifecycle state.
func (h *QueryHandle[A, R]) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Data returns the last successful result; for infinite queries the merge
// of all fetched pages.
func (h *QueryHandle[A, R]) Data() R {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.data
}

// Err returns the error of the last fetch, if it failed.
func (h *QueryHandle[A, R]) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Pages returns a copy of the raw pages of an infinite query.
func (h *QueryHandle[A, R]) Pages() []json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]json.RawMessage(nil), h.pages.Pages...)
}

// PageCount returns how many pages an infinite query holds.
func (h *QueryHandle[A, R]) PageCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages.Pages)
}

// HasNextPage reports whether the last page announced a next cursor.
func (h *QueryHandle[A, R]) HasNextPage() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.pages.NextPageParam()
	return ok
}

// Fetch loads the query through the cache; a fresh cached value is served
// without a request. Infinite queries load their cached pages, or only the
// first page when nothing fresh is cached.
func (h *QueryHandle[A, R]) Fetch(ctx context.Context) (R, error) {
	return h.fetch(ctx, false)
}

// Refetch is Fetch without reading the cache. Infinite queries are reset to
// their first page.
func (h *QueryHandle[A, R]) Refetch(ctx context.Context) (R, error) {
	return h.fetch(ctx, true)
}

func (h *QueryHandle[A, R]) cacheOptions(force bool) []querycache.FetchOption {
	var opts []querycache.FetchOption
	if h.opts.StaleTime > 0 {
		opts = append(opts, querycache.WithStaleTime(h.opts.StaleTime))
	}
	if force {
		opts = append(opts, querycache.WithForce())
	}
	return opts
}

func (h *QueryHandle[A, R]) fetch(ctx context.Context, force bool) (R, error) {
	h.fetchMu.Lock()
	defer h.fetchMu.Unlock()

	e := h.endpoint
	return h.run(ctx, func(ctx context.Context) (R, error) {
		if !e.def.IsInfinite {
			return e.fetchCached(ctx, h.args, h.opts.Extra, h.cacheOptions(force))
		}

		data, err := e.fetchFirstPage(ctx, h.args, h.opts.Extra, h.cacheOptions(force))
		if err != nil {
			var zero R
			return zero, err
		}
		return h.setPages(data)
	})
}

// FetchNextPage loads the page after the last one and returns the merged
// data. It returns ErrNoNextPage when the last page has no next cursor.
func (h *QueryHandle[A, R]) FetchNextPage(ctx context.Context) (R, error) {
	e := h.endpoint
	if !e.def.IsInfinite {
		var zero R
		return zero, ErrNotInfinite
	}

	h.fetchMu.Lock()
	defer h.fetchMu.Unlock()

	h.mu.RLock()
	cursor, ok := h.pages.NextPageParam()
	h.mu.RUnlock()
	if !ok {
		return h.Data(), ErrNoNextPage
	}

	return h.run(ctx, func(ctx context.Context) (R, error) {
		var zero R

		req, err := e.nextPageRequest(h.args, h.opts.Extra, cursor)
		if err != nil {
			return zero, fmt.Errorf("build next page url: %w", err)
		}
		page, err := e.fetchPage(ctx, req)
		if err != nil {
			return zero, err
		}

		h.mu.RLock()
		data := pagination.InfiniteData{
			Pages:      append([]json.RawMessage(nil), h.pages.Pages...),
			PageParams: append([]any(nil), h.pages.PageParams...),
		}
		h.mu.RUnlock()
		data.Append(page, cursor)

		if err := e.rt.cache.SetQueryData(ctx, h.Key(), data); err != nil {
			e.rt.logger.Warn().Err(err).Str("endpoint", e.name).Msg("Failed to cache pages")
		}
		return h.setPages(data)
	})
}

// setPages stores data as the handle's pages and returns their merge.
func (h *QueryHandle[A, R]) setPages(data pagination.InfiniteData) (R, error) {
	merged, err := pagination.MergeAs[R](data.Pages)
	if err != nil {
		return merged, err
	}

	h.mu.Lock()
	h.pages = data
	h.mu.Unlock()
	return merged, nil
}

// run wraps fn in the merged lifecycle and records the outcome.
func (h *QueryHandle[A, R]) run(ctx context.Context, fn func(ctx context.Context) (R, error)) (R, error) {
	h.mu.Lock()
	h.status = StatusLoading
	h.mu.Unlock()

	cb := mergeQueryOptions(h.opts, h.endpoint.notifier())
	return run(ctx, cb, func(ctx context.Context) (R, error) {
		data, err := fn(ctx)

		h.mu.Lock()
		if err != nil {
			h.status = StatusError
			h.err = err
		} else {
			h.status = StatusSuccess
			h.data = data
			h.err = nil
		}
		h.mu.Unlock()

		return data, err
	})
}

package usable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/querycache"
)

// Extra carries request context for server-side fetching: the incoming
// request (whose "token" cookie and headers are forwarded) or explicit
// headers and cookies.
type Extra struct {
	Request *http.Request
	Headers http.Header
	Cookies map[string]string
}

// token resolves the bearer token from the incoming request cookie, then
// from Cookies.
func (e *Extra) token() string {
	if e == nil {
		return ""
	}
	if e.Request != nil {
		if c, err := e.Request.Cookie("token"); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return e.Cookies["token"]
}

// unforwardedHeaders are never copied onto upstream requests: hop-by-hop
// headers, and Accept-Encoding, which would turn off transparent
// decompression of the upstream response.
var unforwardedHeaders = []string{
	"Accept-Encoding",
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// headers returns the headers to forward, from the incoming request first.
func (e *Extra) headers() http.Header {
	if e == nil {
		return nil
	}

	var h http.Header
	switch {
	case e.Request != nil:
		h = e.Request.Header.Clone()
	case e.Headers != nil:
		h = e.Headers.Clone()
	default:
		return nil
	}

	for _, name := range unforwardedHeaders {
		h.Del(name)
	}
	return h
}

// FetchOption customizes a direct query invocation.
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	extra     *Extra
	staleTime time.Duration
}

// WithExtra forwards token and headers from extra.
func WithExtra(extra Extra) FetchOption {
	return func(c *fetchConfig) { c.extra = &extra }
}

// WithStaleTime overrides the cache stale time for this call.
func WithStaleTime(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.staleTime = d }
}

func (c fetchConfig) cacheOptions() []querycache.FetchOption {
	if c.staleTime > 0 {
		return []querycache.FetchOption{querycache.WithStaleTime(c.staleTime)}
	}
	return nil
}

// QueryOptions configures a query handle. Callbacks run after the
// corresponding listener notification has completed.
type QueryOptions[R any] struct {
	OnStart   func()
	OnSuccess func(data R)
	OnError   func(err error)
	OnSettled func(data R, err error)

	// StaleTime overrides the cache stale time; zero keeps the default.
	StaleTime time.Duration

	Extra *Extra
}

// MutationOptions configures a mutation handle. Callbacks run after the
// corresponding listener notification has completed.
type MutationOptions[A, R any] struct {
	OnStart   func(vars A)
	OnSuccess func(data R, vars A)
	OnError   func(err error, vars A)
	OnSettled func(data R, err error, vars A)
}

// callbacks is the merged lifecycle of one invocation. Each step returns the
// error of its side effects (listener actions, cache updates).
type callbacks[R any] struct {
	onStart   func(ctx context.Context) error
	onSuccess func(ctx context.Context, data R) error
	onError   func(ctx context.Context, err error) error
	onSettled func(ctx context.Context, data R, err error) error
}

// notifier publishes lifecycle events of one endpoint.
type notifier struct {
	registry *listener.Registry
	typ      listener.Type
	key      string
}

func (n notifier) notify(ctx context.Context, state listener.State, data any, err error) error {
	if lerr := n.registry.Notify(ctx, listener.Event{
		Type:  n.typ,
		Key:   n.key,
		State: state,
		Data:  data,
		Err:   err,
	}); lerr != nil {
		return fmt.Errorf("%w: %w", ErrListener, lerr)
	}
	return nil
}

// settledState is the event state of the settled notification.
func settledState(err error) listener.State {
	if err != nil {
		return listener.StateError
	}
	return listener.StateSuccess
}

// mergeQueryOptions composes listener notifications with the caller's
// query callbacks; the notification always completes first.
func mergeQueryOptions[R any](opts QueryOptions[R], n notifier) callbacks[R] {
	return callbacks[R]{
		onStart: func(ctx context.Context) error {
			err := n.notify(ctx, listener.StateLoading, nil, nil)
			if opts.OnStart != nil {
				opts.OnStart()
			}
			return err
		},
		onSuccess: func(ctx context.Context, data R) error {
			err := n.notify(ctx, listener.StateSuccess, data, nil)
			if opts.OnSuccess != nil {
				opts.OnSuccess(data)
			}
			return err
		},
		onError: func(ctx context.Context, cause error) error {
			err := n.notify(ctx, listener.StateError, nil, cause)
			if opts.OnError != nil {
				opts.OnError(cause)
			}
			return err
		},
		onSettled: func(ctx context.Context, data R, cause error) error {
			err := n.notify(ctx, settledState(cause), data, cause)
			if opts.OnSettled != nil {
				opts.OnSettled(data, cause)
			}
			return err
		},
	}
}

// mutationEffects are the cache side effects of a successful mutation.
type mutationEffects[A, R any] struct {
	cache       querycache.Cache
	mutationKey querycache.Key
	setCache    func(ctx context.Context, cache querycache.Cache, sc SetCacheContext[A, R]) error
	invalidates []map[string]any
}

func (e mutationEffects[A, R]) apply(ctx context.Context, data R, vars A) error {
	var errs []error

	if e.setCache != nil {
		if err := e.setCache(ctx, e.cache, SetCacheContext[A, R]{
			Data:        data,
			Variables:   vars,
			MutationKey: e.mutationKey,
		}); err != nil {
			errs = append(errs, fmt.Errorf("set cache: %w", err))
		}
	}

	for _, entry := range e.invalidates {
		keys := make([]string, 0, len(entry))
		for key := range entry {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if _, err := e.cache.InvalidateQueries(ctx, querycache.NewKey(key)); err != nil {
				errs = append(errs, fmt.Errorf("invalidate %q: %w", key, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCacheUpdate, errors.Join(errs...))
	}
	return nil
}

// mergeMutationOptions composes listener notifications, cache side effects
// and the caller's mutation callbacks for one Mutate call with vars.
// On success the order is: notification, SetCache, invalidation, caller.
func mergeMutationOptions[A, R any](opts MutationOptions[A, R], n notifier, effects mutationEffects[A, R], vars A) callbacks[R] {
	return callbacks[R]{
		onStart: func(ctx context.Context) error {
			err := n.notify(ctx, listener.StateLoading, nil, nil)
			if opts.OnStart != nil {
				opts.OnStart(vars)
			}
			return err
		},
		onSuccess: func(ctx context.Context, data R) error {
			notifyErr := n.notify(ctx, listener.StateSuccess, data, nil)
			effectErr := effects.apply(ctx, data, vars)
			if opts.OnSuccess != nil {
				opts.OnSuccess(data, vars)
			}
			return errors.Join(notifyErr, effectErr)
		},
		onError: func(ctx context.Context, cause error) error {
			err := n.notify(ctx, listener.StateError, nil, cause)
			if opts.OnError != nil {
				opts.OnError(cause, vars)
			}
			return err
		},
		onSettled: func(ctx context.Context, data R, cause error) error {
			err := n.notify(ctx, settledState(cause), data, cause)
			if opts.OnSettled != nil {
				opts.OnSettled(data, cause, vars)
			}
			return err
		},
	}
}

// run executes fn inside the lifecycle: start, success or error, settled.
// Side-effect errors are joined with the operation's own error.
func run[R any](ctx context.Context, cb callbacks[R], fn func(ctx context.Context) (R, error)) (R, error) {
	var sideErrs []error

	if err := cb.onStart(ctx); err != nil {
		sideErrs = append(sideErrs, err)
	}

	data, err := fn(ctx)
	if err != nil {
		if serr := cb.onError(ctx, err); serr != nil {
			sideErrs = append(sideErrs, serr)
		}
	} else if serr := cb.onSuccess(ctx, data); serr != nil {
		sideErrs = append(sideErrs, serr)
	}

	if serr := cb.onSettled(ctx, data, err); serr != nil {
		sideErrs = append(sideErrs, serr)
	}

	if len(sideErrs) == 0 {
		return data, err
	}
	if err != nil {
		return data, errors.Join(append([]error{err}, sideErrs...)...)
	}
	return data, errors.Join(sideErrs...)
}

package usable

import (
	"context"
	"sync"

	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/querycache"
)

// MutationEndpoint is a compiled mutation.
type MutationEndpoint[A, R any] struct {
	name string
	def  MutationDefinition[A, R]
	rt   *runtime
}

// Name returns the endpoint name.
func (e *MutationEndpoint[A, R]) Name() string { return e.name }

// HookName returns the handle name, e.g. useLoginMutation.
func (e *MutationEndpoint[A, R]) HookName() string { return HookName(e.name, KindMutation) }

// MutationKey returns [name, definition key] without falsy parts.
func (e *MutationEndpoint[A, R]) MutationKey() querycache.Key {
	return querycache.NewKey(e.name, e.def.Key)
}

// Use creates a mutation handle.
func (e *MutationEndpoint[A, R]) Use(opts MutationOptions[A, R]) *MutationHandle[A, R] {
	return &MutationHandle[A, R]{endpoint: e, opts: opts, status: StatusIdle}
}

// MutationHandle executes a mutation and keeps the state of its last call.
type MutationHandle[A, R any] struct {
	endpoint *MutationEndpoint[A, R]
	opts     MutationOptions[A, R]

	mu     sync.RWMutex
	status Status
	data   R
	err    error
}

// Key returns the mutation key.
func (h *MutationHandle[A, R]) Key() querycache.Key {
	return h.endpoint.MutationKey()
}

// Status returns the state of the last call.
func (h *MutationHandle[A, R]) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Data returns the result of the last successful call.
func (h *MutationHandle[A, R]) Data() R {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.data
}

// Err returns the error of the last call, if it failed.
func (h *MutationHandle[A, R]) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Reset returns the handle to idle.
func (h *MutationHandle[A, R]) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero R
	h.status = StatusIdle
	h.data = zero
	h.err = nil
}

// Mutate sends the request for args. On success listeners are notified,
// then SetCache runs, then the queries named by InvalidatesQueries are
// invalidated, then OnSuccess is called.
//
// When the request succeeded but a listener or cache update failed, the
// data is returned together with an error wrapping ErrListener or
// ErrCacheUpdate.
func (h *MutationHandle[A, R]) Mutate(ctx context.Context, args A) (R, error) {
	e := h.endpoint
	rt := e.rt

	h.mu.Lock()
	h.status = StatusLoading
	h.mu.Unlock()

	n := notifier{registry: rt.registry, typ: listener.TypeMutation, key: e.def.Key}
	effects := mutationEffects[A, R]{
		cache:       rt.cache,
		mutationKey: e.MutationKey(),
		setCache:    e.def.SetCache,
		invalidates: e.def.InvalidatesQueries,
	}
	cb := mergeMutationOptions(h.opts, n, effects, args)

	return run(ctx, cb, func(ctx context.Context) (R, error) {
		data, err := h.send(ctx, args)

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

		if err != nil {
			rt.logger.Debug().Err(err).Str("endpoint", e.name).Msg("Mutation failed")
		}
		return data, err
	})
}

func (h *MutationHandle[A, R]) send(ctx context.Context, args A) (R, error) {
	e := h.endpoint

	resp, err := e.rt.baseQuery(ctx, e.def.MutationFn(args))
	if err != nil {
		var zero R
		return zero, err
	}
	return decodeResponse(resp, e.def.TransformResponse)
}

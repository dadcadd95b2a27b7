package usable

import (
	"context"
	"fmt"

	"github.com/Sternrassler/usable-query/pkg/querycache"
	"github.com/Sternrassler/usable-query/pkg/transport"
)

// Kind discriminates endpoint definitions.
type Kind int

const (
	KindQuery Kind = iota + 1
	KindMutation
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// Definition is a compiled-once description of a query or a mutation.
// Build one with Query or Mutation.
type Definition interface {
	Kind() Kind
	// CacheKey is the definition's stable key, used for cache keys and
	// listener events.
	CacheKey() string

	compile(name string, rt *runtime) (any, error)
}

// Endpoints maps endpoint names to definitions.
type Endpoints map[string]Definition

// QueryDefinition describes a read endpoint taking A and producing R.
type QueryDefinition[A, R any] struct {
	Key string

	// QueryFn builds the request for args. Required.
	QueryFn func(args A) transport.Request

	// IsInfinite enables cursor pagination; pages are merged into R.
	IsInfinite bool

	// TransformResponse replaces JSON decoding of the response body.
	TransformResponse func(resp *transport.Response) (R, error)
}

// MutationDefinition describes a write endpoint taking A and producing R.
type MutationDefinition[A, R any] struct {
	Key string

	// MutationFn builds the request for args. Required.
	MutationFn func(args A) transport.Request

	// InvalidatesQueries lists records whose keys name cache key prefixes to
	// invalidate after success, e.g. {"user": true}.
	InvalidatesQueries []map[string]any

	// SetCache writes to the cache directly after success, before
	// invalidation.
	SetCache func(ctx context.Context, cache querycache.Cache, sc SetCacheContext[A, R]) error

	// TransformResponse replaces JSON decoding of the response body.
	TransformResponse func(resp *transport.Response) (R, error)
}

// SetCacheContext is passed to MutationDefinition.SetCache.
type SetCacheContext[A, R any] struct {
	Data        R
	Variables   A
	MutationKey querycache.Key
}

// Query declares a query endpoint.
func Query[A, R any](def QueryDefinition[A, R]) Definition {
	return def
}

// Mutation declares a mutation endpoint.
func Mutation[A, R any](def MutationDefinition[A, R]) Definition {
	return def
}

// Kind implements Definition.
func (d QueryDefinition[A, R]) Kind() Kind { return KindQuery }

// CacheKey implements Definition.
func (d QueryDefinition[A, R]) CacheKey() string { return d.Key }

func (d QueryDefinition[A, R]) compile(name string, rt *runtime) (any, error) {
	if d.QueryFn == nil {
		return nil, fmt.Errorf("%w: query %q has no QueryFn", ErrInvalidDefinition, name)
	}
	return &QueryEndpoint[A, R]{name: name, def: d, rt: rt}, nil
}

// Kind implements Definition.
func (d MutationDefinition[A, R]) Kind() Kind { return KindMutation }

// CacheKey implements Definition.
func (d MutationDefinition[A, R]) CacheKey() string { return d.Key }

func (d MutationDefinition[A, R]) compile(name string, rt *runtime) (any, error) {
	if d.MutationFn == nil {
		return nil, fmt.Errorf("%w: mutation %q has no MutationFn", ErrInvalidDefinition, name)
	}
	return &MutationEndpoint[A, R]{name: name, def: d, rt: rt}, nil
}

func decodeResponse[R any](resp *transport.Response, transform func(*transport.Response) (R, error)) (R, error) {
	if transform != nil {
		return transform(resp)
	}
	return transport.Decode[R](resp)
}

package usable

import "errors"

var (
	// ErrListener wraps failures of listener actions. The operation itself
	// succeeded or failed independently; see the accompanying data/error.
	ErrListener = errors.New("listener action failed")

	// ErrCacheUpdate wraps failures of SetCache or query invalidation after a
	// successful mutation.
	ErrCacheUpdate = errors.New("cache update failed")

	// ErrInvalidDefinition is returned when an endpoint definition cannot be
	// compiled.
	ErrInvalidDefinition = errors.New("invalid endpoint definition")

	// ErrEndpointNotFound is returned when no endpoint has the given name.
	ErrEndpointNotFound = errors.New("endpoint not found")

	// ErrEndpointType is returned when an endpoint is accessed with the wrong
	// kind or type arguments.
	ErrEndpointType = errors.New("endpoint type mismatch")

	// ErrNotInfinite is returned by FetchNextPage on single-page queries.
	ErrNotInfinite = errors.New("query is not infinite")

	// ErrNoNextPage is returned by FetchNextPage when the last page has no
	// next cursor.
	ErrNoNextPage = errors.New("no next page")
)

package querycache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Entry is a cached query result.
type Entry struct {
	// Value is the fetched data. Stores that serialize entries return it as
	// json.RawMessage.
	Value any `json:"value"`

	// UpdatedAt is when the value was fetched or written.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStale reports whether the entry is older than staleTime.
func (e *Entry) IsStale(staleTime time.Duration) bool {
	return time.Since(e.UpdatedAt) >= staleTime
}

// As converts a cached value to T. Serialized values (json.RawMessage or
// []byte) are decoded, also when T is an interface type such as any.
func As[T any](value any) (T, error) {
	var out T
	if value == nil {
		return out, nil
	}

	if !isInterface[T]() {
		if v, ok := value.(T); ok {
			return v, nil
		}
	}

	switch v := value.(type) {
	case json.RawMessage:
		return decodeAs[T](v)
	case []byte:
		return decodeAs[T](v)
	}

	if v, ok := value.(T); ok {
		return v, nil
	}
	return out, fmt.Errorf("%w: cannot convert %T", ErrInvalidEntry, value)
}

func decodeAs[T any](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return out, nil
}

func isInterface[T any]() bool {
	return reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Interface
}

package querycache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"
)

// Key identifies a cached query. Parts are compared in order; a key matches
// a filter when the filter's parts are a prefix of its own.
type Key []any

// NewKey builds a key from parts, dropping falsy ones (nil, empty strings,
// false, numeric zero, nil pointers/maps/slices).
func NewKey(parts ...any) Key {
	key := make(Key, 0, len(parts))
	for _, part := range parts {
		if isFalsy(part) {
			continue
		}
		key = append(key, part)
	}
	return key
}

// String generates a deterministic key string.
// Format: part1:part2:part3, each part query-escaped; non-string parts are
// JSON-encoded first.
//
// Example:
//
//	NewKey("user", "getUser", 7).String() // user:getUser:7
func (k Key) String() string {
	parts := make([]string, 0, len(k))
	for _, part := range k {
		parts = append(parts, encodePart(part))
	}
	return strings.Join(parts, ":")
}

// Matches reports whether the key string s falls under filter.
func Matches(s string, filter Key) bool {
	prefix := filter.String()
	if prefix == "" {
		return true
	}
	return s == prefix || strings.HasPrefix(s, prefix+":")
}

func encodePart(part any) string {
	switch v := part.(type) {
	case string:
		return url.QueryEscape(v)
	case fmt.Stringer:
		return url.QueryEscape(v.String())
	}
	data, err := json.Marshal(part)
	if err != nil {
		return url.QueryEscape(fmt.Sprintf("%v", part))
	}
	if string(data) == "{}" && hasHiddenFields(part) {
		return url.QueryEscape(fmt.Sprintf("%#v", part))
	}
	return url.QueryEscape(string(data))
}

// hasHiddenFields reports whether part is a struct (or pointer to one)
// with fields that JSON encoding left out.
func hasHiddenFields(part any) bool {
	v := reflect.ValueOf(part)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return v.Kind() == reflect.Struct && v.NumField() > 0
}

func isFalsy(part any) bool {
	if part == nil {
		return true
	}
	v := reflect.ValueOf(part)
	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v.IsZero()
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

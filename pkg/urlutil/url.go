// Package urlutil builds request URLs from a base URL and a set of query
// arguments.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
)

// ErrInvalidBaseURL is returned when the base URL is not an absolute URL.
var ErrInvalidBaseURL = errors.New("invalid base URL")

// StringifyURL appends args as query parameters to baseURL.
//
// baseURL must be absolute (scheme and host). Nil and empty-string values are
// skipped, keys are written in sorted order and spaces are encoded as %20.
//
// Example:
//
//	StringifyURL("https://api.example.com", map[string]any{"q": "a b"})
//	// https://api.example.com/?q=a%20b
func StringifyURL(baseURL string, args map[string]any) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = appendQuery(u.RawQuery, args)
	return u.String(), nil
}

// AppendParams is like StringifyURL but also accepts relative URLs such as
// "/users?limit=10".
func AppendParams(rawURL string, args map[string]any) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	u.RawQuery = appendQuery(u.RawQuery, args)
	return u.String(), nil
}

func appendQuery(rawQuery string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for key, value := range args {
		if isEmpty(value) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if rawQuery != "" {
		parts = append(parts, rawQuery)
	}
	for _, key := range keys {
		parts = append(parts, escape(key)+"="+escape(fmt.Sprint(args[key])))
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

package pagination

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CursorQueryKey is the query parameter carrying the next-page cursor.
const CursorQueryKey = "cursor"

// InfiniteData holds the raw pages of an infinite query together with the
// page parameter used to request each of them.
type InfiniteData struct {
	Pages      []json.RawMessage `json:"pages"`
	PageParams []any             `json:"page_params"`
}

// Append adds a fetched page.
func (d *InfiniteData) Append(page json.RawMessage, pageParam any) {
	d.Pages = append(d.Pages, page)
	d.PageParams = append(d.PageParams, pageParam)
}

// NextPageParam extracts the cursor of the page after the last fetched one.
func (d *InfiniteData) NextPageParam() (any, bool) {
	if len(d.Pages) == 0 {
		return nil, false
	}
	last, err := decodeObject(d.Pages[len(d.Pages)-1])
	if err != nil {
		return nil, false
	}
	return NextPageParam(last)
}

// NextPageParam returns pagination.next of page, reporting false when it is
// absent or falsy.
func NextPageParam(page map[string]any) (any, bool) {
	meta, ok := page["pagination"].(map[string]any)
	if !ok {
		return nil, false
	}
	next := meta["next"]
	if isFalsy(next) {
		return nil, false
	}
	return next, true
}

// CursorParam formats a page parameter as a cursor query value.
func CursorParam(pageParam any) string {
	return fmt.Sprintf("next.%v", pageParam)
}

// Merge flattens pages into one object. Array fields are concatenated in
// page order; other fields are overwritten by later pages.
func Merge(pages []map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, page := range pages {
		for key, value := range page {
			items, ok := value.([]any)
			if !ok {
				merged[key] = value
				continue
			}
			prev, _ := merged[key].([]any)
			combined := make([]any, 0, len(prev)+len(items))
			combined = append(combined, prev...)
			merged[key] = append(combined, items...)
		}
	}
	return merged
}

// MergeAs merges raw JSON pages and decodes the result into T.
func MergeAs[T any](pages []json.RawMessage) (T, error) {
	var out T

	objects := make([]map[string]any, 0, len(pages))
	for i, page := range pages {
		obj, err := decodeObject(page)
		if err != nil {
			return out, fmt.Errorf("decode page %d: %w", i, err)
		}
		objects = append(objects, obj)
	}

	data, err := json.Marshal(Merge(objects))
	if err != nil {
		return out, fmt.Errorf("encode merged pages: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode merged pages: %w", err)
	}
	return out, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func isFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case string:
		return val == ""
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case float64:
		return val == 0
	case int:
		return val == 0
	}
	return false
}

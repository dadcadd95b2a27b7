package pagination

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMerge(t *testing.T) {
	pages := []map[string]any{
		{"items": []any{1, 2}, "total": 2},
		{"items": []any{3}, "total": 3},
	}

	got := Merge(pages)
	want := map[string]any{"items": []any{1, 2, 3}, "total": 3}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_DoesNotAliasFirstPage(t *testing.T) {
	first := []any{"a"}
	pages := []map[string]any{
		{"items": first},
		{"items": []any{"b"}},
	}

	Merge(pages)

	if len(first) != 1 {
		t.Errorf("first page items modified: %v", first)
	}
}

func TestMergeAs(t *testing.T) {
	type page struct {
		Items []int `json:"items"`
		Total int   `json:"total"`
	}

	got, err := MergeAs[page]([]json.RawMessage{
		json.RawMessage(`{"items":[1,2],"total":2}`),
		json.RawMessage(`{"items":[3],"total":3}`),
	})
	if err != nil {
		t.Fatalf("MergeAs() error = %v", err)
	}

	want := page{Items: []int{1, 2, 3}, Total: 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeAs() mismatch (-want +got):\n%s", diff)
	}
}

func TestNextPageParam(t *testing.T) {
	tests := []struct {
		name   string
		page   string
		want   string
		wantOK bool
	}{
		{name: "string cursor", page: `{"pagination":{"next":"abc"}}`, want: "abc", wantOK: true},
		{name: "numeric cursor", page: `{"pagination":{"next":2}}`, want: "2", wantOK: true},
		{name: "null cursor", page: `{"pagination":{"next":null}}`},
		{name: "empty cursor", page: `{"pagination":{"next":""}}`},
		{name: "zero cursor", page: `{"pagination":{"next":0}}`},
		{name: "no pagination", page: `{"items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data InfiniteData
			data.Append(json.RawMessage(tt.page), nil)

			got, ok := data.NextPageParam()
			if ok != tt.wantOK {
				t.Fatalf("NextPageParam() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && CursorParam(got) != "next."+tt.want {
				t.Errorf("CursorParam() = %q, want %q", CursorParam(got), "next."+tt.want)
			}
		})
	}
}

func TestNextPageParam_Empty(t *testing.T) {
	var data InfiniteData
	if _, ok := data.NextPageParam(); ok {
		t.Error("NextPageParam() on empty data reported a next page")
	}
}

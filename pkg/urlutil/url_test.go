package urlutil

import (
	"errors"
	"testing"
)

func TestStringifyURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		args map[string]any
		want string
	}{
		{
			name: "skips empty and nil values",
			base: "https://api.example.com",
			args: map[string]any{"q": "a b", "empty": "", "skip": nil},
			want: "https://api.example.com/?q=a%20b",
		},
		{
			name: "no args",
			base: "https://api.example.com/users",
			args: nil,
			want: "https://api.example.com/users",
		},
		{
			name: "sorted keys and non-string values",
			base: "https://api.example.com/items",
			args: map[string]any{"page": 2, "cursor": "next.abc"},
			want: "https://api.example.com/items?cursor=next.abc&page=2",
		},
		{
			name: "keeps existing query",
			base: "https://api.example.com/items?limit=10",
			args: map[string]any{"cursor": "next.2"},
			want: "https://api.example.com/items?limit=10&cursor=next.2",
		},
		{
			name: "zero is not empty",
			base: "https://api.example.com",
			args: map[string]any{"offset": 0},
			want: "https://api.example.com/?offset=0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StringifyURL(tt.base, tt.args)
			if err != nil {
				t.Fatalf("StringifyURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("StringifyURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringifyURL_InvalidBase(t *testing.T) {
	for _, base := range []string{"not a url", "/relative/path", ""} {
		_, err := StringifyURL(base, map[string]any{"q": "x"})
		if !errors.Is(err, ErrInvalidBaseURL) {
			t.Errorf("StringifyURL(%q) error = %v, want ErrInvalidBaseURL", base, err)
		}
	}
}

func TestAppendParams(t *testing.T) {
	got, err := AppendParams("/users?limit=5", map[string]any{"cursor": "next.9", "q": "john doe"})
	if err != nil {
		t.Fatalf("AppendParams() error = %v", err)
	}
	want := "/users?limit=5&cursor=next.9&q=john%20doe"
	if got != want {
		t.Errorf("AppendParams() = %q, want %q", got, want)
	}
}

package transport

import (
	"errors"
	"strings"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		contains []string
	}{
		{
			name: "with cause",
			err: &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			contains: []string{"network", "request failed", "connection refused"},
		},
		{
			name: "with payload",
			err: &APIError{
				StatusCode: 422,
				ErrorClass: ErrorClassClient,
				Message:    "422 Unprocessable Entity",
				Payload:    []byte(`{"field":"email"}`),
			},
			contains: []string{"client", "422", `{"field":"email"}`},
		},
		{
			name: "message only",
			err: &APIError{
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			contains: []string{"server", "503 Service Unavailable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp")
	err := &APIError{ErrorClass: ErrorClassNetwork, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the wrapped cause")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{499, ErrorClassClient},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestAPIError_DecodePayload_Empty(t *testing.T) {
	err := &APIError{StatusCode: 500}
	var v map[string]any
	if err.DecodePayload(&v) == nil {
		t.Error("DecodePayload() with empty payload returned nil error")
	}
}

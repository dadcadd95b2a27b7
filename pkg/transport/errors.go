package transport

import (
	"encoding/json"
	"fmt"
)

// ErrorClass represents a classification of transport errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents responses that could not be decoded.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is returned by the HTTP base query when a request fails.
//
// Payload holds the server's JSON error body when one was sent; callers
// should prefer it over Message.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Payload    json.RawMessage
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	case len(e.Payload) > 0:
		return fmt.Sprintf("%s error (status %d): %s",
			e.ErrorClass, e.StatusCode, string(e.Payload))
	default:
		return fmt.Sprintf("%s error (status %d): %s",
			e.ErrorClass, e.StatusCode, e.Message)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// DecodePayload unmarshals the structured error body into v.
func (e *APIError) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("no error payload")
	}
	return json.Unmarshal(e.Payload, v)
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

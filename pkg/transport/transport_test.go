package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/usable-query/internal/testutil"
	"github.com/rs/zerolog"
)

func newTestBaseQuery(mock *testutil.MockAPI, mutate func(*Config)) BaseQueryFunc {
	logger := zerolog.Nop()
	cfg := Config{BaseURL: mock.URL(), Logger: &logger}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHTTPBaseQuery(cfg)
}

func TestHTTPBaseQuery_Get(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/users/7", testutil.NewJSONResponse(`{"id": 7, "name": "Ann"}`))

	baseQuery := newTestBaseQuery(mock, nil)

	resp, err := baseQuery(context.Background(), Request{URL: "/users/7", Method: http.MethodGet})
	if err != nil {
		t.Fatalf("baseQuery() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}

	user, err := Decode[struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}](resp)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if user.ID != 7 || user.Name != "Ann" {
		t.Errorf("Decode() = %+v", user)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if got := reqs[0].Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestHTTPBaseQuery_BodyParamsAndToken(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("POST /auth/login", testutil.NewJSONResponse(`{"token": "t"}`))

	baseQuery := newTestBaseQuery(mock, nil)

	_, err := baseQuery(context.Background(), Request{
		URL:     "/auth/login",
		Method:  http.MethodPost,
		Data:    map[string]string{"ignored": "yes"},
		Body:    map[string]string{"username": "ann"},
		Params:  map[string]any{"remember": true, "empty": ""},
		Headers: http.Header{"X-Trace": []string{"abc"}},
		Token:   "secret",
	})
	if err != nil {
		t.Fatalf("baseQuery() error = %v", err)
	}

	req := mock.Requests()[0]
	if string(req.Body) != `{"username":"ann"}` {
		t.Errorf("body = %s, want Body to win over Data", req.Body)
	}
	if req.Query != "remember=true" {
		t.Errorf("query = %q, want remember=true", req.Query)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
	if got := req.Header.Get("X-Trace"); got != "abc" {
		t.Errorf("X-Trace = %q, want abc", got)
	}
}

func TestHTTPBaseQuery_ExplicitAuthorizationWins(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/me", testutil.NewJSONResponse(`{}`))

	baseQuery := newTestBaseQuery(mock, nil)
	_, err := baseQuery(context.Background(), Request{
		URL:     "/me",
		Headers: http.Header{"Authorization": []string{"Basic xyz"}},
		Token:   "ignored",
	})
	if err != nil {
		t.Fatalf("baseQuery() error = %v", err)
	}

	if got := mock.Requests()[0].Header.Get("Authorization"); got != "Basic xyz" {
		t.Errorf("Authorization = %q, want Basic xyz", got)
	}
}

func TestHTTPBaseQuery_Inject(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/me", testutil.NewJSONResponse(`{}`))

	baseQuery := newTestBaseQuery(mock, func(cfg *Config) {
		cfg.Inject = func(req Request) Request {
			if req.Headers == nil {
				req.Headers = http.Header{}
			}
			req.Headers.Set("X-Api-Key", "k-"+req.Token)
			return req
		}
	})

	original := Request{URL: "/me", Token: "abc"}
	if _, err := baseQuery(context.Background(), original); err != nil {
		t.Fatalf("baseQuery() error = %v", err)
	}

	if got := mock.Requests()[0].Header.Get("X-Api-Key"); got != "k-abc" {
		t.Errorf("X-Api-Key = %q, want k-abc", got)
	}
	if original.Headers != nil {
		t.Error("Inject modified the caller's request")
	}
}

func TestHTTPBaseQuery_TransformResponse(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/wrapped", testutil.NewJSONResponse(`{"data": {"id": 1}}`))

	baseQuery := newTestBaseQuery(mock, func(cfg *Config) {
		cfg.TransformResponse = func(resp *Response) (*Response, error) {
			var envelope struct {
				Data json.RawMessage `json:"data"`
			}
			if err := json.Unmarshal(resp.Data, &envelope); err != nil {
				return nil, err
			}
			resp.Data = envelope.Data
			return resp, nil
		}
	})

	resp, err := baseQuery(context.Background(), Request{URL: "/wrapped"})
	if err != nil {
		t.Fatalf("baseQuery() error = %v", err)
	}
	if string(resp.Data) != `{"id": 1}` {
		t.Errorf("Data = %s, want unwrapped envelope", resp.Data)
	}
}

func TestHTTPBaseQuery_StructuredError(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/users/404", testutil.NewErrorResponse(http.StatusNotFound, `{"message": "no such user"}`))

	baseQuery := newTestBaseQuery(mock, nil)
	_, err := baseQuery(context.Background(), Request{URL: "/users/404"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.ErrorClass != ErrorClassClient {
		t.Errorf("APIError = %+v", apiErr)
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := apiErr.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Message != "no such user" {
		t.Errorf("payload message = %q", payload.Message)
	}
}

func TestHTTPBaseQuery_ServerErrorWithoutJSON(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	mock.SetResponse("/boom", testutil.MockResponse{StatusCode: http.StatusBadGateway, Body: "upstream down"})

	baseQuery := newTestBaseQuery(mock, nil)
	_, err := baseQuery(context.Background(), Request{URL: "/boom"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassServer {
		t.Errorf("ErrorClass = %s, want server", apiErr.ErrorClass)
	}
	if apiErr.Payload != nil {
		t.Errorf("Payload = %s, want nil for non-JSON body", apiErr.Payload)
	}
	if !strings.Contains(apiErr.Error(), "502") {
		t.Errorf("Error() = %q, want status code", apiErr.Error())
	}
}

func TestHTTPBaseQuery_NetworkError(t *testing.T) {
	mock := testutil.NewMockAPI()
	url := mock.URL()
	mock.Close()

	logger := zerolog.Nop()
	baseQuery := NewHTTPBaseQuery(Config{BaseURL: url, Logger: &logger})
	_, err := baseQuery(context.Background(), Request{URL: "/anything"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassNetwork || apiErr.Err == nil {
		t.Errorf("APIError = %+v, want network error with cause", apiErr)
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode[map[string]any](&Response{StatusCode: http.StatusNoContent})
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got != nil {
		t.Errorf("Decode() = %v, want nil map", got)
	}
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode[int](&Response{StatusCode: http.StatusOK, Data: []byte("not json")})

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorClass != ErrorClassDecode {
		t.Errorf("Decode() error = %v, want decode APIError", err)
	}
}

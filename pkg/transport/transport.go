// Package transport provides the HTTP base query used by compiled endpoints.
//
// A base query turns a Request descriptor into a Response or an error. The
// default implementation is built with NewHTTPBaseQuery; any function with
// the BaseQueryFunc signature can replace it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/usable-query/pkg/logging"
	"github.com/Sternrassler/usable-query/pkg/urlutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usable_http_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usable_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usable_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// Request describes one HTTP call relative to the base URL.
type Request struct {
	URL    string
	Method string

	// Body takes precedence over Data when both are set.
	Data any
	Body any

	Params  map[string]any
	Headers http.Header

	// Token is sent as a bearer token unless Headers already carries
	// an Authorization value.
	Token string
}

// Clone returns a copy of r with its own header and params maps.
func (r Request) Clone() Request {
	out := r
	if r.Headers != nil {
		out.Headers = r.Headers.Clone()
	}
	if r.Params != nil {
		out.Params = make(map[string]any, len(r.Params))
		for k, v := range r.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Response is the raw result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       []byte
}

// Decode unmarshals the response body into T. An empty body yields the zero
// value.
func Decode[T any](resp *Response) (T, error) {
	var out T
	if resp == nil || len(bytes.TrimSpace(resp.Data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode response body",
			Err:        err,
		}
	}
	return out, nil
}

// BaseQueryFunc executes a request descriptor.
type BaseQueryFunc func(ctx context.Context, req Request) (*Response, error)

// InjectFunc rewrites an outgoing request descriptor, e.g. to add an auth
// header.
type InjectFunc func(req Request) Request

// TransformFunc maps a raw response before it reaches the endpoint.
type TransformFunc func(resp *Response) (*Response, error)

// Config holds the HTTP base query configuration.
type Config struct {
	// BaseURL is prepended to every request URL.
	BaseURL string

	Inject            InjectFunc
	TransformResponse TransformFunc

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	Logger *zerolog.Logger
}

// NewHTTPBaseQuery creates the default base query backed by net/http.
func NewHTTPBaseQuery(cfg Config) BaseQueryFunc {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := logging.Scoped(cfg.Logger, logging.ComponentTransport)

	return func(ctx context.Context, req Request) (*Response, error) {
		if cfg.Inject != nil {
			req = cfg.Inject(req.Clone())
		}

		method := req.Method
		if method == "" {
			method = http.MethodGet
		}

		startTime := time.Now()
		defer func() {
			httpRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
		}()

		httpReq, err := buildHTTPRequest(ctx, cfg.BaseURL, method, req)
		if err != nil {
			return nil, err
		}

		logger.Debug().
			Str("method", method).
			Str("url", httpReq.URL.String()).
			Msg("Executing request")

		httpResp, err := httpClient.Do(httpReq)
		if err != nil {
			httpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			httpRequestsTotal.WithLabelValues(method, "network_error").Inc()
			logger.Error().Err(err).Str("url", httpReq.URL.String()).Msg("HTTP request failed")
			return nil, &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        err,
			}
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			httpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return nil, &APIError{
				StatusCode: httpResp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        err,
			}
		}

		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

		if httpResp.StatusCode >= 400 {
			class := classifyStatus(httpResp.StatusCode)
			httpErrorsTotal.WithLabelValues(string(class)).Inc()

			logger.Warn().
				Str("url", httpReq.URL.String()).
				Int("status", httpResp.StatusCode).
				Str("error_class", string(class)).
				Msg("Request error")

			apiErr := &APIError{
				StatusCode: httpResp.StatusCode,
				ErrorClass: class,
				Message:    httpResp.Status,
			}
			if json.Valid(body) {
				apiErr.Payload = json.RawMessage(body)
			}
			return nil, apiErr
		}

		resp := &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Data:       body,
		}

		if cfg.TransformResponse != nil {
			return cfg.TransformResponse(resp)
		}
		return resp, nil
	}
}

func buildHTTPRequest(ctx context.Context, baseURL, method string, req Request) (*http.Request, error) {
	target := baseURL + req.URL
	if len(req.Params) > 0 {
		var err error
		target, err = urlutil.AppendParams(target, req.Params)
		if err != nil {
			return nil, fmt.Errorf("build url: %w", err)
		}
	}

	payload := req.Body
	if payload == nil {
		payload = req.Data
	}

	var body io.Reader
	if payload != nil {
		data, err := encodeBody(payload)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for key, values := range req.Headers {
		httpReq.Header.Del(key)
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if req.Token != "" && httpReq.Header.Get("Authorization") == "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	return httpReq, nil
}

func encodeBody(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	case io.Reader:
		return nil, errors.New("streaming bodies are not supported")
	default:
		return json.Marshal(v)
	}
}

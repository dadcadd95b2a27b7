// Command usable-proxy is a caching HTTP proxy built on a compiled API:
// GET requests are served through a cached query, every other method is
// forwarded as a mutation that invalidates the cached responses.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/logging"
	"github.com/Sternrassler/usable-query/pkg/metrics"
	"github.com/Sternrassler/usable-query/pkg/querycache"
	"github.com/Sternrassler/usable-query/pkg/transport"
	"github.com/Sternrassler/usable-query/pkg/usable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	proxyPrefix  = "/api"
	getEndpoint  = "proxyGet"
	sendEndpoint = "proxySend"
	cacheKey     = "proxy"
)

// upstreamResponse is the cached form of an upstream reply.
type upstreamResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// proxyTarget is the argument of the cached GET query. Principal separates
// the cache entries of different callers.
type proxyTarget struct {
	Target    string `json:"target"`
	Principal string `json:"principal,omitempty"`
}

// forward is the argument of the send mutation.
type forward struct {
	Method string
	Target string
	Body   []byte
}

func main() {
	logging.Setup(logging.ConfigFromEnv(os.Getenv))
	logger := logging.NewLogger(logging.ComponentProxy)

	redisURL := getEnv("REDIS_URL", "")
	port := getEnv("PORT", "8080")
	upstream := getEnv("UPSTREAM_URL", "http://localhost:9000")
	staleTime, err := time.ParseDuration(getEnv("STALE_TIME", "30s"))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid STALE_TIME")
	}

	ctx := context.Background()

	var (
		store       querycache.Store
		redisClient *redis.Client
	)
	if redisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis", redisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		store = querycache.NewRedisStore(redisClient, querycache.DefaultRedisConfig())
		logger.Info().Str("redis", redisURL).Msg("Using Redis store")
	} else {
		memStore, err := querycache.NewMemoryStore(querycache.DefaultMemoryConfig())
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create memory store")
		}
		store = memStore
		logger.Info().Msg("Using in-memory store")
	}

	cache := querycache.NewClient(store, querycache.Config{StaleTime: staleTime, Logger: &logger})

	p, err := newProxy(usable.DefaultConfig(cache, upstream), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build proxy")
	}

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(p, redisClient),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("upstream", upstream).Msg("Starting proxy server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
	logger.Info().Msg("Proxy stopped")
}

func newMux(p *proxy, redisClient *redis.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(redisClient))
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle(proxyPrefix+"/", p)
	return mux
}

// proxy forwards requests below proxyPrefix through the compiled API.
type proxy struct {
	api    *usable.API
	get    *usable.QueryEndpoint[proxyTarget, upstreamResponse]
	send   *usable.MutationEndpoint[forward, upstreamResponse]
	logger zerolog.Logger
}

func newProxy(cfg usable.Config, logger zerolog.Logger) (*proxy, error) {
	cfg.Logger = &logger

	api, err := usable.BuildAPI(cfg, usable.Endpoints{
		getEndpoint: usable.Query(usable.QueryDefinition[proxyTarget, upstreamResponse]{
			Key: cacheKey,
			QueryFn: func(t proxyTarget) transport.Request {
				return transport.Request{URL: t.Target, Method: http.MethodGet}
			},
			TransformResponse: toUpstreamResponse,
		}),
		sendEndpoint: usable.Mutation(usable.MutationDefinition[forward, upstreamResponse]{
			Key: sendEndpoint,
			MutationFn: func(f forward) transport.Request {
				req := transport.Request{URL: f.Target, Method: f.Method}
				if len(f.Body) > 0 {
					req.Body = f.Body
				}
				return req
			},
			InvalidatesQueries: []map[string]any{{cacheKey: true}},
			TransformResponse:  toUpstreamResponse,
		}),
	})
	if err != nil {
		return nil, err
	}

	get, err := usable.QueryEndpointOf[proxyTarget, upstreamResponse](api, getEndpoint)
	if err != nil {
		return nil, err
	}
	send, err := usable.MutationEndpointOf[forward, upstreamResponse](api, sendEndpoint)
	if err != nil {
		return nil, err
	}

	// Failed writes never reach success, so this subscription stays.
	api.StartListening(&listener.Subscription{
		Matches: listener.MatchType(listener.TypeMutation, listener.StateError),
		PerformAction: func(ctx context.Context, e listener.Event) error {
			logger.Warn().Err(e.Err).Str("key", e.Key).Msg("Upstream write failed")
			return nil
		},
	})

	return &proxy{api: api, get: get, send: send, logger: logger}, nil
}

func toUpstreamResponse(resp *transport.Response) (upstreamResponse, error) {
	return upstreamResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        resp.Data,
	}, nil
}

func (p *proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.URL.Path, proxyPrefix)
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var (
		resp upstreamResponse
		err  error
	)
	if r.Method == http.MethodGet {
		args := proxyTarget{Target: target, Principal: principalOf(r)}
		resp, err = p.get.Fetch(ctx, args, usable.WithExtra(usable.Extra{Request: r}))
	} else {
		body, readErr := io.ReadAll(r.Body)
		if readErr != nil {
			http.Error(w, "read request body", http.StatusBadRequest)
			return
		}
		resp, err = p.send.Use(usable.MutationOptions[forward, upstreamResponse]{}).
			Mutate(ctx, forward{Method: r.Method, Target: target, Body: body})
	}

	if err != nil && !errors.Is(err, usable.ErrListener) && !errors.Is(err, usable.ErrCacheUpdate) {
		writeUpstreamError(w, err)
		return
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("target", target).Msg("Side effect failed")
	}

	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

// principalOf identifies the caller by the credentials forwarded upstream:
// the cookies (including the token cookie) and the Authorization header.
// Anonymous requests share the empty principal.
func principalOf(r *http.Request) string {
	cookie := r.Header.Get("Cookie")
	auth := r.Header.Get("Authorization")
	if cookie == "" && auth == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(cookie + "\n" + auth))
	return hex.EncodeToString(sum[:])
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *transport.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode == 0 {
		http.Error(w, fmt.Sprintf("upstream request failed: %v", err), http.StatusBadGateway)
		return
	}

	if len(apiErr.Payload) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(apiErr.StatusCode)
		w.Write(apiErr.Payload)
		return
	}
	http.Error(w, apiErr.Message, apiErr.StatusCode)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(redisClient *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

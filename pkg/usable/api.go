// Package usable compiles declarative endpoint definitions into callable
// query and mutation operations bound to a shared query cache, an HTTP
// base query and a listener registry.
//
// # Basic Usage
//
//	store, _ := querycache.NewMemoryStore(querycache.DefaultMemoryConfig())
//	cache := querycache.NewClient(store, querycache.DefaultConfig())
//
//	api, err := usable.BuildAPI(usable.DefaultConfig(cache, "https://api.example.com"), usable.Endpoints{
//		"getUser": usable.Query(usable.QueryDefinition[int, User]{
//			Key: "user",
//			QueryFn: func(id int) transport.Request {
//				return transport.Request{URL: fmt.Sprintf("/users/%d", id), Method: http.MethodGet}
//			},
//		}),
//		"updateUser": usable.Mutation(usable.MutationDefinition[User, User]{
//			Key: "updateUser",
//			MutationFn: func(u User) transport.Request {
//				return transport.Request{URL: fmt.Sprintf("/users/%d", u.ID), Method: http.MethodPut, Body: u}
//			},
//			InvalidatesQueries: []map[string]any{{"user": true}},
//		}),
//	})
//
//	getUser, _ := usable.QueryEndpointOf[int, User](api, "getUser")
//	user, err := getUser.Fetch(ctx, 7)
//
//	handle := getUser.Use(7, usable.QueryOptions[User]{
//		OnSuccess: func(u User) { log.Info().Str("name", u.Name).Msg("loaded") },
//	})
//	user, err = handle.Fetch(ctx)
//
// # Listeners
//
//	api.StartListening(&listener.Subscription{
//		Matches: listener.MatchKey("updateUser"),
//		PerformAction: func(ctx context.Context, e listener.Event) error {
//			log.Info().Str("state", string(e.State)).Msg("updateUser")
//			return nil
//		},
//	})
//
// A subscription is removed after its action succeeds for a success event.
package usable

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/Sternrassler/usable-query/pkg/listener"
	"github.com/Sternrassler/usable-query/pkg/logging"
	"github.com/Sternrassler/usable-query/pkg/querycache"
	"github.com/Sternrassler/usable-query/pkg/transport"
	"github.com/Sternrassler/usable-query/pkg/urlutil"
	"github.com/rs/zerolog"
)

// Config holds the API configuration.
type Config struct {
	// BaseURL is prepended to every request URL of the built-in transport.
	BaseURL string

	// Cache is the query cache shared by every endpoint (REQUIRED).
	Cache querycache.Cache

	// Inject rewrites outgoing requests, e.g. to add an auth header.
	Inject transport.InjectFunc

	// TransformResponse maps raw responses before endpoints decode them.
	TransformResponse transport.TransformFunc

	// BaseQuery replaces the built-in HTTP transport entirely. BaseURL,
	// Inject, TransformResponse and HTTPClient are then unused.
	BaseQuery transport.BaseQueryFunc

	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// DefaultConfig returns a configuration using the built-in transport.
func DefaultConfig(cache querycache.Cache, baseURL string) Config {
	return Config{
		BaseURL: baseURL,
		Cache:   cache,
	}
}

// runtime is shared by every endpoint of one API.
type runtime struct {
	cache     querycache.Cache
	baseQuery transport.BaseQueryFunc
	registry  *listener.Registry
	logger    zerolog.Logger
}

// Builder binds a transport and a cache; CreateAPI compiles endpoints
// against them.
type Builder struct {
	cfg       Config
	baseQuery transport.BaseQueryFunc
	logger    zerolog.Logger
}

// New validates cfg and creates a builder.
func New(cfg Config) (*Builder, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("query cache is required")
	}

	logger := logging.Scoped(cfg.Logger, logging.ComponentUsable)

	baseQuery := cfg.BaseQuery
	if baseQuery == nil {
		if cfg.BaseURL != "" {
			if _, err := urlutil.StringifyURL(cfg.BaseURL, nil); err != nil {
				return nil, fmt.Errorf("base url: %w", err)
			}
		}
		baseQuery = transport.NewHTTPBaseQuery(transport.Config{
			BaseURL:           cfg.BaseURL,
			Inject:            cfg.Inject,
			TransformResponse: cfg.TransformResponse,
			HTTPClient:        cfg.HTTPClient,
			Logger:            &logger,
		})
	}

	return &Builder{cfg: cfg, baseQuery: baseQuery, logger: logger}, nil
}

// CreateAPI compiles endpoints into an API with its own listener registry.
func (b *Builder) CreateAPI(endpoints Endpoints) (*API, error) {
	rt := &runtime{
		cache:     b.cfg.Cache,
		baseQuery: b.baseQuery,
		registry:  listener.NewRegistry(logging.Scoped(b.cfg.Logger, logging.ComponentListener)),
		logger:    b.logger,
	}

	api := &API{
		endpoints: make(map[string]*Endpoint, len(endpoints)),
		hooks:     make(map[string]*Endpoint, len(endpoints)),
		rt:        rt,
	}

	names := make([]string, 0, len(endpoints))
	for name := range endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := endpoints[name]
		if name == "" {
			return nil, fmt.Errorf("%w: empty endpoint name", ErrInvalidDefinition)
		}
		if def == nil {
			return nil, fmt.Errorf("%w: endpoint %q is nil", ErrInvalidDefinition, name)
		}

		impl, err := def.compile(name, rt)
		if err != nil {
			return nil, err
		}

		ep := &Endpoint{
			Name:     name,
			HookName: HookName(name, def.Kind()),
			Kind:     def.Kind(),
			Key:      def.CacheKey(),
			impl:     impl,
		}
		if other, exists := api.hooks[ep.HookName]; exists {
			return nil, fmt.Errorf("%w: endpoints %q and %q share hook name %s",
				ErrInvalidDefinition, other.Name, name, ep.HookName)
		}

		api.endpoints[name] = ep
		api.hooks[ep.HookName] = ep
	}

	b.logger.Debug().Int("endpoints", len(api.endpoints)).Msg("API compiled")
	return api, nil
}

// BuildAPI is New followed by CreateAPI.
func BuildAPI(cfg Config, endpoints Endpoints) (*API, error) {
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return b.CreateAPI(endpoints)
}

// Endpoint describes one compiled endpoint.
type Endpoint struct {
	Name     string
	HookName string
	Kind     Kind
	Key      string

	impl any
}

// API is a compiled set of endpoints sharing one listener registry.
type API struct {
	endpoints map[string]*Endpoint
	hooks     map[string]*Endpoint
	rt        *runtime
}

// StartListening registers a subscription for lifecycle events of every
// endpoint of this API.
func (a *API) StartListening(s *listener.Subscription) {
	a.rt.registry.StartListening(s)
}

// StopListening removes a subscription.
func (a *API) StopListening(s *listener.Subscription) {
	a.rt.registry.StopListening(s)
}

// Cache returns the shared query cache.
func (a *API) Cache() querycache.Cache {
	return a.rt.cache
}

// Endpoint looks an endpoint up by name.
func (a *API) Endpoint(name string) (*Endpoint, bool) {
	ep, ok := a.endpoints[name]
	return ep, ok
}

// Hook looks an endpoint up by hook name, e.g. useGetUserQuery.
func (a *API) Hook(hookName string) (*Endpoint, bool) {
	ep, ok := a.hooks[hookName]
	return ep, ok
}

// Endpoints returns all endpoints sorted by name.
func (a *API) Endpoints() []*Endpoint {
	out := make([]*Endpoint, 0, len(a.endpoints))
	for _, ep := range a.endpoints {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryEndpointOf returns the typed query endpoint called name.
func QueryEndpointOf[A, R any](api *API, name string) (*QueryEndpoint[A, R], error) {
	ep, ok := api.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
	}
	q, ok := ep.impl.(*QueryEndpoint[A, R])
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s with different types", ErrEndpointType, name, ep.Kind)
	}
	return q, nil
}

// MutationEndpointOf returns the typed mutation endpoint called name.
func MutationEndpointOf[A, R any](api *API, name string) (*MutationEndpoint[A, R], error) {
	ep, ok := api.endpoints[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEndpointNotFound, name)
	}
	m, ok := ep.impl.(*MutationEndpoint[A, R])
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s with different types", ErrEndpointType, name, ep.Kind)
	}
	return m, nil
}

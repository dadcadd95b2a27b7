package usable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Sternrassler/usable-query/internal/testutil"
	"github.com/Sternrassler/usable-query/pkg/transport"
	"github.com/Sternrassler/usable-query/pkg/urlutil"
	"github.com/google/go-cmp/cmp"
)

func getUserDefinition() Definition {
	return Query(QueryDefinition[int, User]{
		Key: "user",
		QueryFn: func(id int) transport.Request {
			return transport.Request{URL: fmt.Sprintf("/users/%d", id), Method: http.MethodGet}
		},
	})
}

func updateUserDefinition() Definition {
	return Mutation(MutationDefinition[User, User]{
		Key: "updateUser",
		MutationFn: func(u User) transport.Request {
			return transport.Request{URL: fmt.Sprintf("/users/%d", u.ID), Method: http.MethodPut, Body: u}
		},
		InvalidatesQueries: []map[string]any{{"user": true}},
	})
}

func TestNew_Validation(t *testing.T) {
	cache := newTestCache(t)
	noop := func(ctx context.Context, r transport.Request) (*transport.Response, error) { return nil, nil }

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		target  error
	}{
		{name: "valid", cfg: DefaultConfig(cache, "https://api.example.com")},
		{name: "empty base url", cfg: DefaultConfig(cache, "")},
		{name: "missing cache", cfg: Config{BaseURL: "https://api.example.com"}, wantErr: true},
		{name: "relative base url", cfg: DefaultConfig(cache, "/api"), wantErr: true, target: urlutil.ErrInvalidBaseURL},
		{name: "not a url", cfg: DefaultConfig(cache, "not a url"), wantErr: true, target: urlutil.ErrInvalidBaseURL},
		{name: "custom base query skips url check", cfg: Config{BaseURL: "not a url", Cache: cache, BaseQuery: noop}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("New() error = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestCreateAPI_RejectsInvalidEndpoints(t *testing.T) {
	cache := newTestCache(t)
	b, err := New(DefaultConfig(cache, "https://api.example.com"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name      string
		endpoints Endpoints
	}{
		{"nil definition", Endpoints{"getUser": nil}},
		{"empty name", Endpoints{"": getUserDefinition()}},
		{"missing query fn", Endpoints{"getUser": Query(QueryDefinition[int, User]{Key: "user"})}},
		{"missing mutation fn", Endpoints{"login": Mutation(MutationDefinition[User, User]{})}},
		{"duplicate hook name", Endpoints{"getUser": getUserDefinition(), "GetUser": getUserDefinition()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.CreateAPI(tt.endpoints)
			if !errors.Is(err, ErrInvalidDefinition) {
				t.Errorf("CreateAPI() error = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestAPI_Lookup(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	api := newTestAPI(t, mock, newTestCache(t), Endpoints{
		"getUser":    getUserDefinition(),
		"updateUser": updateUserDefinition(),
	})

	var names []string
	for _, ep := range api.Endpoints() {
		names = append(names, ep.Name+"="+ep.HookName+"/"+ep.Kind.String())
	}
	want := []string{
		"getUser=useGetUserQuery/query",
		"updateUser=useUpdateUserMutation/mutation",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("Endpoints() mismatch (-want +got):\n%s", diff)
	}

	ep, ok := api.Hook("useUpdateUserMutation")
	if !ok || ep.Name != "updateUser" || ep.Key != "updateUser" {
		t.Errorf("Hook(useUpdateUserMutation) = %+v, %v", ep, ok)
	}
	if _, ok := api.Endpoint("missing"); ok {
		t.Error("Endpoint(missing) found")
	}

	if _, err := QueryEndpointOf[int, User](api, "getUser"); err != nil {
		t.Errorf("QueryEndpointOf(getUser) error = %v", err)
	}
	if _, err := QueryEndpointOf[string, User](api, "getUser"); !errors.Is(err, ErrEndpointType) {
		t.Errorf("QueryEndpointOf with wrong args error = %v, want ErrEndpointType", err)
	}
	if _, err := QueryEndpointOf[User, User](api, "updateUser"); !errors.Is(err, ErrEndpointType) {
		t.Errorf("QueryEndpointOf(mutation) error = %v, want ErrEndpointType", err)
	}
	if _, err := MutationEndpointOf[User, User](api, "missing"); !errors.Is(err, ErrEndpointNotFound) {
		t.Errorf("MutationEndpointOf(missing) error = %v, want ErrEndpointNotFound", err)
	}

	m, err := MutationEndpointOf[User, User](api, "updateUser")
	if err != nil {
		t.Fatalf("MutationEndpointOf(updateUser) error = %v", err)
	}
	if got := m.MutationKey().String(); got != "updateUser:updateUser" {
		t.Errorf("MutationKey() = %q", got)
	}
}

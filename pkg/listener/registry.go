// Package listener implements an in-process registry of lifecycle
// subscriptions shared by every endpoint of one compiled API.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for listener notifications.
var (
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usable_listener_notifications_total",
		Help: "Total lifecycle notifications by operation type and state",
	}, []string{"type", "state"})

	actionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "usable_listener_action_errors_total",
		Help: "Total failed listener actions by operation type",
	}, []string{"type"})
)

// Type is the kind of operation that produced an event.
type Type string

const (
	TypeQuery    Type = "query"
	TypeMutation Type = "mutation"
)

// State is the lifecycle state carried by an event.
type State string

const (
	StateLoading State = "loading"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Event is a single lifecycle notification.
type Event struct {
	Type  Type
	Key   string
	State State
	Data  any
	Err   error
}

// Subscription pairs a predicate with an action. Subscriptions are compared
// by pointer identity.
type Subscription struct {
	Matches       func(Event) bool
	PerformAction func(ctx context.Context, e Event) error
}

// Registry holds an ordered list of subscriptions.
type Registry struct {
	mu     sync.Mutex
	subs   []*Subscription
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{logger: logger}
}

// StartListening appends s. Adding the same subscription twice registers it
// twice.
func (r *Registry) StartListening(s *Subscription) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.subs = append(r.subs, s)
	r.mu.Unlock()
}

// StopListening removes the first occurrence of s. It is a no-op when s is
// not registered.
func (r *Registry) StopListening(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subs {
		if sub == s {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Notify runs PerformAction of every subscription matching e concurrently
// and waits for all of them. A subscription whose action succeeds for a
// success event is removed afterwards.
//
// Failed actions do not stop the others; their errors are joined and
// returned.
func (r *Registry) Notify(ctx context.Context, e Event) error {
	r.mu.Lock()
	snapshot := make([]*Subscription, len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()

	notificationsTotal.WithLabelValues(string(e.Type), string(e.State)).Inc()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sub := range snapshot {
		if sub.Matches == nil || !sub.Matches(e) {
			continue
		}

		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()

			if err := r.perform(ctx, sub, e); err != nil {
				actionErrorsTotal.WithLabelValues(string(e.Type)).Inc()
				r.logger.Warn().
					Err(err).
					Str("type", string(e.Type)).
					Str("key", e.Key).
					Str("state", string(e.State)).
					Msg("Listener action failed")

				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}

			if e.State == StateSuccess {
				r.StopListening(sub)
			}
		}(sub)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// perform calls the action, converting a panic into an error.
func (r *Registry) perform(ctx context.Context, sub *Subscription, e Event) (err error) {
	if sub.PerformAction == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return sub.PerformAction(ctx, e)
}

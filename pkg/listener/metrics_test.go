package listener

import (
	"context"
	"errors"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestNotify_Metrics(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	r.StartListening(&Subscription{
		Matches: MatchKey("metrics-test"),
		PerformAction: func(ctx context.Context, e Event) error {
			return errors.New("fail")
		},
	})

	notified := notificationsTotal.WithLabelValues(string(TypeMutation), string(StateError))
	failed := actionErrorsTotal.WithLabelValues(string(TypeMutation))
	beforeNotified := promtest.ToFloat64(notified)
	beforeFailed := promtest.ToFloat64(failed)

	_ = r.Notify(context.Background(), Event{Type: TypeMutation, Key: "metrics-test", State: StateError})
	_ = r.Notify(context.Background(), Event{Type: TypeMutation, Key: "other", State: StateError})

	if got := promtest.ToFloat64(notified) - beforeNotified; got != 2 {
		t.Errorf("notifications delta = %v, want 2", got)
	}
	if got := promtest.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("action errors delta = %v, want 1", got)
	}
}

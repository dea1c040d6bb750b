package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"dailybot/internal/eventbus"
	"dailybot/internal/reminder/store"
	logx "dailybot/pkg/logx"
)

func TestWatchCountsBusEvents(t *testing.T) {
	bus := eventbus.New()
	r := New(store.NewMemory(nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Watch(ctx, bus, logx.Nop())
	}()
	// Let Watch subscribe before publishing.
	time.Sleep(50 * time.Millisecond)

	bus.Publish(eventbus.Event{Type: eventbus.TypeDispatched})
	bus.Publish(eventbus.Event{Type: eventbus.TypeDispatched})
	bus.Publish(eventbus.Event{Type: eventbus.TypeRetryQueued})
	bus.Publish(eventbus.Event{Type: eventbus.TypeCompacted})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(r.dispatched) == 2 &&
			testutil.ToFloat64(r.retries) == 1 &&
			testutil.ToFloat64(r.compactions) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := testutil.ToFloat64(r.dispatched); got != 2 {
		t.Fatalf("dispatched = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.retries); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.compactions); got != 1 {
		t.Fatalf("compactions = %v, want 1", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not stop on cancellation")
	}
}

func TestPendingGaugeTracksStore(t *testing.T) {
	mem := store.NewMemory(nil)
	r := New(mem)

	if got := testutil.ToFloat64(r.pending); got != 0 {
		t.Fatalf("pending = %v on empty store", got)
	}
}

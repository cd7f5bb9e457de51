package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"squid-go/core/event"
)

// pingEvent is a simple event for testing.
type pingEvent struct {
	seq int
}

func (pingEvent) EventName() string { return "ping" }

// pongEvent is a second event type for testing type routing.
type pongEvent struct{}

func (pongEvent) EventName() string { return "pong" }

func newTestBus(t *testing.T) EventBus {
	t.Helper()
	bus := New(DefaultConfig())
	t.Cleanup(bus.Close)
	return bus
}

func syncBus(t *testing.T, bus EventBus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := bus.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := newTestBus(t)

	var received atomic.Int32
	Subscribe(bus, func(e pingEvent) {
		received.Add(1)
	})

	bus.Publish(pingEvent{seq: 1})
	syncBus(t, bus)

	if received.Load() != 1 {
		t.Errorf("Expected 1 event, got %d", received.Load())
	}
}

func TestEventBus_RoutesByConcreteType(t *testing.T) {
	bus := newTestBus(t)

	var pings, pongs atomic.Int32
	Subscribe(bus, func(pingEvent) { pings.Add(1) })
	Subscribe(bus, func(pongEvent) { pongs.Add(1) })

	bus.Publish(pingEvent{})
	bus.Publish(pingEvent{})
	bus.Publish(pongEvent{})
	syncBus(t, bus)

	if pings.Load() != 2 {
		t.Errorf("pings = %d, want 2", pings.Load())
	}
	if pongs.Load() != 1 {
		t.Errorf("pongs = %d, want 1", pongs.Load())
	}
}

func TestEventBus_HandlersRunInRegistrationOrder(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		Subscribe(bus, func(pingEvent) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	bus.Publish(pingEvent{})
	syncBus(t, bus)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("len(order) = %d, want 5", len(order))
	}
}

func TestEventBus_SequentialPublishesKeepOrder(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var seen []int
	Subscribe(bus, func(e pingEvent) {
		mu.Lock()
		seen = append(seen, e.seq)
		mu.Unlock()
	})

	const n = 500
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			bus.Publish(pingEvent{seq: i})
		}
	}()
	<-done
	syncBus(t, bus)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Fatalf("received %d events, want %d", len(seen), n)
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("seen[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestEventBus_DispatchGoroutineAffinity(t *testing.T) {
	bus := newTestBus(t)

	var onDispatch, offDispatch atomic.Int32
	Subscribe(bus, func(pingEvent) {
		if bus.OnDispatchGoroutine() {
			onDispatch.Add(1)
		} else {
			offDispatch.Add(1)
		}
	})

	const n = 1000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if bus.OnDispatchGoroutine() {
			t.Error("worker goroutine reported as dispatch goroutine")
		}
		for i := 0; i < n; i++ {
			bus.Publish(pingEvent{seq: i})
		}
	}()
	wg.Wait()
	syncBus(t, bus)

	if onDispatch.Load() != n {
		t.Errorf("handlers on dispatch goroutine = %d, want %d", onDispatch.Load(), n)
	}
	if offDispatch.Load() != 0 {
		t.Errorf("handlers off dispatch goroutine = %d, want 0", offDispatch.Load())
	}
}

func TestEventBus_PublishFromHandlerRunsInline(t *testing.T) {
	bus := newTestBus(t)

	var steps []string
	Subscribe(bus, func(pongEvent) {
		steps = append(steps, "pong")
	})
	Subscribe(bus, func(pingEvent) {
		steps = append(steps, "ping-start")
		bus.Publish(pongEvent{})
		steps = append(steps, "ping-end")
	})

	bus.Publish(pingEvent{})
	syncBus(t, bus)

	want := []string{"ping-start", "pong", "ping-end"}
	if len(steps) != len(want) {
		t.Fatalf("steps = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Errorf("steps = %v, want %v", steps, want)
			break
		}
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := newTestBus(t)

	var received atomic.Int32
	id := Subscribe(bus, func(pingEvent) {
		received.Add(1)
	})

	bus.Unsubscribe(id)
	bus.Publish(pingEvent{})
	syncBus(t, bus)

	if received.Load() != 0 {
		t.Errorf("Expected 0 events after unsubscribe, got %d", received.Load())
	}
}

func TestEventBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := newTestBus(t)

	var kept atomic.Int32
	id := Subscribe(bus, func(pingEvent) {})
	Subscribe(bus, func(pingEvent) { kept.Add(1) })

	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Unsubscribe(SubscriptionID(9999))

	bus.Publish(pingEvent{})
	syncBus(t, bus)

	if kept.Load() != 1 {
		t.Errorf("remaining handler received %d events, want 1", kept.Load())
	}
}

func TestEventBus_UnsubscribeRemovesOnlyOnePair(t *testing.T) {
	bus := newTestBus(t)

	var pings, pongs atomic.Int32
	handler := func(e event.Event) {
		switch e.(type) {
		case pingEvent:
			pings.Add(1)
		case pongEvent:
			pongs.Add(1)
		}
	}
	pingID := Subscribe(bus, func(e pingEvent) { handler(e) })
	Subscribe(bus, func(e pongEvent) { handler(e) })

	bus.Unsubscribe(pingID)
	bus.Publish(pingEvent{})
	bus.Publish(pongEvent{})
	syncBus(t, bus)

	if pings.Load() != 0 || pongs.Load() != 1 {
		t.Errorf("pings=%d pongs=%d, want 0 and 1", pings.Load(), pongs.Load())
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := newTestBus(t)

	var received atomic.Int32
	bus.SubscribeAll(func(event.Event) { received.Add(1) })

	bus.Publish(pingEvent{})
	bus.Publish(pongEvent{})
	syncBus(t, bus)

	if received.Load() != 2 {
		t.Errorf("Expected 2 events, got %d", received.Load())
	}
}

func TestEventBus_Close(t *testing.T) {
	bus := New(DefaultConfig())

	var received atomic.Int32
	Subscribe(bus, func(pingEvent) {
		received.Add(1)
	})

	bus.Close()
	bus.Publish(pingEvent{})

	if received.Load() != 0 {
		t.Errorf("Expected 0 events after close, got %d", received.Load())
	}

	// Close again should not panic
	bus.Close()

	if err := bus.Sync(context.Background()); err != nil {
		t.Errorf("Sync() after close = %v, want nil", err)
	}
}

func TestEventBus_CloseDrainsQueue(t *testing.T) {
	bus := New(DefaultConfig())

	var received atomic.Int32
	release := make(chan struct{})
	Subscribe(bus, func(e pingEvent) {
		if e.seq == 0 {
			<-release
		}
		received.Add(1)
	})

	for i := 0; i < 10; i++ {
		bus.Publish(pingEvent{seq: i})
	}
	close(release)
	bus.Close()

	if received.Load() != 10 {
		t.Errorf("Expected 10 events delivered before close returned, got %d", received.Load())
	}
}

func TestEventBus_HandlerPanic(t *testing.T) {
	bus := newTestBus(t)

	var received atomic.Int32
	Subscribe(bus, func(pingEvent) {
		panic("test panic")
	})
	Subscribe(bus, func(pingEvent) {
		received.Add(1)
	})

	bus.Publish(pingEvent{})
	bus.Publish(pingEvent{})
	syncBus(t, bus)

	if received.Load() != 2 {
		t.Errorf("Expected 2 events despite panic, got %d", received.Load())
	}
}

func TestEventBus_NoSubscribers(t *testing.T) {
	bus := newTestBus(t)

	bus.Publish(pongEvent{})
	bus.Publish(nil)
	syncBus(t, bus)
}

func TestEventBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := newTestBus(t)

	var received atomic.Int32
	Subscribe(bus, func(pingEvent) { received.Add(1) })

	const numEvents = 200
	var wg sync.WaitGroup
	for i := 0; i < numEvents; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			bus.Publish(pingEvent{seq: i})
		}(i)
		go func() {
			defer wg.Done()
			id := Subscribe(bus, func(pongEvent) {})
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()
	syncBus(t, bus)

	if received.Load() != numEvents {
		t.Errorf("Expected %d events, got %d", numEvents, received.Load())
	}
}

func TestEventBus_SyncHonoursContext(t *testing.T) {
	bus := newTestBus(t)

	block := make(chan struct{})
	Subscribe(bus, func(pingEvent) { <-block })
	bus.Publish(pingEvent{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bus.Sync(ctx); err != context.DeadlineExceeded {
		t.Errorf("Sync() error = %v, want %v", err, context.DeadlineExceeded)
	}
	close(block)
}

func TestEventBus_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bus := New(DefaultConfig())
	Subscribe(bus, func(pingEvent) {})
	bus.Publish(pingEvent{})
	bus.Close()
}

func TestSubscriptions_UnsubscribeAll(t *testing.T) {
	bus := newTestBus(t)
	subs := NewSubscriptions(bus)

	var received atomic.Int32
	subs.Add(
		Subscribe(bus, func(pingEvent) { received.Add(1) }),
		Subscribe(bus, func(pongEvent) { received.Add(1) }),
	)
	if subs.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", subs.Len())
	}

	subs.UnsubscribeAll()
	subs.UnsubscribeAll()

	bus.Publish(pingEvent{})
	bus.Publish(pongEvent{})
	syncBus(t, bus)

	if received.Load() != 0 {
		t.Errorf("Expected 0 events after UnsubscribeAll, got %d", received.Load())
	}
	if subs.Len() != 0 {
		t.Errorf("Len() = %d, want 0", subs.Len())
	}
}

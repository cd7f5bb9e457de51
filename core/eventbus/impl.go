package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"squid-go/core/event"
)

// Config configures the event bus.
type Config struct {
	// BufferSize is the capacity of the cross-goroutine dispatch queue.
	BufferSize int
	// Debug logs every dispatched event.
	Debug  bool
	Logger *slog.Logger
}

// DefaultConfig returns the default bus configuration.
func DefaultConfig() Config {
	return Config{BufferSize: 1024}
}

// subscription represents a single event subscription.
type subscription struct {
	id      SubscriptionID
	handler EventHandler
}

// dispatchItem is one queued delivery. A nil event marks a Sync barrier.
type dispatchItem struct {
	event    event.Event
	handlers []subscription
	barrier  chan struct{}
}

// channelEventBus is a channel-based implementation of EventBus.
type channelEventBus struct {
	queue  chan dispatchItem
	done   chan struct{}
	logger *slog.Logger
	debug  bool

	mu     sync.RWMutex
	byType map[reflect.Type][]subscription
	all    []subscription
	index  map[SubscriptionID]reflect.Type // nil type means SubscribeAll

	dispatchID atomic.Int64
	closed     atomic.Bool
	wg         sync.WaitGroup
	nextID     atomic.Uint64
}

// New creates a new EventBus and starts its dispatch goroutine.
func New(cfg Config) EventBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	bus := &channelEventBus{
		queue:  make(chan dispatchItem, cfg.BufferSize),
		done:   make(chan struct{}),
		logger: cfg.Logger.With("component", "eventbus"),
		debug:  cfg.Debug,
		byType: make(map[reflect.Type][]subscription),
		index:  make(map[SubscriptionID]reflect.Type),
	}
	bus.dispatchID.Store(-1)

	started := make(chan struct{})
	bus.wg.Add(1)
	go bus.dispatch(started)
	<-started

	return bus
}

// Publish delivers or queues an event.
func (b *channelEventBus) Publish(e event.Event) {
	if e == nil || b.closed.Load() {
		return
	}

	handlers := b.snapshot(e)
	if len(handlers) == 0 {
		return
	}

	if b.OnDispatchGoroutine() {
		b.deliver(e, handlers)
		return
	}

	select {
	case b.queue <- dispatchItem{event: e, handlers: handlers}:
	case <-b.done:
	}
}

// snapshot returns the handler list as it exists right now. Slices stored
// in the maps are never mutated in place, so the result can be used after
// the lock is released.
func (b *channelEventBus) snapshot(e event.Event) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	typed := b.byType[reflect.TypeOf(e)]
	if len(b.all) == 0 {
		return typed
	}
	out := make([]subscription, 0, len(typed)+len(b.all))
	out = append(out, typed...)
	return append(out, b.all...)
}

// SubscribeType registers a handler for one concrete event type.
func (b *channelEventBus) SubscribeType(t reflect.Type, handler EventHandler) SubscriptionID {
	id := SubscriptionID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.byType[t]
	next := make([]subscription, len(cur), len(cur)+1)
	copy(next, cur)
	b.byType[t] = append(next, subscription{id: id, handler: handler})
	b.index[id] = t

	return id
}

// SubscribeAll registers a handler for every event.
func (b *channelEventBus) SubscribeAll(handler EventHandler) SubscriptionID {
	id := SubscriptionID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make([]subscription, len(b.all), len(b.all)+1)
	copy(next, b.all)
	b.all = append(next, subscription{id: id, handler: handler})
	b.index[id] = nil

	return id
}

// Unsubscribe removes a subscription by its ID.
func (b *channelEventBus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.index[id]
	if !ok {
		return
	}
	delete(b.index, id)

	if t == nil {
		b.all = without(b.all, id)
		return
	}
	if rest := without(b.byType[t], id); len(rest) > 0 {
		b.byType[t] = rest
	} else {
		delete(b.byType, t)
	}
}

func without(subs []subscription, id SubscriptionID) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// OnDispatchGoroutine reports whether the caller is the dispatch goroutine.
func (b *channelEventBus) OnDispatchGoroutine() bool {
	return goid.Get() == b.dispatchID.Load()
}

// Sync waits until everything queued before the call has been delivered.
func (b *channelEventBus) Sync(ctx context.Context) error {
	if b.closed.Load() || b.OnDispatchGoroutine() {
		return nil
	}

	barrier := make(chan struct{})
	select {
	case b.queue <- dispatchItem{barrier: barrier}:
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts down the event bus.
func (b *channelEventBus) Close() {
	if b.closed.Swap(true) {
		return // Already closed
	}

	close(b.done)
	b.wg.Wait()
}

// dispatch is the main event dispatch loop.
func (b *channelEventBus) dispatch(started chan<- struct{}) {
	defer b.wg.Done()

	b.dispatchID.Store(goid.Get())
	close(started)

	for {
		select {
		case item := <-b.queue:
			b.handle(item)
		case <-b.done:
			b.drain()
			return
		}
	}
}

// drain delivers whatever was queued before Close.
func (b *channelEventBus) drain() {
	for {
		select {
		case item := <-b.queue:
			b.handle(item)
		default:
			return
		}
	}
}

func (b *channelEventBus) handle(item dispatchItem) {
	if item.barrier != nil {
		close(item.barrier)
		return
	}
	b.deliver(item.event, item.handlers)
}

// deliver invokes every handler in order. A panicking handler is logged and
// does not stop delivery to the remaining handlers.
func (b *channelEventBus) deliver(e event.Event, handlers []subscription) {
	if b.debug {
		b.logger.Debug("Dispatching event", "event", e.EventName(), "handlers", len(handlers))
	}

	for _, sub := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("Event handler panicked",
						"event", e.EventName(),
						"subscription", uint64(sub.id),
						"panic", r,
						"stack", string(debug.Stack()))
				}
			}()
			sub.handler(e)
		}()
	}
}

package eventbus

import "sync"

// Subscriptions collects the registrations owned by one component so they
// can be released together on teardown.
type Subscriptions struct {
	bus EventBus
	mu  sync.Mutex
	ids []SubscriptionID
}

// NewSubscriptions creates an empty registration list bound to bus.
func NewSubscriptions(bus EventBus) *Subscriptions {
	return &Subscriptions{bus: bus}
}

// Add records a subscription ID.
func (s *Subscriptions) Add(ids ...SubscriptionID) {
	s.mu.Lock()
	s.ids = append(s.ids, ids...)
	s.mu.Unlock()
}

// Len returns the number of live registrations.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// UnsubscribeAll removes every recorded subscription. Calling it again is a
// no-op.
func (s *Subscriptions) UnsubscribeAll() {
	s.mu.Lock()
	ids := s.ids
	s.ids = nil
	s.mu.Unlock()

	for _, id := range ids {
		s.bus.Unsubscribe(id)
	}
}

package event

import (
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/Iron-Ham/brainnet/internal/logging"
)

// Wildcard is the topic that receives every published event.
const Wildcard = "*"

// Handler receives one published event.
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Bus delivers events synchronously on the publisher's goroutine. The
// protocol state machines publish from their control goroutine, so a slow
// handler delays the trial and must not block.
type Bus struct {
	logger *logging.Logger

	mu     sync.RWMutex
	topics map[string][]subscription
	owner  map[string]string // subscription id -> topic
	seq    uint64
}

// NewBus returns an empty bus. Handler panics are logged to logger.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		logger: logger,
		topics: make(map[string][]subscription),
		owner:  make(map[string]string),
	}
}

// Subscribe registers handler for events whose EventType is topic and
// returns the subscription id.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := fmt.Sprintf("sub-%d", b.seq)
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: handler})
	b.owner[id] = topic
	return id
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// SubscribeTo registers handler for every event of concrete type T.
func SubscribeTo[T Event](b *Bus, handler func(T)) string {
	return b.SubscribeAll(func(e Event) {
		if typed, ok := e.(T); ok {
			handler(typed)
		}
	})
}

// Unsubscribe removes the subscription with id and reports whether it
// existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	topic, ok := b.owner[id]
	if !ok {
		return false
	}
	delete(b.owner, id)
	b.topics[topic] = slices.DeleteFunc(b.topics[topic], func(s subscription) bool { return s.id == id })
	if len(b.topics[topic]) == 0 {
		delete(b.topics, topic)
	}
	return true
}

// Publish calls the handlers of e's topic, then the wildcard handlers, each
// group in subscription order. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	targets := slices.Concat(b.topics[e.EventType()], b.topics[Wildcard])
	b.mu.RUnlock()

	for _, s := range targets {
		b.deliver(s, e)
	}
}

func (b *Bus) deliver(s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event_type", e.EventType(),
				"subscription", s.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()
	s.handler(e)
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.topics)
	clear(b.owner)
}

// SubscriptionCount returns the number of live subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.owner)
}

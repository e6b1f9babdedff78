// Package event provides the process-wide pub/sub bus for session
// lifecycle notifications, built on watermill.
package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies a lifecycle event.
type Type string

const (
	SessionOpened      Type = "session.opened"
	SessionClosed      Type = "session.closed"
	SessionCleaned     Type = "session.cleaned"
	CredentialSaved    Type = "credential.saved"
	ReconnectScheduled Type = "reconnect.scheduled"
)

// Event is one published lifecycle event.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber receives published events.
type Subscriber func(Event)

type subscription struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to subscribers. Publishing never blocks the
// publisher; each subscriber runs on its own goroutine. The bus is passed
// by injection to the components that need it, never accessed as a global.
type Bus struct {
	mu     sync.RWMutex
	byType map[Type][]subscription
	all    []subscription
	nextID uint64
	closed bool

	// watermill channel kept for middleware and future distributed
	// backends; direct subscriptions preserve type information.
	pubsub *gochannel.GoChannel
}

// NewBus creates a bus.
func NewBus() *Bus {
	return &Bus{
		byType: make(map[Type][]subscription),
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
	}
}

// Subscribe registers fn for one event type and returns its unsubscribe
// function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.byType[t] = append(b.byType[t], subscription{id: id, fn: fn})
	return func() { b.remove(t, id) }
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.all = append(b.all, subscription{id: id, fn: fn})
	return func() { b.remove("", id) }
}

func (b *Bus) remove(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t == "" {
		for i, sub := range b.all {
			if sub.id == id {
				b.all = append(b.all[:i], b.all[i+1:]...)
				return
			}
		}
		return
	}
	subs := b.byType[t]
	for i, sub := range subs {
		if sub.id == id {
			b.byType[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.byType[t])+len(b.all))
	for _, sub := range b.byType[t] {
		subs = append(subs, sub.fn)
	}
	for _, sub := range b.all {
		subs = append(subs, sub.fn)
	}
	return subs
}

// Publish delivers the event asynchronously to every matching subscriber.
func (b *Bus) Publish(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		go fn(ev)
	}
}

// PublishSync delivers the event in the caller's goroutine. Tests use it to
// observe ordering.
func (b *Bus) PublishSync(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		fn(ev)
	}
}

// Close drops all subscriptions and shuts the watermill channel down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.byType = make(map[Type][]subscription)
	b.all = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}

// Package eventbus provides in-memory pub/sub for controller events.
package eventbus

import (
	"sync"

	"github.com/jxucoder/waconnect/model"
)

// Bus fans events out to every subscribed view connection.
type Bus interface {
	Subscribe() chan *model.Event
	Unsubscribe(ch chan *model.Event)
	Publish(event *model.Event)
}

// InMemoryBus is a Bus backed by buffered channels. Publish never blocks:
// an event is dropped for a subscriber whose buffer is full.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs []chan *model.Event
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{}
}

// Subscribe creates a channel that receives every published event.
func (b *InMemoryBus) Subscribe() chan *model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Event, 64)
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *InMemoryBus) Unsubscribe(ch chan *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all subscribers.
func (b *InMemoryBus) Publish(event *model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is too slow.
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *InMemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const subscriberBuffer = 64

// Feed is the subscription side of the change feed.
type Feed interface {
	// Subscribe returns a channel of matching events. The channel is closed
	// once ctx is cancelled.
	Subscribe(ctx context.Context, f Filter) <-chan ChangeEvent
}

type subscription struct {
	filter Filter
	ch     chan ChangeEvent
}

// Broker fans change events out to in-process subscribers.
// Publish never blocks: a subscriber whose buffer is full misses the event
// and is expected to re-derive state from a fresh snapshot.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	logger *zap.Logger

	onDrop func()
}

func NewBroker(logger *zap.Logger) *Broker {
	return &Broker{subs: make(map[int]*subscription), logger: logger, onDrop: func() {}}
}

// OnDrop registers a callback invoked whenever an event is dropped for a
// slow subscriber.
func (b *Broker) OnDrop(fn func()) {
	if fn != nil {
		b.onDrop = fn
	}
}

func (b *Broker) Subscribe(ctx context.Context, f Filter) <-chan ChangeEvent {
	sub := &subscription{filter: f, ch: make(chan ChangeEvent, subscriberBuffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(sub.ch)
		b.mu.Unlock()
	}()

	return sub.ch
}

func (b *Broker) Publish(e ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			b.onDrop()
			b.logger.Warn("change feed subscriber is full, dropping event",
				zap.String("op", string(e.Op)))
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

var _ Feed = (*Broker)(nil)

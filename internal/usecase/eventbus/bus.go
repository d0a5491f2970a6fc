// Package eventbus is the in-process broadcast used for settings-changed and
// the other switch events. Observers never block the publisher.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"switchd/internal/domain"
)

// allTypes marks a subscription that matches every event type.
const allTypes domain.EventType = ""

type subscription struct {
	filter  domain.EventType
	handler domain.EventHandler
}

// Bus is an in-process, goroutine-safe event bus. Every handler runs in its
// own goroutine; panics are recovered and logged.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]subscription
	order   []uint64
	nextID  atomic.Uint64
	logger  *slog.Logger
	pending sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

// New creates an event bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]subscription),
		logger: logger,
	}
}

// Publish fans the event out to every matching subscriber in subscription
// order. Events published after Close are counted and discarded.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		b.dropped.Add(1)
		return
	}

	b.mu.RLock()
	targets := make([]domain.EventHandler, 0, len(b.order))
	for _, id := range b.order {
		sub := b.subs[id]
		if sub.filter == allTypes || sub.filter == event.Type {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(ctx, event, h)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, h domain.EventHandler) {
	b.pending.Add(1)
	go func() {
		defer b.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("event handler panicked", "event", string(event.Type), "panic", r)
			}
		}()
		h(ctx, event)
	}()
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add(allTypes, handler)
}

func (b *Bus) add(filter domain.EventType, handler domain.EventHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.subs[id] = subscription{filter: filter, handler: handler}
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Flush waits until every handler started so far has returned. The bus stays
// open.
func (b *Bus) Flush() {
	b.pending.Wait()
}

// Dropped returns how many events were discarded after Close.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits for in-flight handlers.
// Close is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.pending.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
